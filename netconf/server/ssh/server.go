package ssh

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Server represents an SSH Server that hands subsystem channels to a Handler.
type Server struct {
	listener net.Listener
	trace    *Trace

	connLock sync.Mutex
	conns    map[net.Conn]struct{}
}

// Handler is the interface that is implemented to handle an SSH channel.
type Handler interface {
	// Handle is a function that handles i/o to/from an SSH channel
	Handle(ch ssh.Channel)
}

// HandlerFactory is a function that will deliver an Handler.
type HandlerFactory func(conn *ssh.ServerConn) Handler

// NewServer delivers a new SSH Server, with a custom channel handler, listening on address:port.
// A port of 0 selects an ephemeral port, available via Port().
func NewServer(ctx context.Context, address string, port int, cfg *ssh.ServerConfig, factory HandlerFactory) (server *Server, err error) {
	server = &Server{trace: ContextSSHTrace(ctx), conns: make(map[net.Conn]struct{})}

	listenAddress := net.JoinHostPort(address, fmt.Sprint(port))
	server.listener, err = net.Listen("tcp", listenAddress)
	server.trace.Listened(listenAddress, err)
	if err != nil {
		return nil, err
	}

	go server.acceptConnections(cfg, factory)

	return server, nil
}

// Port delivers the tcp port number on which the server is listening.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Address delivers the host:port on which the server is listening.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Close stops accepting connections and closes any active connections.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.connLock.Lock()
	defer s.connLock.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) acceptConnections(config *ssh.ServerConfig, factory HandlerFactory) {
	s.trace.StartAccepting()
	for {
		nConn, err := s.listener.Accept()
		s.trace.Accepted(nConn, err)
		if err != nil {
			return
		}

		go s.serveConnection(nConn, config, factory)
	}
}

func (s *Server) serveConnection(nConn net.Conn, config *ssh.ServerConfig, factory HandlerFactory) {
	s.track(nConn, true)
	defer s.track(nConn, false)

	svrconn, chch, reqch, err := ssh.NewServerConn(nConn, config)
	s.trace.NewServerConn(nConn, err)
	if err != nil {
		_ = nConn.Close()
		return
	}

	go ssh.DiscardRequests(reqch)

	// Service the incoming Channel channel.
	for newChannel := range chch {
		dataChan, requests, err := newChannel.Accept()
		s.trace.SSHChannelAccept(nConn, err)
		if err != nil {
			continue
		}

		// Handle the "subsystem" request.
		go func(in <-chan *ssh.Request) {
			for req := range in {
				err := req.Reply(req.Type == "subsystem", nil)
				s.trace.SubsystemRequestReply(err)
			}
		}(requests)

		go func() {
			defer dataChan.Close()
			factory(svrconn).Handle(dataChan)
		}()
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}
