package netconf

import (
	"context"
	"encoding/xml"
	"sync"
	"sync/atomic"
	"time"

	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/damianoneill/junosmgr/netconf/common/codec"
	"github.com/damianoneill/junosmgr/netconf/server/ssh"

	xssh "golang.org/x/crypto/ssh"
)

// Server represents a Netconf Server.
// It encapsulates a transport connection to an SSH server, and session handlers that will
// be invoked to handle netconf messages.
type Server struct {
	*ssh.Server
	sf    SessionFactory
	trace *Trace

	lock            sync.Mutex
	sessionHandlers map[uint64]*SessionHandler
	nextSid         uint64
}

// SessionCallback defines the caller supplied callback functions.
type SessionCallback interface {
	// Capabilities is called to retrieve the capabilities that should be advertised to the client.
	// If the callback returns nil, the default set of capabilities is used.
	Capabilities() []string
	// HandleRequest is called to handle an RPC request.
	HandleRequest(req *RPCRequestMessage) *RPCReplyMessage
}

// SessionCloser may be implemented by a SessionCallback that needs to know when its session ends.
type SessionCloser interface {
	SessionClosed()
}

// SessionFactory delivers the callbacks for a new session.
type SessionFactory func(*SessionHandler) SessionCallback

// SessionHandler represents the server side of an active netconf SSH session.
type SessionHandler struct {
	server *Server
	svrcon *xssh.ServerConn
	ch     xssh.Channel

	enc *codec.Encoder
	dec *codec.Decoder

	// Serialises access to encoder.
	encLock sync.Mutex

	capabilities []string
	sid          uint64

	// Signalled on receipt of client capabilities.
	hellochan chan struct{}

	// The HelloMessage sent by the connecting client.
	ClientHello *common.HelloMessage

	cb SessionCallback
}

// RPCRequestMessage and RPCRequest represent an RPC request from a client, where the element type of the
// request body is unknown.
type RPCRequestMessage struct {
	XMLName   xml.Name
	MessageID string     `xml:"message-id,attr"`
	Request   RPCRequest `xml:",any"`
}

// RPCRequest describes an RPC request.
type RPCRequest struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Body    string     `xml:",innerxml"`
}

// Attr delivers the value of the named request attribute, or "".
func (r *RPCRequest) Attr(name string) string {
	for _, a := range r.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// RPCReplyMessage represents an rpc-reply message that will be sent to a client session.
// Data is written verbatim as the reply content.
type RPCReplyMessage struct {
	XMLName   xml.Name          `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	MessageID string            `xml:"message-id,attr"`
	Errors    []common.RPCError `xml:"rpc-error,omitempty"`
	Ok        *struct{}         `xml:"ok,omitempty"`
	Data      string            `xml:",innerxml"`
}

// OkReply delivers an <ok/> reply to the request.
func OkReply(req *RPCRequestMessage) *RPCReplyMessage {
	return &RPCReplyMessage{MessageID: req.MessageID, Ok: &struct{}{}}
}

// DataReply delivers a reply to the request carrying data.
func DataReply(req *RPCRequestMessage, data string) *RPCReplyMessage {
	return &RPCReplyMessage{MessageID: req.MessageID, Data: data}
}

// ErrorReply delivers a reply to the request carrying rpc errors.
func ErrorReply(req *RPCRequestMessage, errs ...common.RPCError) *RPCReplyMessage {
	return &RPCReplyMessage{MessageID: req.MessageID, Errors: errs}
}

const closeSession = "close-session"

// NewServer creates a new Server that will accept Netconf connections on address:port, with credentials
// defined by the sshcfg configuration. A port of 0 selects an ephemeral port, available via Port().
func NewServer(ctx context.Context, address string, port int, sshcfg *xssh.ServerConfig, sf SessionFactory) (ncs *Server, err error) {
	ncs = &Server{sessionHandlers: make(map[uint64]*SessionHandler), sf: sf, trace: ContextNetconfTrace(ctx)}

	ncs.Server, err = ssh.NewServer(ctx, address, port, sshcfg, ncs.handlerFactory())
	if err != nil {
		return nil, err
	}
	return
}

func (ncs *Server) handlerFactory() ssh.HandlerFactory {
	return func(svrconn *xssh.ServerConn) ssh.Handler {
		sid := atomic.AddUint64(&ncs.nextSid, 1)
		sess := ncs.newSessionHandler(svrconn, sid)
		ncs.lock.Lock()
		ncs.sessionHandlers[sid] = sess
		ncs.lock.Unlock()
		return sess
	}
}

// SessionCount delivers the number of sessions that are currently active.
func (ncs *Server) SessionCount() int {
	ncs.lock.Lock()
	defer ncs.lock.Unlock()
	return len(ncs.sessionHandlers)
}

// Close closes any active sessions and prevents subsequent connections.
func (ncs *Server) Close() {
	ncs.lock.Lock()
	for _, v := range ncs.sessionHandlers {
		v.Close()
	}
	ncs.lock.Unlock()
	ncs.Server.Close()
}

func (ncs *Server) newSessionHandler(svrcon *xssh.ServerConn, sid uint64) *SessionHandler {
	sh := &SessionHandler{
		server:       ncs,
		svrcon:       svrcon,
		sid:          sid,
		hellochan:    make(chan struct{}, 1),
		capabilities: common.DefaultCapabilities,
	}

	ncs.trace.StartSession(sh)

	sh.cb = ncs.sf(sh)
	if caps := sh.cb.Capabilities(); caps != nil {
		sh.capabilities = caps
	}
	return sh
}

// ID delivers the session id reported to the client.
func (h *SessionHandler) ID() uint64 {
	return h.sid
}

// User delivers the name of the user that opened the session.
func (h *SessionHandler) User() string {
	return h.svrcon.User()
}

// Handle establishes a Netconf server session on a newly-connected SSH channel.
func (h *SessionHandler) Handle(ch xssh.Channel) {
	h.ch = ch
	h.dec = codec.NewDecoder(ch)
	h.enc = codec.NewEncoder(ch)

	done := make(chan struct{})

	// Send server hello to client.
	err := h.encode(&common.HelloMessage{Capabilities: h.capabilities, SessionID: h.sid})
	if err == nil {
		go h.handleIncomingMessages(done)
		if h.waitForClientHello() {
			<-done
		}
	}

	h.server.lock.Lock()
	delete(h.server.sessionHandlers, h.sid)
	h.server.lock.Unlock()

	if closer, ok := h.cb.(SessionCloser); ok {
		closer.SessionClosed()
	}
	h.server.trace.EndSession(h, err)
}

// Close initiates session tear-down by closing the underlying transport channel.
func (h *SessionHandler) Close() {
	if h.ch != nil {
		_ = h.ch.Close()
	}
}

func (h *SessionHandler) waitForClientHello() bool {
	select {
	case <-h.hellochan:
	case <-time.After(5 * time.Second):
	}

	h.server.trace.ClientHello(h)
	return h.ClientHello != nil
}

func (h *SessionHandler) handleIncomingMessages(done chan struct{}) {
	defer close(done)

	// Loop, looking for a start element type of hello, rpc.
	for {
		token, err := h.dec.Token()
		if err != nil {
			return
		}
		if !h.handleToken(token) {
			h.Close()
			return
		}
	}
}

func (h *SessionHandler) handleToken(token xml.Token) bool {
	if start, ok := token.(xml.StartElement); ok {
		switch start.Name.Local {
		case common.NameHello.Local: // <hello>
			h.handleHello(start)

		case common.NameRPC.Local: // <rpc>
			return h.handleRPC(start)
		}
	}
	return true
}

func (h *SessionHandler) handleHello(token xml.StartElement) {
	// Decode the hello element and signal the rest of the session setup.
	err := h.decodeElement(&h.ClientHello, &token)
	if err == nil {
		if common.PeerSupportsChunkedFraming(h.ClientHello.Capabilities) && common.PeerSupportsChunkedFraming(h.capabilities) {
			codec.EnableChunkedFraming(h.dec, h.enc)
		}
	}

	select {
	case h.hellochan <- struct{}{}:
	default:
	}
}

// handleRPC returns false when the session should end.
func (h *SessionHandler) handleRPC(token xml.StartElement) bool {
	request := &RPCRequestMessage{}
	if err := h.decodeElement(request, &token); err != nil {
		return false
	}

	if request.Request.XMLName.Local == closeSession {
		_ = h.encode(OkReply(request))
		return false
	}

	if reply := h.cb.HandleRequest(request); reply != nil {
		_ = h.encode(reply)
	}
	return true
}

func (h *SessionHandler) decodeElement(v interface{}, start *xml.StartElement) error {
	err := h.dec.DecodeElement(v, start)
	h.server.trace.Decoded(h, err)
	return err
}

func (h *SessionHandler) encode(m interface{}) error {
	h.encLock.Lock()
	defer h.encLock.Unlock()
	err := h.enc.Encode(m)
	h.server.trace.Encoded(h, err)
	return err
}
