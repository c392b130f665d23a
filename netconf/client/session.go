package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/damianoneill/junosmgr/netconf/common/codec"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// The Message layer defines a set of base protocol operations
// invoked as RPC methods with XML-encoded parameters.

//go:generate mockgen -destination=mocks/session.go -package=mocks github.com/damianoneill/junosmgr/netconf/client Session

// Session represents a Netconf Session
type Session interface {
	// Execute executes an RPC request on the server and returns the reply.
	// If the reply carries an rpc-error with error severity, the reply is returned together with
	// the corresponding *common.RPCError.
	Execute(req common.Request) (*common.RPCReply, error)

	// Close closes the session and releases any associated resources.
	// When the session is closed, any outstanding execute requests will fail.
	Close() error

	// ID delivers the server-allocated id of the session.
	ID() uint64

	// ServerCapabilities delivers the server-supplied capabilities.
	ServerCapabilities() []string
}

type sesImpl struct {
	cfg   *Config
	t     Transport
	dec   *codec.Decoder
	enc   *codec.Encoder
	trace *ClientTrace

	hellochan chan bool
	hello     *common.HelloMessage

	// reqLock serialises request submission with respect to session shutdown.
	reqLock sync.Mutex
	// rchLock guards the response queue.
	rchLock   sync.Mutex
	responseq []chan *common.RPCReply
	closed    bool

	target string
}

// NewSession creates a new Netconf session, using the supplied Transport.
func NewSession(ctx context.Context, t Transport, target string, cfg *Config) (Session, error) {
	si := &sesImpl{
		cfg:    cfg,
		t:      t,
		target: target,
		dec:    codec.NewDecoder(t),
		enc:    codec.NewEncoder(t),
		trace:  ContextClientTrace(ctx),

		hellochan: make(chan bool, 1),
	}

	caps := common.DefaultCapabilities
	if cfg.DisableChunkedCodec {
		caps = common.NoChunkedCodecCapabilities
	}

	// Send hello
	if err := si.enc.Encode(&common.HelloMessage{Capabilities: caps}); err != nil {
		si.trace.Error("Failed to encode hello", si.target, err)
		_ = si.Close()
		return nil, err
	}

	// Launch goroutine to handle incoming messages from the server.
	go si.handleIncomingMessages()

	if err := si.waitForServerHello(); err != nil {
		si.trace.Error("Failed to receive hello", si.target, err)
		_ = si.Close()
		return nil, err
	}
	return si, nil
}

func (si *sesImpl) Execute(req common.Request) (reply *common.RPCReply, err error) {
	si.trace.ExecuteStart(req)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, reply, err, time.Since(begin))
	}(time.Now())

	rchan := make(chan *common.RPCReply, 1)
	if err = si.execute(req, rchan); err != nil {
		return nil, err
	}

	// Wait for the response; a nil reply means the session ended first.
	reply = <-rchan
	if reply == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return reply, mapError(reply)
}

func (si *sesImpl) execute(req common.Request, rchan chan *common.RPCReply) (err error) {
	msg := &common.RPCMessage{MessageID: uuid.NewString(), Union: common.GetUnion(req)}

	// The request lock makes queueing the response channel and sending the request atomic.
	si.reqLock.Lock()
	defer si.reqLock.Unlock()

	if si.closed {
		return io.EOF
	}

	// Add the response channel to the response queue, but take it off if the request was not
	// submitted successfully.
	si.pushRespChan(rchan)
	if err = si.enc.Encode(msg); err != nil {
		si.popRespChan()
		err = errors.Cause(err)
	}
	return
}

func (si *sesImpl) Close() error {
	err := si.t.Close()
	if err != nil {
		si.trace.Error("Session close failed", si.target, err)
	}
	return err
}

func (si *sesImpl) ID() uint64 {
	return si.hello.SessionID
}

func (si *sesImpl) ServerCapabilities() []string {
	return si.hello.Capabilities
}

func (si *sesImpl) waitForServerHello() error {
	select {
	case ok := <-si.hellochan:
		if !ok || si.hello == nil {
			return errors.New("failed to get hello from server")
		}
	case <-time.After(time.Duration(si.cfg.SetupTimeoutSecs) * time.Second):
		return errors.New("timed out waiting for hello from server")
	}
	return nil
}

func (si *sesImpl) handleIncomingMessages() {
	// When this goroutine finishes, make sure anybody waiting for a response gets informed.
	defer si.closeChannels()

	// Loop, looking for a start element type of hello or rpc-reply.
	for {
		token, err := si.dec.Token()
		if err != nil {
			if err != io.EOF {
				si.trace.Error("Token", si.target, err)
			}
			return
		}

		if err = si.handleToken(token); err != nil {
			return
		}
	}
}

func (si *sesImpl) handleToken(token xml.Token) (err error) {
	if start, ok := token.(xml.StartElement); ok {
		switch start.Name {
		case common.NameHello: // <hello>
			err = si.handleHello(start)

		case common.NameRPCReply: // <rpc-reply>
			err = si.handleRPCReply(start)
		}
	}
	return
}

func (si *sesImpl) handleHello(token xml.StartElement) (err error) {
	// Decode the hello element and signal the waiting session setup.
	hello := &common.HelloMessage{}
	if err = si.decodeElement(hello, &token); err != nil {
		si.hellochan <- false
		return
	}
	si.hello = hello

	if !si.cfg.DisableChunkedCodec && common.PeerSupportsChunkedFraming(si.hello.Capabilities) {
		// Update the codec to use chunked framing from now.
		codec.EnableChunkedFraming(si.dec, si.enc)
	}

	si.hellochan <- true
	si.trace.HelloDone(si.hello)
	return
}

func (si *sesImpl) handleRPCReply(token xml.StartElement) (err error) {
	reply := &common.RPCReply{}
	if err = si.decodeElement(reply, &token); err != nil {
		return
	}

	// Replies arrive in request order; deliver to the channel at the head of the queue.
	if respch := si.popRespChan(); respch != nil {
		respch <- reply
	}
	return
}

func (si *sesImpl) decodeElement(v interface{}, start *xml.StartElement) (err error) {
	if err = si.dec.DecodeElement(v, start); err != nil {
		si.trace.Error(fmt.Sprintf("DecodeElement token:%s", start.Name.Local), si.target, err)
	}
	return
}

func (si *sesImpl) closeChannels() {
	close(si.hellochan)

	si.reqLock.Lock()
	defer si.reqLock.Unlock()
	si.closed = true
	for {
		ch := si.popRespChan()
		if ch == nil {
			return
		}
		close(ch)
	}
}

func (si *sesImpl) pushRespChan(ch chan *common.RPCReply) {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	si.responseq = append(si.responseq, ch)
}

func (si *sesImpl) popRespChan() (ch chan *common.RPCReply) {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	if len(si.responseq) > 0 {
		si.responseq, ch = si.responseq[1:], si.responseq[0]
	}
	return
}

// Map an RPC reply to an error, if the reply contains any RPC error with error severity.
func mapError(r *common.RPCReply) error {
	for i := range r.Errors {
		if r.Errors[i].Severity == common.SeverityError {
			return &r.Errors[i]
		}
	}
	return nil
}
