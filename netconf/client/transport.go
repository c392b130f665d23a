package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// The Secure Transport layer provides a communication path between
// the client and server.  NETCONF can be layered over any
// transport protocol that provides a set of basic requirements.

// Transport interface defines what characteristics make up a NETCONF transport
// layer object.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer establishes the SSH client connection used by a transport.
type Dialer func(ctx context.Context) (*ssh.Client, error)

// NewDialer delivers a Dialer that connects to target over tcp, honouring ctx for the
// duration of the tcp connect.
func NewDialer(target string, sshcfg *ssh.ClientConfig) Dialer {
	return func(ctx context.Context) (*ssh.Client, error) {
		d := net.Dialer{Timeout: sshcfg.Timeout}
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, err
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, target, sshcfg)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return ssh.NewClient(c, chans, reqs), nil
	}
}

type tImpl struct {
	reader      io.Reader
	writeCloser io.WriteCloser
	sshSession  *ssh.Session
	sshClient   *ssh.Client
	trace       *ClientTrace
	target      string
}

// NewSSHTransport creates a new SSH transport, connecting to the target with the supplied dialer
// and requesting the netconf subsystem.
func NewSSHTransport(ctx context.Context, dialer Dialer, target string) (rt Transport, err error) {
	impl := tImpl{target: target, trace: ContextClientTrace(ctx)}

	impl.trace.ConnectStart(target)
	defer func(begin time.Time) {
		impl.trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	defer func() {
		if err != nil {
			impl.trace.Error("Transport setup", target, err)
			if impl.sshSession != nil {
				_ = impl.sshSession.Close()
			}
			if impl.sshClient != nil {
				_ = impl.sshClient.Close()
			}
		}
	}()

	if impl.sshClient, err = impl.dial(ctx, dialer); err != nil {
		return nil, err
	}

	if impl.sshSession, err = impl.sshClient.NewSession(); err != nil {
		return nil, errors.Wrap(err, "failed to create ssh session")
	}

	if err = impl.sshSession.RequestSubsystem("netconf"); err != nil {
		return nil, errors.Wrap(err, "failed to request netconf subsystem")
	}

	if impl.reader, err = impl.sshSession.StdoutPipe(); err != nil {
		return nil, errors.Wrap(err, "failed to get session output")
	}

	if impl.writeCloser, err = impl.sshSession.StdinPipe(); err != nil {
		return nil, errors.Wrap(err, "failed to get session input")
	}

	impl.injectTraceReader()
	impl.injectTraceWriter()

	return &impl, nil
}

func (t *tImpl) dial(ctx context.Context, dialer Dialer) (c *ssh.Client, err error) {
	t.trace.DialStart(t.target)
	defer func(begin time.Time) {
		t.trace.DialDone(t.target, err, time.Since(begin))
	}(time.Now())

	return dialer(ctx)
}

func (t *tImpl) Read(p []byte) (n int, err error) {
	return t.reader.Read(p)
}

func (t *tImpl) Write(p []byte) (n int, err error) {
	return t.writeCloser.Write(p)
}

// Close closes all session resources in the following order:
//
//  1. stdin pipe
//  2. SSH session
//  3. SSH client
//
// Errors are returned with priority matching the same order.
func (t *tImpl) Close() (err error) {
	defer func() {
		t.trace.ConnectionClosed(t.target, err)
	}()

	var (
		writeCloseErr      error
		sshSessionCloseErr error
		sshClientCloseErr  error
	)

	if t.writeCloser != nil {
		writeCloseErr = t.writeCloser.Close()
	}

	if t.sshSession != nil {
		sshSessionCloseErr = t.sshSession.Close()
	}

	if t.sshClient != nil {
		sshClientCloseErr = t.sshClient.Close()
	}

	switch {
	case writeCloseErr != nil:
		err = writeCloseErr
	case sshSessionCloseErr != nil && sshSessionCloseErr != io.EOF:
		// The session may already have been closed by the server.
		err = sshSessionCloseErr
	default:
		err = sshClientCloseErr
	}
	return err
}

type traceReader struct {
	r     io.Reader
	trace *ClientTrace
}

func (t *tImpl) injectTraceReader() {
	t.reader = &traceReader{r: t.reader, trace: t.trace}
}

func (tr *traceReader) Read(p []byte) (c int, err error) {
	tr.trace.ReadStart(p)
	defer func(begin time.Time) {
		tr.trace.ReadDone(p, c, err, time.Since(begin))
	}(time.Now())

	return tr.r.Read(p)
}

type traceWriter struct {
	w     io.WriteCloser
	trace *ClientTrace
}

func (t *tImpl) injectTraceWriter() {
	t.writeCloser = &traceWriter{w: t.writeCloser, trace: t.trace}
}

func (tw *traceWriter) Write(p []byte) (c int, err error) {
	tw.trace.WriteStart(p)
	defer func(begin time.Time) {
		tw.trace.WriteDone(p, c, err, time.Since(begin))
	}(time.Now())

	return tw.w.Write(p)
}

func (tw *traceWriter) Close() (err error) {
	return tw.w.Close()
}
