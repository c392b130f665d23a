package ssh

import (
	"context"
	"net"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
)

// unique type to prevent assignment.
type sshEventContextKey struct{}

// ContextSSHTrace returns the Trace associated with the
// provided context. If none, it returns NoOpLoggingHooks.
func ContextSSHTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(sshEventContextKey{}).(*Trace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithSSHTrace returns a new context based on the provided parent
// ctx. Servers created with the returned context will use
// the provided trace hooks
func WithSSHTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, sshEventContextKey{}, trace)
}

// Trace defines a structure for handling trace events
type Trace struct {
	// Listened is called when when an Listen() call completes, with err indicating
	// whether it was successful.
	Listened func(address string, err error)

	// StartAccepting is called when starting to accept connections.
	StartAccepting func()

	// Accepted is called when an Accept() call completes, with err indicating
	// whether it was successful.
	Accepted func(conn net.Conn, err error)

	// NewServerConn is called when a NewServerConn() call completes, with err indicating
	// whether it was successful.
	NewServerConn func(conn net.Conn, err error)

	// SSHChannelAccept is called when a ssh channel Accept() call completes, with err indicating
	// whether it was successful.
	SSHChannelAccept func(conn net.Conn, err error)

	// SubsystemRequestReply is called when a subsystem request Reply call completes, with err indicating
	// whether it was successful.
	SubsystemRequestReply func(err error)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &Trace{
	Listened: func(address string, e error) {
		if e != nil {
			log.WithField("address", address).WithError(e).Error("Listen")
		}
	},
	NewServerConn: func(conn net.Conn, e error) {
		if e != nil {
			log.WithField("remote", conn.RemoteAddr()).WithError(e).Warn("NewServerConn")
		}
	},
	SSHChannelAccept: func(conn net.Conn, e error) {
		if e != nil {
			log.WithField("remote", conn.RemoteAddr()).WithError(e).Warn("SSHChannelAccept")
		}
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &Trace{
	Listened: func(address string, e error) {
		log.WithFields(log.Fields{"address": address, "err": e}).Debug("Listen")
	},
	StartAccepting: func() {
		log.Debug("Start Accepting")
	},
	Accepted: func(conn net.Conn, e error) {
		fields := log.Fields{"err": e}
		if conn != nil {
			fields["remote"] = conn.RemoteAddr()
		}
		log.WithFields(fields).Debug("Accept")
	},
	NewServerConn: func(conn net.Conn, e error) {
		log.WithFields(log.Fields{"remote": conn.RemoteAddr(), "err": e}).Debug("NewServerConn")
	},
	SSHChannelAccept: func(conn net.Conn, e error) {
		log.WithFields(log.Fields{"remote": conn.RemoteAddr(), "err": e}).Debug("SSHChannelAccept")
	},
	SubsystemRequestReply: func(e error) {
		log.WithField("err", e).Debug("SubsystemRequestReply")
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	Listened:              func(address string, e error) {},
	StartAccepting:        func() {},
	Accepted:              func(conn net.Conn, e error) {},
	NewServerConn:         func(conn net.Conn, e error) {},
	SSHChannelAccept:      func(conn net.Conn, e error) {},
	SubsystemRequestReply: func(e error) {},
}
