package client

import (
	"context"
	"time"

	"github.com/damianoneill/junosmgr/netconf/common"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the
// provided context. If none, it returns NoOpLoggingHooks.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. Netconf client requests made with the returned context will use
// the provided trace hooks
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientEventContextKey{}, trace)
}

// ClientTrace defines a structure for handling trace events
//
//nolint:revive
type ClientTrace struct {
	// ConnectStart is called when starting to create a netconf connection to a remote server.
	ConnectStart func(target string)

	// ConnectDone is called when the transport connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(target string, err error, d time.Duration)

	// DialStart is called when starting to dial a remote server.
	DialStart func(target string)

	// DialDone is called when dial completes.
	DialDone func(target string, err error, d time.Duration)

	// HelloDone is called when the hello message has been received from the server.
	HelloDone func(msg *common.HelloMessage)

	// ConnectionClosed is called after a transport connection has been closed, with
	// err indicating any error condition.
	ConnectionClosed func(target string, err error)

	// ReadStart is called before a read from the underlying transport.
	ReadStart func(buf []byte)

	// ReadDone is called after a read from the underlying transport.
	ReadDone func(buf []byte, c int, err error, d time.Duration)

	// WriteStart is called before a write to the underlying transport.
	WriteStart func(buf []byte)

	// WriteDone is called after a write to the underlying transport.
	WriteDone func(buf []byte, c int, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(context, target string, err error)

	// ExecuteStart is called before the execution of an rpc request.
	ExecuteStart func(req common.Request)

	// ExecuteDone is called after the execution of an rpc request.
	ExecuteDone func(req common.Request, res *common.RPCReply, err error, d time.Duration)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		log.WithFields(log.Fields{"context": context, "target": target}).WithError(err).Error("NETCONF-Error")
	},
}

// MetricLoggingHooks provides a set of hooks that will log network metrics.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(target string, err error, d time.Duration) {
		log.WithFields(log.Fields{"target": target, "err": err, "took_ms": d.Milliseconds()}).Info("NETCONF-ConnectDone")
	},
	DialDone: func(target string, err error, d time.Duration) {
		log.WithFields(log.Fields{"target": target, "err": err, "took_ms": d.Milliseconds()}).Info("NETCONF-DialDone")
	},
	ReadDone: func(p []byte, c int, err error, d time.Duration) {
		log.WithFields(log.Fields{"len": c, "err": err, "took_ms": d.Milliseconds()}).Info("NETCONF-ReadDone")
	},
	WriteDone: func(p []byte, c int, err error, d time.Duration) {
		log.WithFields(log.Fields{"len": c, "err": err, "took_ms": d.Milliseconds()}).Info("NETCONF-WriteDone")
	},

	Error: DefaultLoggingHooks.Error,

	ExecuteDone: func(req common.Request, res *common.RPCReply, err error, d time.Duration) {
		log.WithFields(log.Fields{"rpc": common.RequestName(req), "err": err, "took_ms": d.Milliseconds()}).Info("NETCONF-ExecuteDone")
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		log.WithField("target", target).Debug("NETCONF-ConnectStart")
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	DialStart: func(target string) {
		log.WithField("target", target).Debug("NETCONF-DialStart")
	},
	DialDone: MetricLoggingHooks.DialDone,
	HelloDone: func(msg *common.HelloMessage) {
		log.WithFields(log.Fields{"session_id": msg.SessionID, "capabilities": len(msg.Capabilities)}).Debug("NETCONF-HelloDone")
	},
	ConnectionClosed: func(target string, err error) {
		log.WithFields(log.Fields{"target": target, "err": err}).Debug("NETCONF-ConnectionClosed")
	},
	ReadStart: func(p []byte) {
		log.WithField("capacity", len(p)).Debug("NETCONF-ReadStart")
	},
	ReadDone: MetricLoggingHooks.ReadDone,
	WriteStart: func(p []byte) {
		log.WithField("len", len(p)).Debug("NETCONF-WriteStart")
	},
	WriteDone: MetricLoggingHooks.WriteDone,

	Error: DefaultLoggingHooks.Error,

	ExecuteStart: func(req common.Request) {
		log.WithField("rpc", common.RequestName(req)).Debug("NETCONF-ExecuteStart")
	},
	ExecuteDone: MetricLoggingHooks.ExecuteDone,
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(target string) {},
	ConnectDone:      func(target string, err error, d time.Duration) {},
	DialStart:        func(target string) {},
	DialDone:         func(target string, err error, d time.Duration) {},
	ConnectionClosed: func(target string, err error) {},
	HelloDone:        func(msg *common.HelloMessage) {},
	ReadStart:        func(p []byte) {},
	ReadDone:         func(p []byte, c int, err error, d time.Duration) {},
	WriteStart:       func(p []byte) {},
	WriteDone:        func(p []byte, c int, err error, d time.Duration) {},
	Error:            func(context, target string, err error) {},
	ExecuteStart:     func(req common.Request) {},
	ExecuteDone:      func(req common.Request, res *common.RPCReply, err error, d time.Duration) {},
}
