package netconf

import (
	"context"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
)

// unique type to prevent assignment.
type netconfEventContextKey struct{}

// ContextNetconfTrace returns the Trace associated with the
// provided context. If none, it returns NoOpLoggingHooks.
func ContextNetconfTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(netconfEventContextKey{}).(*Trace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithTrace returns a new context based on the provided parent
// ctx. Servers created with the returned context will use
// the provided trace hooks
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, netconfEventContextKey{}, trace)
}

// Trace defines a structure for handling trace events
type Trace struct {
	StartSession func(s *SessionHandler)
	EndSession   func(s *SessionHandler, e error)
	ClientHello  func(s *SessionHandler)
	Encoded      func(s *SessionHandler, e error)
	Decoded      func(s *SessionHandler, e error)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &Trace{
	ClientHello: func(s *SessionHandler) {
		if s.ClientHello == nil {
			log.WithField("id", s.sid).Warn("ClientHello not received")
		}
	},
	EndSession: func(s *SessionHandler, e error) {
		if e != nil {
			log.WithField("id", s.sid).WithError(e).Error("EndSession")
		}
	},
	Encoded: func(s *SessionHandler, e error) {
		if e != nil {
			log.WithField("id", s.sid).WithError(e).Warn("Encoded")
		}
	},
	Decoded: func(s *SessionHandler, e error) {
		if e != nil {
			log.WithField("id", s.sid).WithError(e).Warn("Decoded")
		}
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &Trace{
	ClientHello: func(s *SessionHandler) {
		log.WithFields(log.Fields{"id": s.sid, "message": s.ClientHello}).Debug("ClientHello")
	},
	StartSession: func(s *SessionHandler) {
		log.WithFields(log.Fields{"id": s.sid, "remote": s.svrcon.RemoteAddr()}).Debug("StartSession")
	},
	EndSession: func(s *SessionHandler, e error) {
		log.WithFields(log.Fields{"id": s.sid, "err": e}).Debug("EndSession")
	},
	Encoded: func(s *SessionHandler, e error) {
		log.WithFields(log.Fields{"id": s.sid, "err": e}).Trace("Encoded")
	},
	Decoded: func(s *SessionHandler, e error) {
		log.WithFields(log.Fields{"id": s.sid, "err": e}).Trace("Decoded")
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	StartSession: func(s *SessionHandler) {},
	ClientHello:  func(s *SessionHandler) {},
	EndSession:   func(s *SessionHandler, e error) {},
	Encoded:      func(s *SessionHandler, e error) {},
	Decoded:      func(s *SessionHandler, e error) {},
}
