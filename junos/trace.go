package junos

import (
	"context"
	"time"

	"github.com/damianoneill/junosmgr/netconf/common"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
)

// unique type to prevent assignment.
type junosEventContextKey struct{}

// ContextTrace returns the Trace associated with the
// provided context. If none, it returns NoOpLoggingHooks.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(junosEventContextKey{}).(*Trace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithTrace returns a new context based on the provided parent
// ctx. Clients opened with the returned context will use
// the provided trace hooks
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, junosEventContextKey{}, trace)
}

// Trace defines a structure for handling device client events
type Trace struct {
	// OpStart is called when a device operation starts.
	OpStart func(target, op string)

	// OpDone is called when a device operation completes, with err indicating
	// whether it was successful.
	OpDone func(target, op string, err error, d time.Duration)

	// StateChange is called when the configuration session changes state.
	StateChange func(target string, from, to State)

	// Warning is called for each rpc-error with warning severity returned by the device.
	Warning func(target, op string, warning *common.RPCError)

	// UnverifiedMode is called when a configuration is opened with a mode that is not one of
	// the supported modes.
	UnverifiedMode func(target string, mode Mode)

	// Rendered is called with the text produced by rendering a configuration template.
	Rendered func(target, text string)
}

// DefaultLoggingHooks provides a default logging hook to report errors and warnings.
var DefaultLoggingHooks = &Trace{
	OpDone: func(target, op string, err error, d time.Duration) {
		if err != nil {
			log.WithFields(log.Fields{"target": target, "op": op}).WithError(err).Error("JUNOS-OpFailed")
		}
	},
	Warning: func(target, op string, w *common.RPCError) {
		log.WithFields(log.Fields{"target": target, "op": op, "message": w.Message}).Warn("JUNOS-Warning")
	},
	UnverifiedMode: func(target string, mode Mode) {
		log.WithFields(log.Fields{"target": target, "mode": mode}).Warn("JUNOS-UnverifiedMode")
	},
}

// MetricLoggingHooks provides a set of hooks that log operation durations.
var MetricLoggingHooks = &Trace{
	OpDone: func(target, op string, err error, d time.Duration) {
		log.WithFields(log.Fields{"target": target, "op": op, "err": err, "took_ms": d.Milliseconds()}).Info("JUNOS-OpDone")
	},
	Warning:        DefaultLoggingHooks.Warning,
	UnverifiedMode: DefaultLoggingHooks.UnverifiedMode,
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &Trace{
	OpStart: func(target, op string) {
		log.WithFields(log.Fields{"target": target, "op": op}).Debug("JUNOS-OpStart")
	},
	OpDone: MetricLoggingHooks.OpDone,
	StateChange: func(target string, from, to State) {
		log.WithFields(log.Fields{"target": target, "from": from, "to": to}).Debug("JUNOS-StateChange")
	},
	Warning:        DefaultLoggingHooks.Warning,
	UnverifiedMode: DefaultLoggingHooks.UnverifiedMode,
	Rendered: func(target, text string) {
		log.WithFields(log.Fields{"target": target, "text": text}).Debug("JUNOS-Rendered")
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	OpStart:        func(target, op string) {},
	OpDone:         func(target, op string, err error, d time.Duration) {},
	StateChange:    func(target string, from, to State) {},
	Warning:        func(target, op string, w *common.RPCError) {},
	UnverifiedMode: func(target string, mode Mode) {},
	Rendered:       func(target, text string) {},
}
