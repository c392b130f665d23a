package junos

import (
	"fmt"

	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/pkg/errors"
)

// Error kinds. Every error delivered by this package matches exactly one of them with errors.Is.
var (
	// ErrConnection reports a failure to connect to, or disconnect from, the device.
	ErrConnection = errors.New("connection error")
	// ErrNotConnected reports an operation attempted before a connection exists.
	ErrNotConnected = errors.New("not connected")
	// ErrConfigLock reports that the device refused a configuration lock.
	ErrConfigLock = errors.New("configuration lock error")
	// ErrConfigState reports an operation attempted in the wrong configuration state.
	ErrConfigState = errors.New("configuration state error")
	// ErrConfigLoad reports that the device rejected candidate configuration.
	ErrConfigLoad = errors.New("configuration load error")
	// ErrTemplate reports a template rendering failure.
	ErrTemplate = errors.New("template error")
	// ErrCommit reports that the device failed to commit the candidate configuration.
	ErrCommit = errors.New("commit error")
)

// Error is the concrete error type delivered by DeviceClient and ConfigSession.
// It carries the operation that failed, the error kind and the underlying cause, which may be
// a *common.RPCError, a template error or a transport error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap delivers the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// rpcError classifies the failure of an rpc. A device rejection is reported with the supplied
// kind, anything else means the connection failed.
func rpcError(op string, kind, err error) *Error {
	var rpcErr *common.RPCError
	if errors.As(err, &rpcErr) {
		return newError(op, kind, err)
	}
	return newError(op, ErrConnection, err)
}

func stateError(op string, state State) *Error {
	return newError(op, ErrConfigState, errors.Errorf("not permitted in state %s", state))
}

// IsRetryable reports whether err may succeed if the operation is retried later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrConfigLock)
}

// IsInputDefect reports whether err was caused by the caller supplied template or variables.
func IsInputDefect(err error) bool {
	return errors.Is(err, ErrTemplate)
}

// IsRejected reports whether the device rejected the configuration content.
func IsRejected(err error) bool {
	return errors.Is(err, ErrConfigLoad) || errors.Is(err, ErrCommit)
}

// IsMisuse reports whether err was caused by calling an operation out of sequence.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConfigState)
}
