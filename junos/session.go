package junos

import (
	"context"

	"github.com/damianoneill/junosmgr/netconf/client"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ConfigSession is the configuration edit lifecycle of one device connection.
//
//	Closed --Begin--> Open --Commit--> Committed
//	  ^                |                  |
//	  +------End-------+-------End--------+
//
// Operations attempted in the wrong state fail with ErrConfigState without any device i/o.
// A ConfigSession is not safe for concurrent use.
type ConfigSession struct {
	h     *handle
	state State
	mode  Mode
}

// NewConfigSession delivers a Closed configuration session that executes its rpcs on s.
// Trace hooks are taken from ctx.
func NewConfigSession(ctx context.Context, s client.Session, target string) *ConfigSession {
	return newConfigSession(newHandle(s, target, ContextTrace(ctx)))
}

func newConfigSession(h *handle) *ConfigSession {
	return &ConfigSession{h: h}
}

// State delivers the current state.
func (cs *ConfigSession) State() State {
	return cs.state
}

// Mode delivers the mode the configuration was opened with, or "" when Closed.
func (cs *ConfigSession) Mode() Mode {
	return cs.mode
}

// Begin opens the candidate configuration in the given mode, acquiring the device
// configuration lock. The empty mode is shared.
func (cs *ConfigSession) Begin(mode Mode) error {
	const op = "open configuration"
	if cs.state != Closed {
		return stateError(op, cs.state)
	}

	mode = mode.Resolve()
	if !mode.valid() {
		return newError(op, ErrConfigState, errors.Errorf("invalid configuration mode %q", mode))
	}
	if !mode.Verified() {
		cs.h.trace.UnverifiedMode(cs.h.target, mode)
	}

	if _, err := cs.h.execute(op, ErrConfigLock, newOpenConfiguration(mode)); err != nil {
		return err
	}
	cs.mode = mode
	cs.setState(Open)
	return nil
}

// Stage merges configuration text, in Junos curly brace syntax, into the candidate configuration.
func (cs *ConfigSession) Stage(text string) error {
	const op = "load configuration"
	if cs.state != Open {
		return stateError(op, cs.state)
	}
	_, err := cs.h.execute(op, ErrConfigLoad, newLoadConfiguration(text))
	return err
}

// Commit makes the candidate configuration active. The configuration remains open.
// A Committed session may be committed again, for example to confirm a confirmed commit.
func (cs *ConfigSession) Commit(opts ...CommitOption) error {
	const op = "commit configuration"
	if cs.state == Closed {
		return stateError(op, cs.state)
	}

	req := &commitConfiguration{}
	for _, opt := range opts {
		opt(req)
	}
	if _, err := cs.h.execute(op, ErrCommit, req); err != nil {
		return err
	}
	cs.setState(Committed)
	return nil
}

// Check validates the candidate configuration without committing it.
func (cs *ConfigSession) Check() error {
	const op = "commit check"
	if cs.state != Open {
		return stateError(op, cs.state)
	}
	_, err := cs.h.execute(op, ErrCommit, &commitConfiguration{Check: &struct{}{}})
	return err
}

// Diff delivers the differences between the candidate and the active configuration,
// in Junos "show | compare" text format.
func (cs *ConfigSession) Diff() (string, error) {
	const op = "compare configuration"
	if cs.state == Closed {
		return "", stateError(op, cs.state)
	}
	doc, err := cs.h.execute(op, ErrConfigState, newGetConfigurationCompare())
	if err != nil {
		return "", err
	}
	return findText(doc, "//configuration-output"), nil
}

// End closes the configuration, releasing the device configuration lock.
// If the device refuses, the session stays as it was so that End can be retried. If the
// connection fails the session is Closed, as the device releases the lock with the connection.
func (cs *ConfigSession) End() error {
	const op = "close configuration"
	if cs.state == Closed {
		return stateError(op, cs.state)
	}

	if _, err := cs.h.execute(op, ErrConfigLock, &closeConfiguration{}); err != nil {
		if errors.Is(err, ErrConnection) {
			cs.reset()
		}
		return err
	}
	cs.reset()
	return nil
}

// CommitAndEnd commits, then ends the configuration whatever the outcome of the commit.
// A commit failure is always reported, combined with any failure to end.
func (cs *ConfigSession) CommitAndEnd(opts ...CommitOption) error {
	if cs.state == Closed {
		return stateError("commit and close", cs.state)
	}
	return multierr.Append(cs.Commit(opts...), cs.End())
}

// reset returns the session to Closed without any device i/o.
func (cs *ConfigSession) reset() {
	cs.mode = ""
	cs.setState(Closed)
}

func (cs *ConfigSession) setState(to State) {
	if from := cs.state; from != to {
		cs.state = to
		cs.h.trace.StateChange(cs.h.target, from, to)
	}
}
