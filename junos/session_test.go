package junos

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"testing"

	"github.com/damianoneill/junosmgr/netconf/client/mocks"
	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"

	assert "github.com/stretchr/testify/require"
)

// rpcMatcher matches a request by its xml encoding.
type rpcMatcher struct {
	expected string
}

func rpc(expected string) gomock.Matcher {
	return &rpcMatcher{expected: expected}
}

func (m *rpcMatcher) Matches(x interface{}) bool {
	b, err := xml.Marshal(x)
	return err == nil && string(b) == m.expected
}

func (m *rpcMatcher) String() string {
	return "is rpc " + m.expected
}

var okReply = &common.RPCReply{Ok: &struct{}{}, Data: "<ok/>"}

func errorReply(severity, message string) (*common.RPCReply, error) {
	rpcErr := common.RPCError{Type: "application", Tag: "operation-failed", Severity: severity, Message: message}
	reply := &common.RPCReply{
		Errors: []common.RPCError{rpcErr},
		Data: fmt.Sprintf("<rpc-error><error-type>application</error-type><error-tag>operation-failed</error-tag>"+
			"<error-severity>%s</error-severity><error-message>%s</error-message></rpc-error>", severity, message),
	}
	if severity == common.SeverityError {
		return reply, &reply.Errors[0]
	}
	return reply, nil
}

const (
	openPrivate  = `<open-configuration><private/></open-configuration>`
	closeConfig  = `<close-configuration></close-configuration>`
	commitConfig = `<commit-configuration></commit-configuration>`
)

func newMockConfigSession(t *testing.T, ctx context.Context) (*ConfigSession, *mocks.MockSession) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	ms := mocks.NewMockSession(ctrl)
	return NewConfigSession(ctx, ms, "r1:830"), ms
}

func openSession(t *testing.T, ctx context.Context) (*ConfigSession, *mocks.MockSession) {
	cs, ms := newMockConfigSession(t, ctx)
	ms.EXPECT().Execute(rpc(openPrivate)).Return(okReply, nil)
	assert.NoError(t, cs.Begin(ModePrivate))
	assert.Equal(t, Open, cs.State())
	assert.Equal(t, ModePrivate, cs.Mode())
	return cs, ms
}

func TestBeginEnd(t *testing.T) {
	for _, mode := range []Mode{ModeExclusive, ModePrivate, ModeShared, ""} {
		t.Run(string(mode.Resolve()), func(t *testing.T) {
			cs, ms := newMockConfigSession(t, context.Background())

			gomock.InOrder(
				ms.EXPECT().Execute(rpc(fmt.Sprintf("<open-configuration><%s/></open-configuration>", mode.Resolve()))).Return(okReply, nil),
				ms.EXPECT().Execute(rpc(closeConfig)).Return(okReply, nil),
			)

			assert.NoError(t, cs.Begin(mode))
			assert.Equal(t, Open, cs.State())
			assert.NoError(t, cs.End())
			assert.Equal(t, Closed, cs.State())
			assert.Equal(t, Mode(""), cs.Mode())
		})
	}
}

func TestBeginTwice(t *testing.T) {
	cs, _ := openSession(t, context.Background())

	// No further rpc is expected by the mock.
	err := cs.Begin(ModePrivate)
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.Equal(t, Open, cs.State())
}

func TestBeginLockDenied(t *testing.T) {
	cs, ms := newMockConfigSession(t, context.Background())
	ms.EXPECT().Execute(rpc(`<open-configuration><exclusive/></open-configuration>`)).Return(errorReply(common.SeverityError, "configuration database locked"))

	err := cs.Begin(ModeExclusive)
	assert.True(t, errors.Is(err, ErrConfigLock))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, Closed, cs.State())
}

func TestBeginInvalidMode(t *testing.T) {
	cs, _ := newMockConfigSession(t, context.Background())

	err := cs.Begin("private/><commit-configuration")
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.Equal(t, Closed, cs.State())
}

func TestBeginUnverifiedMode(t *testing.T) {
	var unverified Mode
	ctx := WithTrace(context.Background(), &Trace{UnverifiedMode: func(target string, mode Mode) { unverified = mode }})
	cs, ms := newMockConfigSession(t, ctx)
	ms.EXPECT().Execute(rpc(`<open-configuration><batch/></open-configuration>`)).Return(okReply, nil)

	assert.NoError(t, cs.Begin("batch"))
	assert.Equal(t, Mode("batch"), unverified)
}

func TestStage(t *testing.T) {
	cs, ms := openSession(t, context.Background())

	gomock.InOrder(
		ms.EXPECT().Execute(rpc(`<load-configuration action="merge" format="text"><configuration-text>system { host-name edge1; }</configuration-text></load-configuration>`)).
			Return(&common.RPCReply{Data: "<load-configuration-results><load-success/></load-configuration-results>"}, nil),
		ms.EXPECT().Execute(rpc(`<load-configuration action="merge" format="text"><configuration-text>system { ntp { server 10.0.0.1; } }</configuration-text></load-configuration>`)).
			Return(&common.RPCReply{Data: "<load-configuration-results><load-success/></load-configuration-results>"}, nil),
	)

	assert.NoError(t, cs.Stage("system { host-name edge1; }"))
	assert.NoError(t, cs.Stage("system { ntp { server 10.0.0.1; } }"))
	assert.Equal(t, Open, cs.State())
}

func TestStageEscapesText(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	ms.EXPECT().Execute(rpc(`<load-configuration action="merge" format="text"><configuration-text>system { login { message &#34;a &lt; b &amp; c&#34;; } }</configuration-text></load-configuration>`)).
		Return(&common.RPCReply{Data: "<load-configuration-results><load-success/></load-configuration-results>"}, nil)

	assert.NoError(t, cs.Stage(`system { login { message "a < b & c"; } }`))
}

func TestStageRejected(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	ms.EXPECT().Execute(gomock.Any()).Return(&common.RPCReply{Data: "<load-configuration-results>" +
		"<rpc-error><error-severity>error</error-severity><error-message>syntax error</error-message></rpc-error>" +
		"<load-error-count>1</load-error-count></load-configuration-results>"}, nil)

	err := cs.Stage("system { host-name")
	assert.True(t, errors.Is(err, ErrConfigLoad))
	assert.True(t, IsRejected(err))

	var rpcErr *common.RPCError
	assert.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "syntax error", rpcErr.Message)
	assert.Equal(t, Open, cs.State())
}

func TestStageWhenClosed(t *testing.T) {
	cs, _ := newMockConfigSession(t, context.Background())
	err := cs.Stage("system { ntp; }")
	assert.True(t, errors.Is(err, ErrConfigState))
}

func TestWarningsDoNotFail(t *testing.T) {
	var warnings []string
	ctx := WithTrace(context.Background(), &Trace{Warning: func(target, op string, w *common.RPCError) {
		warnings = append(warnings, op+": "+w.Message)
	}})
	cs, ms := openSession(t, ctx)
	ms.EXPECT().Execute(gomock.Any()).Return(errorReply(common.SeverityWarning, "statement not found"))

	assert.NoError(t, cs.Stage("system { ntp; }"))
	assert.Equal(t, []string{"load configuration: statement not found"}, warnings)
}

func TestCommit(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	gomock.InOrder(
		ms.EXPECT().Execute(rpc(`<commit-configuration><confirmed></confirmed><confirm-timeout>5</confirm-timeout><log>change 42</log></commit-configuration>`)).Return(okReply, nil),
		ms.EXPECT().Execute(rpc(commitConfig)).Return(okReply, nil),
	)

	assert.NoError(t, cs.Commit(WithComment("change 42"), WithConfirmed(5)))
	assert.Equal(t, Committed, cs.State())

	// Confirm the commit.
	assert.NoError(t, cs.Commit())
	assert.Equal(t, Committed, cs.State())
}

func TestCommitRejected(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	ms.EXPECT().Execute(rpc(commitConfig)).Return(errorReply(common.SeverityError, "commit failed"))

	err := cs.Commit()
	assert.True(t, errors.Is(err, ErrCommit))
	assert.Equal(t, Open, cs.State())
}

func TestCommitWhenClosed(t *testing.T) {
	cs, _ := newMockConfigSession(t, context.Background())
	assert.True(t, errors.Is(cs.Commit(), ErrConfigState))
	assert.True(t, errors.Is(cs.Check(), ErrConfigState))
	_, err := cs.Diff()
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.True(t, errors.Is(cs.End(), ErrConfigState))
	assert.True(t, errors.Is(cs.CommitAndEnd(), ErrConfigState))
}

func TestCheck(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	gomock.InOrder(
		ms.EXPECT().Execute(rpc(`<commit-configuration><check></check></commit-configuration>`)).Return(okReply, nil),
		ms.EXPECT().Execute(rpc(`<commit-configuration><check></check></commit-configuration>`)).Return(errorReply(common.SeverityError, "mgd: missing mandatory statement")),
	)

	assert.NoError(t, cs.Check())
	err := cs.Check()
	assert.True(t, errors.Is(err, ErrCommit))
	assert.Equal(t, Open, cs.State())
}

func TestDiff(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	ms.EXPECT().Execute(rpc(`<get-configuration compare="rollback" rollback="0" format="text"></get-configuration>`)).
		Return(&common.RPCReply{Data: "<configuration-information><configuration-output>\n[edit system]\n+ ntp;\n</configuration-output></configuration-information>"}, nil)

	diff, err := cs.Diff()
	assert.NoError(t, err)
	assert.Equal(t, "[edit system]\n+ ntp;", diff)
}

func TestEndRejectedKeepsState(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	gomock.InOrder(
		ms.EXPECT().Execute(rpc(closeConfig)).Return(errorReply(common.SeverityError, "configuration database busy")),
		ms.EXPECT().Execute(rpc(closeConfig)).Return(okReply, nil),
	)

	err := cs.End()
	assert.True(t, errors.Is(err, ErrConfigLock))
	assert.Equal(t, Open, cs.State())

	assert.NoError(t, cs.End())
	assert.Equal(t, Closed, cs.State())
}

func TestEndConnectionFailureCloses(t *testing.T) {
	cs, ms := openSession(t, context.Background())
	ms.EXPECT().Execute(rpc(closeConfig)).Return(nil, io.ErrUnexpectedEOF)

	err := cs.End()
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Equal(t, Closed, cs.State())
}

func TestCommitAndEnd(t *testing.T) {
	for _, tc := range []struct {
		name      string
		commitErr bool
		endErr    bool
		state     State
	}{
		{"Success", false, false, Closed},
		{"CommitFails", true, false, Closed},
		{"EndFails", false, true, Committed},
		{"BothFail", true, true, Open},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var states []State
			ctx := WithTrace(context.Background(), &Trace{StateChange: func(target string, from, to State) { states = append(states, to) }})
			cs, ms := openSession(t, ctx)

			commit := ms.EXPECT().Execute(rpc(commitConfig))
			if tc.commitErr {
				commit.Return(errorReply(common.SeverityError, "commit failed"))
			} else {
				commit.Return(okReply, nil)
			}
			end := ms.EXPECT().Execute(rpc(closeConfig)).After(commit)
			if tc.endErr {
				end.Return(errorReply(common.SeverityError, "close failed"))
			} else {
				end.Return(okReply, nil)
			}

			err := cs.CommitAndEnd()
			assert.Equal(t, tc.commitErr || tc.endErr, err != nil)
			assert.Equal(t, tc.commitErr, errors.Is(err, ErrCommit))
			assert.Equal(t, tc.endErr, errors.Is(err, ErrConfigLock))
			assert.Equal(t, tc.state, cs.State())
			assert.Equal(t, Open, states[0])
		})
	}
}
