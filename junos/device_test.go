package junos

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/damianoneill/junosmgr/junos/junostest"
	"github.com/damianoneill/junosmgr/junos/template"
	"github.com/damianoneill/junosmgr/netconf/client"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	assert "github.com/stretchr/testify/require"
)

const (
	testHost     = "10.0.0.1"
	testUser     = "root"
	testPassword = "x"
)

func newTestDevice(t *testing.T, opts ...junostest.Option) *junostest.Device {
	d, err := junostest.NewDevice(context.Background(), "localhost", 0, testUser, testPassword, opts...)
	assert.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// redirect delivers a Dialer that connects to the simulated device whatever the target.
func redirect(t *testing.T, d *junostest.Device, expectedTarget string) Dialer {
	return func(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *client.Config) (client.Session, error) {
		assert.Equal(t, expectedTarget, target)
		return client.NewRPCSessionWithConfig(ctx, sshcfg, d.Address(), cfg)
	}
}

func newTestClient(t *testing.T, d *junostest.Device, opts ...Option) *DeviceClient {
	return NewClient(testHost, testUser, testPassword, append([]Option{WithDialer(redirect(t, d, "10.0.0.1:830"))}, opts...)...)
}

func openTestClient(t *testing.T, d *junostest.Device, opts ...Option) *DeviceClient {
	dc := newTestClient(t, d, opts...)
	assert.NoError(t, dc.Open(context.Background()))
	t.Cleanup(func() { _ = dc.Close() })
	return dc
}

func TestEndToEnd(t *testing.T) {
	d := newTestDevice(t, junostest.WithConfiguration("system { host-name r1; }"))

	dc := newTestClient(t, d)
	assert.Equal(t, ConnectionParams{Host: testHost, Username: testUser, Password: testPassword}, dc.Params())
	assert.NoError(t, dc.Open(context.Background()))

	assert.NoError(t, dc.OpenConfig(ModePrivate))
	assert.Equal(t, Open, dc.ConfigState())

	assert.NoError(t, dc.LoadConfigTemplate("system { host-name {{ name }}; }", template.Vars{"name": "edge1"}))
	assert.Equal(t, []string{"system { host-name edge1; }"}, d.Loads())

	assert.NoError(t, dc.CommitConfig())
	assert.Equal(t, Committed, dc.ConfigState())
	assert.Equal(t, "system {\n    host-name edge1;\n}\n", d.Active())

	assert.NoError(t, dc.CloseConfig())
	assert.Equal(t, Closed, dc.ConfigState())
	assert.Equal(t, 0, d.Locks())

	assert.NoError(t, dc.Close())
	assert.Eventually(t, func() bool { return d.SessionCount() == 0 }, defaultWait, pollInterval)
}

func TestOpenCloseConfigAllModes(t *testing.T) {
	d := newTestDevice(t)

	for _, mode := range []Mode{ModeExclusive, ModePrivate, ModeShared} {
		t.Run(string(mode), func(t *testing.T) {
			dc := openTestClient(t, d)
			assert.NoError(t, dc.OpenConfig(mode))
			assert.Equal(t, 1, d.Locks())
			assert.NoError(t, dc.CloseConfig())
			assert.Equal(t, Closed, dc.ConfigState())
			assert.Equal(t, 0, d.Locks())
		})
	}
}

func TestOpenConfigDefaultMode(t *testing.T) {
	d := newTestDevice(t)

	dc := openTestClient(t, d, WithConfig(&Config{DefaultMode: ModeExclusive}))
	assert.NoError(t, dc.OpenConfig(""))

	// An exclusive lock stops anybody else opening the configuration.
	other := openTestClient(t, d)
	err := other.OpenConfig("")
	assert.True(t, errors.Is(err, ErrConfigLock))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, Closed, other.ConfigState())
}

func TestOpenConfigTwice(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)

	assert.NoError(t, dc.OpenConfig(ModeShared))
	requests := len(d.Requests())

	err := dc.OpenConfig(ModeShared)
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.True(t, IsMisuse(err))
	assert.Len(t, d.Requests(), requests)
}

func TestLoadBeforeOpenConfig(t *testing.T) {
	d := newTestDevice(t)

	renderer := &countingRenderer{Renderer: template.NewRenderer(true)}
	dc := openTestClient(t, d, WithRenderer(renderer))

	err := dc.LoadConfigTemplate("system { host-name {{ name }}; }", template.Vars{"name": "edge1"})
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.Empty(t, d.Requests())
	assert.Zero(t, renderer.calls)

	err = dc.LoadConfig("system { ntp; }")
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.Empty(t, d.Requests())
}

type countingRenderer struct {
	template.Renderer
	calls int
}

func (r *countingRenderer) Render(text string, vars template.Vars) (string, error) {
	r.calls++
	return r.Renderer.Render(text, vars)
}

func TestLoadTemplateErrors(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModePrivate))
	requests := len(d.Requests())

	for _, text := range []string{
		"system { host-name {{ name }}; }",
		"system { host-name {{ name ; }",
	} {
		err := dc.LoadConfigTemplate(text, template.Vars{})
		assert.True(t, errors.Is(err, ErrTemplate), text)
		assert.True(t, IsInputDefect(err))
	}
	assert.Len(t, d.Requests(), requests)
	assert.Equal(t, Open, dc.ConfigState())
}

func TestLenientTemplates(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d, WithConfig(&Config{LenientTemplates: true}))
	assert.NoError(t, dc.OpenConfig(ModePrivate))

	assert.NoError(t, dc.LoadConfigTemplate("system { {{ missing }} ntp; }", nil))
	assert.Equal(t, []string{"system {  ntp; }"}, d.Loads())
}

func TestLoadRejected(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModePrivate))

	err := dc.LoadConfig("system { host-name edge1 }")
	assert.True(t, errors.Is(err, ErrConfigLoad))
	assert.True(t, IsRejected(err))
	assert.Equal(t, Open, dc.ConfigState())
}

func TestCommitAndCloseWithFailingCommit(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModePrivate))
	assert.NoError(t, dc.LoadConfig("system { ntp; }"))

	d.FailRPC("commit-configuration", "commit failed")

	err := dc.CommitAndClose()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommit))
	assert.False(t, errors.Is(err, ErrConfigLock))
	assert.Equal(t, Closed, dc.ConfigState())
	assert.Equal(t, 0, d.Locks())
	assert.Empty(t, d.Commits())
}

func TestCommitAndClose(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModeExclusive))
	assert.NoError(t, dc.LoadConfig("system { ntp; }"))

	assert.NoError(t, dc.CommitAndClose(WithComment("ntp")))
	assert.Equal(t, Closed, dc.ConfigState())
	assert.Equal(t, 0, d.Locks())
	assert.Equal(t, "ntp", d.Commits()[0].Comment)
}

func TestCommitCheckAndDiff(t *testing.T) {
	d := newTestDevice(t, junostest.WithConfiguration("system { host-name r1; }"))
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModePrivate))
	assert.NoError(t, dc.LoadConfig("system { host-name edge1; }"))

	diff, err := dc.Diff()
	assert.NoError(t, err)
	assert.Equal(t, "[edit system]\n- host-name r1;\n+ host-name edge1;", diff)

	assert.NoError(t, dc.CommitCheck())
	assert.Empty(t, d.Commits())

	d.FailRPC("commit-configuration", "mgd: commit check failed")
	err = dc.CommitCheck()
	assert.True(t, errors.Is(err, ErrCommit))
	err = dc.CommitConfig()
	assert.True(t, errors.Is(err, ErrCommit))
	assert.Equal(t, Open, dc.ConfigState())
}

func TestCommitWithoutOpenConfig(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)

	assert.True(t, errors.Is(dc.CommitConfig(), ErrConfigState))
	assert.True(t, errors.Is(dc.CommitCheck(), ErrConfigState))
	assert.True(t, errors.Is(dc.CloseConfig(), ErrConfigState))
	assert.True(t, errors.Is(dc.CommitAndClose(), ErrConfigState))
	_, err := dc.Diff()
	assert.True(t, errors.Is(err, ErrConfigState))
	assert.Empty(t, d.Requests())
}

func TestNotConnected(t *testing.T) {
	dc := NewClient(testHost, testUser, testPassword)
	assert.Equal(t, "10.0.0.1:830", dc.Target())

	_, err := dc.Facts()
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = dc.RefreshFacts()
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = dc.Diff()
	assert.True(t, errors.Is(err, ErrNotConnected))

	for _, fn := range []func() error{
		func() error { return dc.OpenConfig(ModePrivate) },
		dc.CloseConfig,
		func() error { return dc.LoadConfigTemplate("x", nil) },
		func() error { return dc.LoadConfig("x") },
		func() error { return dc.CommitConfig() },
		dc.CommitCheck,
		func() error { return dc.CommitAndClose() },
	} {
		err := fn()
		assert.True(t, errors.Is(err, ErrNotConnected))
		assert.False(t, errors.Is(err, ErrConnection))
	}
	assert.Equal(t, Closed, dc.ConfigState())

	err = dc.Close()
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestFacts(t *testing.T) {
	d := newTestDevice(t, junostest.WithFacts(junostest.Facts{Hostname: "edge1", Model: "mx204", Version: "22.2R1.9", SerialNumber: "AB123"}))
	dc := openTestClient(t, d)

	facts, err := dc.Facts()
	assert.NoError(t, err)
	assert.Equal(t, Facts{FactHostname: "edge1", FactModel: "mx204", FactVersion: "22.2R1.9", FactSerialNumber: "AB123"}, facts)
	requests := len(d.Requests())

	// Facts are cached on the connection, and callers get their own copy.
	facts[FactHostname] = "changed"
	again, err := dc.Facts()
	assert.NoError(t, err)
	assert.Equal(t, "edge1", again[FactHostname])
	assert.Len(t, d.Requests(), requests)

	_, err = dc.RefreshFacts()
	assert.NoError(t, err)
	assert.Len(t, d.Requests(), requests+2)
}

func TestFactsFailure(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)

	d.FailRPC("get-chassis-inventory", "permission denied")
	_, err := dc.Facts()
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestOpenFailures(t *testing.T) {
	d := newTestDevice(t)

	dc := NewClient(testHost, testUser, "wrong", WithDialer(redirect(t, d, "10.0.0.1:830")), WithConfig(&Config{SetupTimeoutSecs: 2}))
	err := dc.Open(context.Background())
	assert.True(t, errors.Is(err, ErrConnection))
	assert.True(t, IsRetryable(err))

	dc = NewClient(d.Address(), testUser, testPassword)
	assert.Equal(t, d.Address(), dc.Target())
	assert.NoError(t, dc.Open(context.Background()))
	err = dc.Open(context.Background())
	assert.True(t, errors.Is(err, ErrConnection))

	assert.NoError(t, dc.Close())
	err = dc.Close()
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestCloseAbandonsConfig(t *testing.T) {
	d := newTestDevice(t)
	dc := newTestClient(t, d)
	assert.NoError(t, dc.Open(context.Background()))
	assert.NoError(t, dc.OpenConfig(ModeExclusive))

	assert.NoError(t, dc.Close())
	assert.Equal(t, Closed, dc.ConfigState())
	assert.Eventually(t, func() bool { return d.Locks() == 0 }, defaultWait, pollInterval)

	// The client can be opened again.
	assert.NoError(t, dc.Open(context.Background()))
	assert.NoError(t, dc.OpenConfig(ModeExclusive))
	assert.NoError(t, dc.Close())
}

func TestConnectionLost(t *testing.T) {
	d := newTestDevice(t)
	dc := openTestClient(t, d)
	assert.NoError(t, dc.OpenConfig(ModePrivate))

	d.Close()

	err := dc.LoadConfig("system { ntp; }")
	assert.True(t, errors.Is(err, ErrConnection))
	err = dc.CloseConfig()
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Equal(t, Closed, dc.ConfigState())
}

func TestLoggingHooks(t *testing.T) {
	buf := &logBuffer{}
	prevOut, prevLevel := log.StandardLogger().Out, log.GetLevel()
	log.SetOutput(buf)
	log.SetLevel(log.DebugLevel)
	defer func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
	}()

	d := newTestDevice(t)
	d.WarnRPC("load-configuration", "statement has no contents; ignored")

	dc := newTestClient(t, d)
	assert.NoError(t, dc.Open(WithTrace(context.Background(), DiagnosticLoggingHooks)))
	assert.NoError(t, dc.OpenConfig("batch"))
	assert.NoError(t, dc.LoadConfigTemplate("system { host-name {{ name }}; }", template.Vars{"name": "edge1"}))
	assert.True(t, errors.Is(dc.OpenConfig(ModePrivate), ErrConfigState))
	assert.NoError(t, dc.Close())

	out := buf.String()
	for _, event := range []string{
		"JUNOS-OpStart", "JUNOS-OpDone", "JUNOS-StateChange", "JUNOS-Rendered",
		"JUNOS-Warning", "JUNOS-UnverifiedMode",
	} {
		assert.Contains(t, out, event)
	}
	assert.Contains(t, out, "mode=batch")
	assert.Contains(t, out, "statement has no contents")
}

// logBuffer collects log output written from any goroutine.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
