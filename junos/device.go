// Package junos manages the configuration of a Junos device over NETCONF.
package junos

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/damianoneill/junosmgr/junos/template"
	"github.com/damianoneill/junosmgr/netconf/client"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// ConnectionParams identifies a device and the credentials used to connect to it.
type ConnectionParams struct {
	// Host is a host name or address, optionally with a :port suffix.
	Host     string
	Username string
	Password string
}

// Dialer establishes the netconf session to the device. client.NewRPCSessionWithConfig is used
// by default.
type Dialer func(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *client.Config) (client.Session, error)

// Option customises a DeviceClient.
type Option func(*DeviceClient)

// WithConfig overrides the default configuration. Unset values take their defaults.
func WithConfig(cfg *Config) Option {
	return func(dc *DeviceClient) {
		if cfg != nil {
			dc.cfg = cfg
		}
	}
}

// WithRenderer overrides the template renderer.
func WithRenderer(r template.Renderer) Option {
	return func(dc *DeviceClient) {
		dc.renderer = r
	}
}

// WithDialer overrides how the netconf session is established.
func WithDialer(d Dialer) Option {
	return func(dc *DeviceClient) {
		dc.dialer = d
	}
}

// DeviceClient manages one connection to a Junos device and at most one open configuration
// on it. A DeviceClient is not safe for concurrent use.
type DeviceClient struct {
	params   ConnectionParams
	cfg      *Config
	renderer template.Renderer
	dialer   Dialer
	trace    *Trace
	target   string

	h      *handle
	config *ConfigSession
}

// NewClient delivers an unconnected client for the device at host. No i/o is performed.
func NewClient(host, username, password string, opts ...Option) *DeviceClient {
	dc := &DeviceClient{
		params: ConnectionParams{Host: host, Username: username, Password: password},
		cfg:    &Config{},
		dialer: client.NewRPCSessionWithConfig,
		trace:  NoOpLoggingHooks,
	}
	for _, opt := range opts {
		opt(dc)
	}

	// Use supplied config, but apply any defaults to unspecified values.
	resolved := *dc.cfg
	_ = mergo.Merge(&resolved, DefaultConfig)
	dc.cfg = &resolved

	if dc.renderer == nil {
		dc.renderer = template.NewRenderer(!dc.cfg.LenientTemplates)
	}
	dc.target = targetAddress(host, dc.cfg.Port)
	return dc
}

func targetAddress(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Params delivers the connection parameters.
func (dc *DeviceClient) Params() ConnectionParams {
	return dc.params
}

// Target delivers the address the client connects to.
func (dc *DeviceClient) Target() string {
	return dc.target
}

// Open connects to the device. Trace hooks for the connection are taken from ctx, which also
// bounds the tcp connect.
func (dc *DeviceClient) Open(ctx context.Context) (err error) {
	const op = "open"
	if dc.h != nil {
		return newError(op, ErrConnection, errors.New("connection already open"))
	}

	dc.trace = ContextTrace(ctx)
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))

	sshcfg := &ssh.ClientConfig{
		User: dc.params.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(dc.params.Password),
			ssh.KeyboardInteractive(dc.answerPassword),
		},
		HostKeyCallback: dc.cfg.HostKeyCallback,
		Timeout:         time.Duration(dc.cfg.SetupTimeoutSecs) * time.Second,
	}
	ncCfg := &client.Config{SetupTimeoutSecs: dc.cfg.SetupTimeoutSecs, DisableChunkedCodec: dc.cfg.DisableChunkedCodec}

	s, derr := dc.dialer(ctx, sshcfg, dc.target, ncCfg)
	if derr != nil {
		return newError(op, ErrConnection, derr)
	}

	dc.h = newHandle(s, dc.target, dc.trace)
	dc.config = newConfigSession(dc.h)
	return nil
}

// answerPassword answers every keyboard-interactive question with the password.
func (dc *DeviceClient) answerPassword(user, instruction string, questions []string, echos []bool) ([]string, error) {
	answers := make([]string, len(questions))
	for i := range answers {
		answers[i] = dc.params.Password
	}
	return answers, nil
}

// Close disconnects from the device. Any open configuration is abandoned and the device
// releases its lock with the connection.
func (dc *DeviceClient) Close() (err error) {
	const op = "close"
	if dc.h == nil {
		return newError(op, ErrConnection, errors.New("connection is not open"))
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))

	dc.config.reset()
	cerr := dc.h.session.Close()
	dc.h, dc.config = nil, nil
	if cerr != nil {
		return newError(op, ErrConnection, cerr)
	}
	return nil
}

// Facts delivers the device facts, gathering them from the device on first use.
func (dc *DeviceClient) Facts() (facts Facts, err error) {
	const op = "facts"
	if dc.h == nil {
		return nil, newError(op, ErrNotConnected, nil)
	}
	if dc.h.facts != nil {
		return dc.h.facts.copy(), nil
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.h.gatherFacts(op)
}

// RefreshFacts gathers the device facts again.
func (dc *DeviceClient) RefreshFacts() (facts Facts, err error) {
	const op = "refresh facts"
	if dc.h == nil {
		return nil, newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.h.gatherFacts(op)
}

// ConfigState delivers the state of the configuration session.
func (dc *DeviceClient) ConfigState() State {
	if dc.config == nil {
		return Closed
	}
	return dc.config.State()
}

// OpenConfig opens the candidate configuration in mode, or in the configured default mode when
// mode is empty.
func (dc *DeviceClient) OpenConfig(mode Mode) (err error) {
	const op = "open configuration"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))

	if mode == "" {
		mode = dc.cfg.DefaultMode
	}
	return dc.config.Begin(mode)
}

// CloseConfig closes the candidate configuration, releasing the lock.
func (dc *DeviceClient) CloseConfig() (err error) {
	const op = "close configuration"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.End()
}

// LoadConfigTemplate renders text with vars and merges the result into the candidate
// configuration. Nothing is rendered unless the configuration is open.
func (dc *DeviceClient) LoadConfigTemplate(text string, vars template.Vars) (err error) {
	const op = "load configuration template"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	if state := dc.config.State(); state != Open {
		return stateError(op, state)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))

	rendered, rerr := dc.renderer.Render(text, vars)
	if rerr != nil {
		return newError(op, ErrTemplate, rerr)
	}
	dc.trace.Rendered(dc.target, rendered)
	return dc.config.Stage(rendered)
}

// LoadConfig merges text into the candidate configuration.
func (dc *DeviceClient) LoadConfig(text string) (err error) {
	const op = "load configuration"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.Stage(text)
}

// CommitConfig commits the candidate configuration.
func (dc *DeviceClient) CommitConfig(opts ...CommitOption) (err error) {
	const op = "commit configuration"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.Commit(opts...)
}

// CommitCheck validates the candidate configuration without committing it.
func (dc *DeviceClient) CommitCheck() (err error) {
	const op = "commit check"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.Check()
}

// Diff delivers the differences between the candidate and active configurations.
func (dc *DeviceClient) Diff() (diff string, err error) {
	const op = "compare configuration"
	if dc.h == nil {
		return "", newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.Diff()
}

// CommitAndClose commits the candidate configuration and then closes it, even if the commit
// failed. A commit failure is always reported.
func (dc *DeviceClient) CommitAndClose(opts ...CommitOption) (err error) {
	const op = "commit and close"
	if dc.h == nil {
		return newError(op, ErrNotConnected, nil)
	}
	defer func(begin time.Time) { dc.done(op, begin, err) }(dc.start(op))
	return dc.config.CommitAndEnd(opts...)
}

func (dc *DeviceClient) start(op string) time.Time {
	dc.trace.OpStart(dc.target, op)
	return time.Now()
}

func (dc *DeviceClient) done(op string, begin time.Time, err error) {
	dc.trace.OpDone(dc.target, op, err, time.Since(begin))
}
