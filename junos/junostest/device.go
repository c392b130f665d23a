// Package junostest provides an in-process Junos device that speaks NETCONF over SSH, for
// testing device clients.
package junostest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/damianoneill/junosmgr/netconf/server/netconf"
	"github.com/damianoneill/junosmgr/netconf/server/ssh"
)

// Junos specific capabilities advertised by the device.
const (
	CapJunos    = "http://xml.juniper.net/netconf/junos/1.0"
	CapJunosDMI = "http://xml.juniper.net/dmi/system/1.0"
)

// Facts describes the identity of the simulated device.
type Facts struct {
	Hostname     string
	Model        string
	Version      string
	SerialNumber string
}

// DefaultFacts are the facts of a device created without WithFacts.
var DefaultFacts = Facts{Hostname: "sim1", Model: "vsrx", Version: "21.4R3-S5.4", SerialNumber: "SIM0000001"}

// Request records an rpc received by the device.
type Request struct {
	SessionID uint64
	Name      string
}

// Commit records a successful commit.
type Commit struct {
	User      string
	Comment   string
	Confirmed int
	Config    string
}

// Option customises a Device.
type Option func(*Device) error

// WithFacts sets the device facts.
func WithFacts(f Facts) Option {
	return func(d *Device) error {
		d.facts = f
		return nil
	}
}

// WithConfiguration sets the initial active configuration.
func WithConfiguration(text string) Option {
	return func(d *Device) error {
		stmts, err := parseConfig(text)
		if err != nil {
			return err
		}
		d.active = stmts
		d.shared = cloneAll(stmts)
		return nil
	}
}

// WithCapabilities overrides the capabilities advertised by the device.
func WithCapabilities(caps ...string) Option {
	return func(d *Device) error {
		d.capabilities = caps
		return nil
	}
}

// Device is a simulated Junos device. It holds an active configuration and a shared candidate
// configuration, and implements the configuration locking of the exclusive, private and
// shared configuration modes.
type Device struct {
	*netconf.Server
	capabilities []string

	mu        sync.Mutex
	facts     Facts
	active    []*statement
	shared    []*statement
	exclusive uint64
	open      map[uint64]*openConfig
	failures  map[string]string
	warnings  map[string]string
	requests  []Request
	loads     []string
	commits   []Commit
}

type openConfig struct {
	mode    string
	private []*statement
}

// NewDevice starts a simulated device listening on address:port that accepts the given
// credentials. A port of 0 selects an ephemeral port. Trace hooks for the netconf and ssh
// servers are taken from ctx.
func NewDevice(ctx context.Context, address string, port int, user, password string, opts ...Option) (*Device, error) {
	d := &Device{
		capabilities: append(append([]string(nil), common.DefaultCapabilities...), CapJunos, CapJunosDMI),
		facts:        DefaultFacts,
		open:         make(map[uint64]*openConfig),
		failures:     make(map[string]string),
		warnings:     make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	sshcfg, err := ssh.PasswordConfig(user, password)
	if err != nil {
		return nil, err
	}
	d.Server, err = netconf.NewServer(ctx, address, port, sshcfg, func(sh *netconf.SessionHandler) netconf.SessionCallback {
		return &session{d: d, sid: sh.ID(), user: sh.User()}
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// FailRPC causes every subsequent request for the named rpc to be rejected with message.
func (d *Device) FailRPC(name, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[name] = message
}

// WarnRPC causes every subsequent successful reply to the named rpc to carry a warning.
func (d *Device) WarnRPC(name, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings[name] = message
}

// Reset removes injected failures and warnings.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = make(map[string]string)
	d.warnings = make(map[string]string)
}

// Active delivers the active configuration.
func (d *Device) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return render(d.active)
}

// Candidate delivers the shared candidate configuration.
func (d *Device) Candidate() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return render(d.shared)
}

// Locks delivers the number of sessions with an open configuration.
func (d *Device) Locks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// Requests delivers the rpcs received by the device, in order.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

// Loads delivers the configuration text of every load-configuration received, in order.
func (d *Device) Loads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.loads...)
}

// Commits delivers the successful commits, in order.
func (d *Device) Commits() []Commit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Commit(nil), d.commits...)
}

type session struct {
	d    *Device
	sid  uint64
	user string
}

func (s *session) Capabilities() []string {
	return s.d.capabilities
}

func (s *session) HandleRequest(req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	return s.d.handle(s, req)
}

func (s *session) SessionClosed() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.release(s.sid)
}

func (d *Device) handle(s *session, req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := req.Request.XMLName.Local
	d.requests = append(d.requests, Request{SessionID: s.sid, Name: name})

	if msg, ok := d.failures[name]; ok {
		return netconf.ErrorReply(req, rpcError("operation-failed", msg))
	}

	body, err := requestBody(req)
	if err != nil {
		return netconf.ErrorReply(req, rpcError("malformed-message", err.Error()))
	}

	var reply *netconf.RPCReplyMessage
	switch name {
	case "open-configuration":
		reply = d.openConfiguration(s, req, body)
	case "close-configuration":
		reply = d.closeConfiguration(s, req)
	case "load-configuration":
		reply = d.loadConfiguration(s, req, body)
	case "commit-configuration":
		reply = d.commitConfiguration(s, req, body)
	case "get-configuration":
		reply = d.getConfiguration(s, req)
	case "get-software-information":
		reply = d.softwareInformation(req)
	case "get-chassis-inventory":
		reply = d.chassisInventory(req)
	default:
		reply = netconf.ErrorReply(req, common.RPCError{
			Type: "protocol", Tag: "operation-not-supported", Severity: common.SeverityError,
			Message: "syntax error", Path: "[edit]",
		})
	}

	if msg, ok := d.warnings[name]; ok && len(reply.Errors) == 0 {
		reply.Errors = append(reply.Errors, common.RPCError{
			Type: "application", Tag: "warning", Severity: common.SeverityWarning, Message: msg,
		})
	}
	return reply
}

func requestBody(req *netconf.RPCRequestMessage) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString("<body>" + req.Request.Body + "</body>"); err != nil {
		return nil, err
	}
	return doc.Root(), nil
}

func rpcError(tag, message string) common.RPCError {
	return common.RPCError{Type: "application", Tag: tag, Severity: common.SeverityError, Message: message}
}

var knownModes = map[string]bool{"exclusive": true, "private": true, "shared": true, "batch": true, "dynamic": true}

func (d *Device) openConfiguration(s *session, req *netconf.RPCRequestMessage, body *etree.Element) *netconf.RPCReplyMessage {
	mode := "shared"
	if children := body.ChildElements(); len(children) > 0 {
		mode = children[0].Tag
	}
	if !knownModes[mode] {
		return netconf.ErrorReply(req, rpcError("unknown-element", fmt.Sprintf("syntax error, expecting <private> or <exclusive> or <shared>: <%s>", mode)))
	}
	if _, ok := d.open[s.sid]; ok {
		return netconf.ErrorReply(req, rpcError("operation-failed", "configuration database is already open"))
	}
	if d.exclusive != 0 {
		return netconf.ErrorReply(req, rpcError("lock-denied", fmt.Sprintf("configuration database locked by session %d", d.exclusive)))
	}

	oc := &openConfig{mode: mode}
	switch mode {
	case "exclusive":
		if len(d.open) > 0 {
			return netconf.ErrorReply(req, rpcError("lock-denied", "users currently editing the configuration"))
		}
		d.exclusive = s.sid
	case "private":
		if render(d.shared) != render(d.active) {
			return netconf.ErrorReply(req, rpcError("lock-denied", "shared configuration database modified"))
		}
		oc.private = []*statement{}
	}
	d.open[s.sid] = oc
	return netconf.OkReply(req)
}

func (d *Device) closeConfiguration(s *session, req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	if _, ok := d.open[s.sid]; !ok {
		return netconf.ErrorReply(req, rpcError("operation-failed", "configuration database is not open"))
	}
	d.release(s.sid)
	return netconf.OkReply(req)
}

// release closes the configuration opened by the session, if any. Uncommitted private
// changes, and uncommitted exclusive changes, are discarded.
func (d *Device) release(sid uint64) {
	if _, ok := d.open[sid]; !ok {
		return
	}
	delete(d.open, sid)
	if d.exclusive == sid {
		d.exclusive = 0
		d.shared = cloneAll(d.active)
	}
}

func (d *Device) loadConfiguration(s *session, req *netconf.RPCRequestMessage, body *etree.Element) *netconf.RPCReplyMessage {
	oc, ok := d.open[s.sid]
	if !ok {
		return netconf.ErrorReply(req, rpcError("operation-failed", "configuration database is not open"))
	}

	text := ""
	if e := body.SelectElement("configuration-text"); e != nil {
		text = e.Text()
	}
	d.loads = append(d.loads, text)

	doc := etree.NewDocument()
	results := doc.CreateElement("load-configuration-results")

	stmts, err := parseConfig(text)
	if err != nil {
		rerr := results.CreateElement("rpc-error")
		rerr.CreateElement("error-type").SetText("protocol")
		rerr.CreateElement("error-tag").SetText("operation-failed")
		rerr.CreateElement("error-severity").SetText(common.SeverityError)
		rerr.CreateElement("error-message").SetText(err.Error())
		results.CreateElement("load-error-count").SetText("1")
	} else {
		if oc.private != nil {
			oc.private = merge(oc.private, stmts)
		} else {
			d.shared = merge(d.shared, stmts)
		}
		results.CreateElement("load-success")
	}
	return dataReply(req, doc)
}

func (d *Device) candidate(oc *openConfig) []*statement {
	if oc.private != nil {
		return merge(cloneAll(d.active), oc.private)
	}
	return d.shared
}

func (d *Device) commitConfiguration(s *session, req *netconf.RPCRequestMessage, body *etree.Element) *netconf.RPCReplyMessage {
	oc, ok := d.open[s.sid]
	if !ok {
		return netconf.ErrorReply(req, rpcError("operation-failed", "configuration database is not open"))
	}

	doc := etree.NewDocument()
	re := doc.CreateElement("commit-results").CreateElement("routing-engine")
	re.CreateElement("name").SetText("re0")

	if body.SelectElement("check") != nil {
		re.CreateElement("commit-check-success")
		return dataReply(req, doc)
	}

	candidate := d.candidate(oc)
	d.active = cloneAll(candidate)
	if oc.private != nil {
		d.shared = merge(d.shared, oc.private)
		oc.private = []*statement{}
	}

	c := Commit{User: s.user, Config: render(d.active)}
	if e := body.SelectElement("log"); e != nil {
		c.Comment = e.Text()
	}
	if body.SelectElement("confirmed") != nil {
		c.Confirmed = 10
		if e := body.SelectElement("confirm-timeout"); e != nil {
			if minutes, err := strconv.Atoi(strings.TrimSpace(e.Text())); err == nil {
				c.Confirmed = minutes
			}
		}
	}
	d.commits = append(d.commits, c)

	re.CreateElement("commit-success")
	return dataReply(req, doc)
}

func (d *Device) getConfiguration(s *session, req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	doc := etree.NewDocument()
	if req.Request.Attr("compare") == "rollback" {
		candidate := d.shared
		if oc, ok := d.open[s.sid]; ok {
			candidate = d.candidate(oc)
		}
		doc.CreateElement("configuration-information").CreateElement("configuration-output").SetText(diff(d.active, candidate))
		return dataReply(req, doc)
	}
	doc.CreateElement("configuration-text").SetText(render(d.active))
	return dataReply(req, doc)
}

func (d *Device) softwareInformation(req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	doc := etree.NewDocument()
	si := doc.CreateElement("software-information")
	si.CreateElement("host-name").SetText(d.facts.Hostname)
	si.CreateElement("product-model").SetText(d.facts.Model)
	si.CreateElement("product-name").SetText(d.facts.Model)
	si.CreateElement("junos-version").SetText(d.facts.Version)
	return dataReply(req, doc)
}

func (d *Device) chassisInventory(req *netconf.RPCRequestMessage) *netconf.RPCReplyMessage {
	doc := etree.NewDocument()
	chassis := doc.CreateElement("chassis-inventory").CreateElement("chassis")
	chassis.CreateAttr("style", "inventory")
	chassis.CreateElement("name").SetText("Chassis")
	chassis.CreateElement("serial-number").SetText(d.facts.SerialNumber)
	chassis.CreateElement("description").SetText(strings.ToUpper(d.facts.Model))
	return dataReply(req, doc)
}

func dataReply(req *netconf.RPCRequestMessage, doc *etree.Document) *netconf.RPCReplyMessage {
	data, err := doc.WriteToString()
	if err != nil {
		return netconf.ErrorReply(req, rpcError("operation-failed", err.Error()))
	}
	return netconf.DataReply(req, data)
}
