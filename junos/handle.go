package junos

import (
	"regexp"

	"github.com/beevik/etree"
	"github.com/damianoneill/junosmgr/netconf/client"
	"github.com/damianoneill/junosmgr/netconf/common"
)

// Facts is a read-only snapshot of device attributes.
type Facts map[string]interface{}

// Fact keys.
const (
	FactHostname     = "hostname"
	FactModel        = "model"
	FactVersion      = "version"
	FactSerialNumber = "serialnumber"
)

// handle is the remote side of a device client: a netconf session and the facts gathered
// over it.
type handle struct {
	session client.Session
	target  string
	trace   *Trace
	facts   Facts
}

func newHandle(s client.Session, target string, trace *Trace) *handle {
	return &handle{session: s, target: target, trace: trace}
}

// execute executes req, delivering the parsed reply content. Device rejections are reported
// with kind, and warnings are passed to the Warning hook.
func (h *handle) execute(op string, kind error, req common.Request) (*etree.Document, error) {
	reply, err := h.session.Execute(req)
	if reply == nil {
		return nil, rpcError(op, kind, err)
	}

	doc, perr := replyDocument(reply)
	if perr != nil {
		return nil, newError(op, ErrConnection, perr)
	}

	errs, warnings := replyErrors(doc)
	for _, w := range warnings {
		h.trace.Warning(h.target, op, w)
	}
	if len(errs) > 0 {
		return doc, newError(op, kind, errs[0])
	}
	if err != nil {
		return doc, rpcError(op, kind, err)
	}
	return doc, nil
}

var reReleaseVersion = regexp.MustCompile(`\[([^\]]+)\]`)

// gatherFacts reads the device facts and caches them on the handle.
func (h *handle) gatherFacts(op string) (Facts, error) {
	facts := Facts{}

	doc, err := h.execute(op, ErrConnection, &getSoftwareInformation{})
	if err != nil {
		return nil, err
	}
	// Multi routing engine devices report one software-information per engine; the first is used.
	setFact(facts, FactHostname, findText(doc, "//software-information/host-name"))
	setFact(facts, FactModel, findText(doc, "//software-information/product-model"))
	version := findText(doc, "//software-information/junos-version")
	if version == "" {
		if m := reReleaseVersion.FindStringSubmatch(findText(doc, "//software-information/package-information/comment")); m != nil {
			version = m[1]
		}
	}
	setFact(facts, FactVersion, version)

	if doc, err = h.execute(op, ErrConnection, &getChassisInventory{}); err != nil {
		return nil, err
	}
	setFact(facts, FactSerialNumber, findText(doc, "//chassis-inventory/chassis/serial-number"))

	h.facts = facts
	return facts.copy(), nil
}

func setFact(facts Facts, key, value string) {
	if value != "" {
		facts[key] = value
	}
}

func (f Facts) copy() Facts {
	c := make(Facts, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}
