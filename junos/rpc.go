package junos

import (
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"
	"github.com/damianoneill/junosmgr/netconf/common"
	"github.com/pkg/errors"
)

// Junos rpc request bodies.

type openConfiguration struct {
	XMLName xml.Name `xml:"open-configuration"`
	Mode    string   `xml:",innerxml"`
}

func newOpenConfiguration(mode Mode) *openConfiguration {
	return &openConfiguration{Mode: "<" + string(mode) + "/>"}
}

type closeConfiguration struct {
	XMLName xml.Name `xml:"close-configuration"`
}

type loadConfiguration struct {
	XMLName xml.Name `xml:"load-configuration"`
	Action  string   `xml:"action,attr"`
	Format  string   `xml:"format,attr"`
	Text    string   `xml:"configuration-text"`
}

func newLoadConfiguration(text string) *loadConfiguration {
	return &loadConfiguration{Action: "merge", Format: "text", Text: text}
}

type commitConfiguration struct {
	XMLName        xml.Name  `xml:"commit-configuration"`
	Check          *struct{} `xml:"check"`
	Confirmed      *struct{} `xml:"confirmed"`
	ConfirmTimeout int       `xml:"confirm-timeout,omitempty"`
	Log            string    `xml:"log,omitempty"`
}

type getConfigurationCompare struct {
	XMLName  xml.Name `xml:"get-configuration"`
	Compare  string   `xml:"compare,attr"`
	Rollback string   `xml:"rollback,attr"`
	Format   string   `xml:"format,attr"`
}

func newGetConfigurationCompare() *getConfigurationCompare {
	return &getConfigurationCompare{Compare: "rollback", Rollback: "0", Format: "text"}
}

type getSoftwareInformation struct {
	XMLName xml.Name `xml:"get-software-information"`
}

type getChassisInventory struct {
	XMLName xml.Name `xml:"get-chassis-inventory"`
}

// CommitOption customises a commit.
type CommitOption func(*commitConfiguration)

// WithComment records a comment with the commit.
func WithComment(comment string) CommitOption {
	return func(c *commitConfiguration) {
		c.Log = comment
	}
}

// WithConfirmed requests a confirmed commit that the device rolls back unless it is
// confirmed by a further commit within minutes.
func WithConfirmed(minutes int) CommitOption {
	return func(c *commitConfiguration) {
		c.Confirmed = &struct{}{}
		c.ConfirmTimeout = minutes
	}
}

// replyDocument parses the content of a reply. The content has no single root, so it is
// wrapped in one.
func replyDocument(reply *common.RPCReply) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString("<rpc-reply>" + reply.Data + "</rpc-reply>"); err != nil {
		return nil, errors.Wrap(err, "failed to parse rpc reply")
	}
	return doc, nil
}

// replyErrors delivers every rpc-error in the reply, at any depth, split by severity.
// Junos reports load failures inside load-configuration-results rather than at the top level.
func replyErrors(doc *etree.Document) (errs, warnings []*common.RPCError) {
	for _, e := range doc.FindElements("//rpc-error") {
		rpcErr := &common.RPCError{
			Type:     childText(e, "error-type"),
			Tag:      childText(e, "error-tag"),
			Severity: childText(e, "error-severity"),
			Path:     childText(e, "error-path"),
			Message:  childText(e, "error-message"),
		}
		if rpcErr.Severity == common.SeverityWarning {
			warnings = append(warnings, rpcErr)
		} else {
			errs = append(errs, rpcErr)
		}
	}
	return
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// findText delivers the trimmed text of the first element matching path, or "".
func findText(doc *etree.Document, path string) string {
	if e := doc.FindElement(path); e != nil {
		return strings.TrimSpace(e.Text())
	}
	return ""
}
