package common

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Defines structs representing netconf messages.

// Request represents the body of a Netconf RPC request.
// A string is sent verbatim as the content of the rpc element, any other value is
// marshalled using its xml tags.
type Request interface{}

// HelloMessage defines the message sent/received during session negotiation.
type HelloMessage struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    uint64   `xml:"session-id,omitempty"`
}

// RPCMessage defines an rpc request message
type RPCMessage struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc"`
	MessageID string   `xml:"message-id,attr"`
	*Union
}

// RPCReply defines an rpc reply message
type RPCReply struct {
	XMLName   xml.Name   `xml:"rpc-reply"`
	Errors    []RPCError `xml:"rpc-error,omitempty"`
	Ok        *struct{}  `xml:"ok"`
	Data      string     `xml:",innerxml"`
	MessageID string     `xml:"message-id,attr"`
}

// Warnings delivers the rpc-error elements of the reply that do not have error severity.
func (r *RPCReply) Warnings() (warnings []RPCError) {
	for _, e := range r.Errors {
		if e.Severity != SeverityError {
			warnings = append(warnings, e)
		}
	}
	return
}

// RPCError defines an error reply to a RPC request
type RPCError struct {
	Type     string `xml:"error-type"`
	Tag      string `xml:"error-tag"`
	Severity string `xml:"error-severity"`
	Path     string `xml:"error-path"`
	Message  string `xml:"error-message"`
	Info     string `xml:",innerxml"`
}

// Error generates a string representation of the RPC error
func (re *RPCError) Error() string {
	return fmt.Sprintf("netconf rpc [%s] '%s'", re.Severity, strings.TrimSpace(re.Message))
}

// Union holds a request body that is either raw xml or a value to be marshalled.
type Union struct {
	ValueStr interface{}
	ValueXML string `xml:",innerxml"`
}

// GetUnion wraps a request body for marshalling.
func GetUnion(s interface{}) *Union {
	switch request := s.(type) {
	case string:
		return &Union{ValueXML: request}
	default:
		return &Union{ValueStr: request}
	}
}

// DefaultCapabilities sets the default capabilities of the client library
var DefaultCapabilities = []string{
	CapBase10,
	CapBase11,
}

// NoChunkedCodecCapabilities omits the chunked codec capability.
var NoChunkedCodecCapabilities = []string{
	CapBase10,
}

// Define xml names for different netconf messages.
var (
	NameHello    = xml.Name{Space: NetconfNS, Local: "hello"}
	NameRPC      = xml.Name{Space: NetconfNS, Local: "rpc"}
	NameRPCReply = xml.Name{Space: NetconfNS, Local: "rpc-reply"}
)

// Define netconf URNs.
const (
	NetconfNS = "urn:ietf:params:xml:ns:netconf:base:1.0"
	CapBase10 = "urn:ietf:params:netconf:base:1.0"
	CapBase11 = "urn:ietf:params:netconf:base:1.1"
)

// Error severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// PeerSupportsChunkedFraming returns true if capability list indicates support for chunked framing.
func PeerSupportsChunkedFraming(caps []string) bool {
	for _, capability := range caps {
		if capability == CapBase11 {
			return true
		}
	}
	return false
}
