package common

import (
	"encoding/xml"
	"strings"
)

// RequestName delivers the local name of the outermost element of a request, or "unknown" if it
// cannot be determined.
func RequestName(req Request) string {
	var body string
	switch r := req.(type) {
	case string:
		body = r
	default:
		b, err := xml.Marshal(r)
		if err != nil {
			return "unknown"
		}
		body = string(b)
	}

	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		token, err := dec.Token()
		if err != nil {
			return "unknown"
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}
