package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"testing"

	assert "github.com/stretchr/testify/require"
)

type testStr struct {
	XMLName xml.Name `xml:"test"`
	Field   string   `xml:"field"`
}

// failingWriter fails every write after the first okWrites.
type failingWriter struct {
	okWrites int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.okWrites == 0 {
		return 0, errors.New("failed")
	}
	w.okWrites--
	return len(p), nil
}

func TestEncoderFailures(t *testing.T) {
	// Failure on write of header
	err := NewEncoder(&failingWriter{}).Encode(&testStr{})
	assert.Error(t, err, "Expect failure")
	assert.Contains(t, err.Error(), "xml header")

	// Failure on write of message
	err = NewEncoder(&failingWriter{okWrites: 1}).Encode(&testStr{})
	assert.Error(t, err, "Expect failure")
	assert.Contains(t, err.Error(), "encode message")
}

func TestEncodeDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)

	assert.NoError(t, enc.Encode(&testStr{Field: "value"}))
	assert.Equal(t, xml.Header+"<test><field>value</field></test>]]>]]>", buf.String())

	dec := NewDecoder(buf)
	result := &testStr{}
	assert.NoError(t, dec.Decode(result))
	assert.Equal(t, "value", result.Field)
}

func TestEnableChunkedFraming(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	dec := NewDecoder(buf)

	assert.False(t, enc.ncEncoder.ChunkedFraming)

	EnableChunkedFraming(dec, enc)

	assert.True(t, enc.ncEncoder.ChunkedFraming)
}
