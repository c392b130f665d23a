// Copyright 2018 Andrew Fort
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package rfc6242

import (
	"bufio"
	"io"
)

// FramerFn is the input tokenization function used by a Decoder.
type FramerFn func(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithFramer sets the initial framer used by the Decoder.
func WithFramer(f FramerFn) DecoderOption {
	return func(d *Decoder) {
		d.framer = f
	}
}

// WithScannerBufferSize sets the capacity of the scanner buffer. Values <= 0 are ignored.
func WithScannerBufferSize(size int) DecoderOption {
	return func(d *Decoder) {
		if size > 0 {
			d.bufSize = size
		}
	}
}

// Decoder is an RFC6242 transport framing decoder filter.
//
// Decoder takes an io.Reader carrying framed NETCONF messages and delivers the
// message content, with framing removed, through its own io.Reader.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	// Input is the input source for the Decoder. The input stream
	// must consist of RFC6242 encoded data according to the current
	// Framer.
	Input io.Reader

	framer FramerFn
	// Pending framer will take effect after end of message has been processed.
	pendingFramer FramerFn

	s *bufio.Scanner

	// Token bytes that did not fit into the caller's buffer on the last Read.
	pending []byte

	chunkDataLeft uint64
	bufSize       int
	anySeen       bool
	eofOK         bool
}

// NewDecoder creates a new RFC6242 transport framing decoder reading from
// input, configured with any options provided.
func NewDecoder(input io.Reader, options ...DecoderOption) *Decoder {
	d := &Decoder{
		Input:   input,
		framer:  decoderEndOfMessage,
		bufSize: defaultReaderBufferSize,
		// A stream closed before any data arrives is a clean EOF.
		eofOK: true,
	}
	for _, option := range options {
		option(d)
	}
	d.s = bufio.NewScanner(input)
	d.s.Buffer(make([]byte, 0, d.bufSize), d.bufSize)
	d.s.Split(d.split)
	return d
}

// Read reads from the Decoder's input and copies the data into b,
// implementing io.Reader.
func (d *Decoder) Read(b []byte) (n int, err error) {
	if len(d.pending) > 0 {
		n = copy(b, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}

	for d.s.Scan() {
		token := d.s.Bytes()
		if len(token) == 0 {
			// Framing only; nothing to deliver.
			continue
		}
		n = copy(b, token)
		if n < len(token) {
			d.pending = append(d.pending[:0], token[n:]...)
		}
		return n, nil
	}

	if err = d.s.Err(); err == nil {
		if d.eofOK {
			err = io.EOF
		} else {
			err = io.ErrUnexpectedEOF
		}
	}
	return 0, err
}

func (d *Decoder) split(b []byte, eof bool) (a int, t []byte, err error) {
	if eof && len(b) == 0 {
		return 0, nil, nil
	}
	a, t, err = d.framer(d, b, eof)
	if a > 0 && t == nil && err == nil {
		// A nil token makes the scanner read more input before splitting again, which
		// stalls on data it already holds. An empty token keeps it splitting.
		t = b[:0]
	}
	return a, t, err
}

func (d *Decoder) setFramer(f FramerFn) {
	// Until the first end of message has been seen the new framer is held as pending.
	// The hello message can be fully delivered to the xml decoder (and chunked framing
	// enabled by the caller) before its end-of-message marker has been consumed.
	if !d.anySeen {
		d.pendingFramer = f
	} else {
		d.framer = f
	}
}

func (d *Decoder) endOfMessage() {
	d.anySeen = true
	d.eofOK = true
	if d.pendingFramer != nil {
		d.framer, d.pendingFramer = d.pendingFramer, nil
	}
}

const (
	// RFC6242 section 4.2 defines the "maximum allowed chunk-size".
	rfc6242maximumAllowedChunkSize = 4294967295
	// the length of `rfc6242maximumAllowedChunkSize` in bytes on the wire.
	rfc6242maximumAllowedChunkSizeLength = 10
	// defaultReaderBufferSize is the default read buffer capacity size.
	defaultReaderBufferSize = 65536
)
