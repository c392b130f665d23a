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
	"io"
	"strconv"
)

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithMaximumChunkSize limits the size of the chunks written in chunked mode.
// Zero means the RFC6242 maximum.
func WithMaximumChunkSize(size uint32) EncoderOption {
	return func(e *Encoder) {
		if size > 0 {
			e.MaxChunkSize = size
		}
	}
}

// NewEncoder returns a new RFC6242 transport encoding writer with underlying
// writer output, configured with any options provided.
func NewEncoder(output io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{Output: output, MaxChunkSize: rfc6242maximumAllowedChunkSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encoder is a filtering writer. By default it acts as a pass through writer.
// If chunked mode is enabled (see SetChunkedFraming), input to Write calls
// is chunked and the RFC6242 chunked encoding output written to the underlying
// writer.
type Encoder struct {
	// Output is the underlying Writer to receive encoded output
	Output io.Writer
	// ChunkedFraming sets whether the next call to Write should use
	// chunked-message framing (true) or end-of-message framing (false)
	ChunkedFraming bool
	// MaxChunkSize is the maximum size of chunks the encoder will write.
	MaxChunkSize uint32
}

// Write writes the framed output for b to the underlying writer
func (e *Encoder) Write(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}
	if e.ChunkedFraming {
		return e.writeChunked(b)
	}
	return e.Output.Write(b)
}

// EndOfMessage must be called after each message is written to the Encoder.
// It writes "]]>]]>", or "\n##\n" when chunked framing is enabled.
func (e *Encoder) EndOfMessage() (err error) {
	if e.ChunkedFraming {
		_, err = e.Output.Write(tokenEndOfChunks)
	} else {
		_, err = e.Output.Write(tokenEOM)
	}
	return
}

// Close attempts to close the underlying writer.
func (e *Encoder) Close() error {
	if closer, ok := e.Output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (e *Encoder) writeChunked(b []byte) (n int, err error) {
	for n < len(b) {
		size := len(b) - n
		if uint64(size) > uint64(e.MaxChunkSize) {
			size = int(e.MaxChunkSize)
		}

		header := "\n#" + strconv.Itoa(size) + "\n"
		if _, err = e.Output.Write([]byte(header)); err != nil {
			return
		}

		var wn int
		wn, err = e.Output.Write(b[n : n+size])
		n += wn
		if err != nil {
			return
		}
	}
	return
}
