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
	"bytes"

	"github.com/pkg/errors"
)

var (
	tokenEOM         = []byte("]]>]]>")
	tokenEndOfChunks = []byte("\n##\n")
)

var (
	errInvalidChunkHeader = errors.New("rfc6242: invalid chunk header")
	errChunkSizeTooLarge  = errors.New("rfc6242: chunk size larger than maximum allowed")
	errNoChunkSize        = errors.New("rfc6242: no valid chunk-size detected")
)

// decoderEndOfMessage is the NETCONF 1.0 end-of-message framer.
// Data is released as soon as it cannot be part of a "]]>]]>" marker.
func decoderEndOfMessage(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	if idx := bytes.Index(data, tokenEOM); idx >= 0 {
		d.endOfMessage()
		if idx > 0 {
			token = data[:idx]
		}
		return idx + len(tokenEOM), token, nil
	}

	if atEOF {
		d.eofOK = false
		return len(data), data, nil
	}

	// Hold back enough bytes to detect a marker split across reads.
	safe := len(data) - (len(tokenEOM) - 1)
	if safe <= 0 {
		return 0, nil, nil
	}
	d.eofOK = false
	return safe, data[:safe], nil
}

// decoderChunked is the NETCONF 1.1 chunked framer.
func decoderChunked(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	if d.chunkDataLeft > 0 {
		if len(data) == 0 {
			return 0, nil, nil
		}
		n := uint64(len(data))
		if n > d.chunkDataLeft {
			n = d.chunkDataLeft
		}
		d.chunkDataLeft -= n
		return int(n), data[:n], nil
	}

	return decodeChunkHeader(d, data, atEOF)
}

// decodeChunkHeader consumes either a chunk header ("\n#<size>\n") or the
// end-of-chunks marker ("\n##\n").
func decodeChunkHeader(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	need := func() (int, []byte, error) {
		if atEOF {
			return 0, nil, errInvalidChunkHeader
		}
		return 0, nil, nil
	}

	if len(data) < 1 {
		return need()
	}
	if data[0] != '\n' {
		return 0, nil, errInvalidChunkHeader
	}
	if len(data) < 2 {
		return need()
	}
	if data[1] != '#' {
		return 0, nil, errInvalidChunkHeader
	}
	if len(data) < 3 {
		return need()
	}

	if data[2] == '#' {
		if len(data) < len(tokenEndOfChunks) {
			return need()
		}
		if !bytes.Equal(data[:len(tokenEndOfChunks)], tokenEndOfChunks) {
			return 0, nil, errInvalidChunkHeader
		}
		d.endOfMessage()
		return len(tokenEndOfChunks), nil, nil
	}

	var size uint64
	for i := 2; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\n':
			if i == 2 || size == 0 {
				return 0, nil, errInvalidChunkHeader
			}
			if size > rfc6242maximumAllowedChunkSize {
				return 0, nil, errChunkSizeTooLarge
			}
			d.chunkDataLeft = size
			d.eofOK = false
			return i + 1, nil, nil
		case c < '0' || c > '9':
			return 0, nil, errInvalidChunkHeader
		case i-2 >= rfc6242maximumAllowedChunkSizeLength:
			return 0, nil, errNoChunkSize
		}
		size = size*10 + uint64(c-'0')
	}
	return need()
}
