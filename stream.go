// stream.go: Draining submission bodies into comparable strings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"io"
	"strings"
)

// DrainStream reads r to the end in fixed-size chunks and returns the
// concatenated content. The boolean is false only for a nil reader, which
// is how GET submissions (no post data) are told apart from empty bodies.
//
// The stream is closed on every path when it implements io.Closer. Read and
// close failures are returned as StreamFault errors and are not recovered.
func DrainStream(r io.Reader) (body string, ok bool, err error) {
	if r == nil {
		return "", false, nil
	}

	if closer, isCloser := r.(io.Closer); isCloser {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil && err == nil {
				err = NewStreamCloseError(closeErr)
			}
		}()
	}

	var sb strings.Builder
	buf := make([]byte, drainChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", true, NewStreamReadError(readErr)
		}
		if n == 0 {
			// a zero-length read ends the stream
			break
		}
	}

	return sb.String(), true, nil
}
