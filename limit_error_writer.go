// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
)

// limitErrorWriter is a wrapper around an io.Writer that returns
// [ErrMaxExtractionSizeExceeded] when the limit is reached.
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit
	N int64     // number of bytes written
}

// Write writes up to len(p) bytes from p to the underlying data stream. If p does
// not fit into the remaining limit, the fitting part is written and an error
// wrapping [ErrMaxExtractionSizeExceeded] is returned.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	// check if we reached the limit
	if l.N >= l.L && len(p) > 0 {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrMaxExtractionSizeExceeded, l.L)
	}

	// write until we reach the limit
	if int64(len(p)) > l.L-l.N {
		p = p[0 : l.L-l.N]
		n, err = l.W.Write(p)
		if err == nil {
			err = fmt.Errorf("%w: more than %d bytes", ErrMaxExtractionSizeExceeded, l.L)
		}
		l.N += int64(n)
		return n, err
	}

	// write normally
	n, err = l.W.Write(p)
	l.N += int64(n)
	return n, err
}

// newLimitErrorWriter returns a new limitErrorWriter that wraps the given writer
// and limit.
func newLimitErrorWriter(w io.Writer, l int64) *limitErrorWriter {
	return &limitErrorWriter{W: w, L: l}
}

// limitWriter returns a writer that fails once more than maxSize bytes are written.
// If maxSize < 0, w is returned unchanged.
func limitWriter(w io.Writer, maxSize int64) io.Writer {
	if maxSize < 0 {
		return w
	}
	return newLimitErrorWriter(w, maxSize)
}
