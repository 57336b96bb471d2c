// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
)

// limitErrorReader is a reader that returns [ErrMaxInputSizeExceeded] if the
// underlying reader provides more than L bytes. If the limit is -1, all data
// from the original reader is read.
type limitErrorReader struct {
	R io.Reader // underlying reader
	L int64     // limit
	N int64     // number of bytes read
}

// Read reads from the underlying reader and fills up p.
func (l *limitErrorReader) Read(p []byte) (int, error) {
	if l.L >= 0 && l.N >= l.L {
		// check for remaining data, the limit is only violated if there is more
		var next [1]byte
		n, err := l.R.Read(next[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: more than %d bytes", ErrMaxInputSizeExceeded, l.L)
		}
		return 0, err
	}

	// determine how many bytes to read
	if l.L >= 0 && int64(len(p)) > l.L-l.N {
		p = p[:l.L-l.N]
	}

	// read from underlying reader and preserve error type
	n, err := l.R.Read(p)
	l.N += int64(n)
	return n, err
}

// ReadBytes returns how many bytes have been read from the underlying reader
func (l *limitErrorReader) ReadBytes() int64 {
	return l.N
}

// newLimitErrorReader returns a new limitErrorReader that reads from r
func newLimitErrorReader(r io.Reader, limit int64) *limitErrorReader {
	return &limitErrorReader{R: r, L: limit, N: 0}
}
