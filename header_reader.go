// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
)

// headerReader is an implementation of io.Reader that allows the first bytes of
// the reader to be read twice. This is used to identify the compression and the
// container format before unpacking.
type headerReader struct {
	r      io.Reader
	header []byte
	off    int
}

// newHeaderReader reads up to headerSize bytes from r. A shorter input is not an error.
func newHeaderReader(r io.Reader, headerSize int) (*headerReader, error) {
	// read at least headerSize bytes. If EOF, capture whatever was read.
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	return &headerReader{r: r, header: buf[:n]}, nil
}

func (p *headerReader) Read(b []byte) (int, error) {
	// read from header first
	if p.off < len(p.header) {
		n := copy(b, p.header[p.off:])
		p.off += n
		return n, nil
	}

	// then continue reading from the source
	return p.r.Read(b)
}

// PeekHeader returns the buffered header. It is stable until the header was read.
func (p *headerReader) PeekHeader() []byte {
	return p.header
}
