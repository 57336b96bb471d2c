// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import "io"

// streamContent hands out the content of the current entry of a sequential
// container stream, e.g., tar or cpio. The content can be opened more than once as
// long as nothing has been read from it, so a retried entry never receives
// truncated content.
type streamContent struct {
	r        io.Reader
	consumed bool
}

// reset points the content to the next entry.
func (s *streamContent) reset(r io.Reader) {
	s.r = r
	s.consumed = false
}

// open returns a reader for the current entry. It fails with [ErrContentConsumed]
// if bytes have already been read.
func (s *streamContent) open() (io.ReadCloser, error) {
	if s.r == nil {
		return nil, io.ErrUnexpectedEOF
	}
	if s.consumed {
		return nil, ErrContentConsumed
	}
	return &streamContentReader{s}, nil
}

// streamContentReader implements io.ReadCloser with a no-op Close method.
type streamContentReader struct {
	s *streamContent
}

// Read reads from the current entry and marks it as consumed.
func (r *streamContentReader) Read(p []byte) (int, error) {
	n, err := r.s.r.Read(p)
	if n > 0 {
		r.s.consumed = true
	}
	return n, err
}

// Close is a no-op method that satisfies the io.Closer interface.
func (r *streamContentReader) Close() error {
	return nil
}
