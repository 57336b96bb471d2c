// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// noCleanup is returned if nothing needs to be released.
func noCleanup() error {
	return nil
}

// readerToReaderAtSeeker converts an io.Reader to an io.ReaderAt and io.Seeker.
// The content is cached in memory or in a temporary file, see [WithCacheInMemory].
// The returned cleanup function removes the temporary file.
func readerToReaderAtSeeker(c *Config, r io.Reader) (seekerReaderAt, func() error, error) {

	if s, ok := r.(seekerReaderAt); ok {
		return s, noCleanup, nil
	}

	// check if reader is a buffer
	if b, ok := r.(*bytes.Buffer); ok {
		return bytes.NewReader(b.Bytes()), noCleanup, nil
	}

	// check how to cache
	if c.CacheInMemory() {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read all from reader: %w", err)
		}
		return bytes.NewReader(b), noCleanup, nil
	}

	// create temp file
	tmpFile, err := os.CreateTemp("", "goarchive-*")
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create cache file: %w", err)
	}
	cleanup := func() error {
		tmpFile.Close()
		return os.Remove(tmpFile.Name())
	}

	// copy reader to temp file
	if _, err := io.Copy(tmpFile, r); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cannot copy reader to file: %w", err)
	}

	// seek to start
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cannot seek cache file: %w", err)
	}

	// return temp file
	return tmpFile, cleanup, nil
}

// spoolContent resolves the size of content of unknown length, which formats that
// write the size in front of the content need. The content is cached like in
// [readerToReaderAtSeeker]. It returns a reader positioned at the start of the
// content and the size.
func spoolContent(c *Config, r io.Reader) (io.Reader, int64, func() error, error) {
	sra, cleanup, err := readerToReaderAtSeeker(c, r)
	if err != nil {
		return nil, 0, nil, err
	}
	size, err := sra.Seek(0, io.SeekEnd)
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("cannot determine content size: %w", err)
	}
	return io.NewSectionReader(sra, 0, size), size, cleanup, nil
}

// resolveSize returns e with a known size and the reader to take the content from.
// Entries with a known size are returned unchanged.
func resolveSize(c *Config, e Entry, r io.Reader) (Entry, io.Reader, func() error, error) {
	if e.Type != TypeFile || e.Size >= 0 {
		return e, r, noCleanup, nil
	}
	if r == nil {
		r = bytes.NewReader(nil)
	}
	content, size, cleanup, err := spoolContent(c, r)
	if err != nil {
		return e, nil, nil, err
	}
	e.Size = size
	return e, content, cleanup, nil
}
