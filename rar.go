// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/nwaples/rardecode"
)

// fileExtensionRar is the file extension for Rar files.
const fileExtensionRar = "rar"

// magicBytesRar are the magic bytes for Rar files.
var magicBytesRar = [][]byte{
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // Rar 1.5
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // Rar 5.0
}

// containerRar reads Rar archives. Writing is not supported.
var containerRar = container{
	Name:       fileExtensionRar,
	MagicBytes: magicBytesRar,
	NewReader:  newRarReader,
}

// rarReader is an [EntryReader] for Rar archives
type rarReader struct {
	r       *rardecode.Reader
	content streamContent
}

// newRarReader returns a sequential reader for the Rar archive in src.
func newRarReader(src io.Reader, _ *Config) (EntryReader, error) {
	r, err := rardecode.NewReader(src, "")
	if err != nil {
		return nil, fmt.Errorf("cannot create rar decoder: %w", err)
	}
	return &rarReader{r: r}, nil
}

// Format returns the name of the format.
func (rr *rarReader) Format() string {
	return fileExtensionRar
}

// Next returns the next entry of the archive. Symlinks are not supported by the
// decoder and reported as [TypeOther].
func (rr *rarReader) Next() (Entry, error) {
	fh, err := rr.r.Next()
	if err != nil {
		rr.content.reset(nil)
		return Entry{}, err
	}
	rr.content.reset(rr.r)

	mode := fh.Mode()
	if fh.IsDir {
		mode |= fs.ModeDir
	}
	if mode&fs.ModeSymlink != 0 {
		e := newEntry(fh.Name, mode&modeBits, 0, fh.ModificationTime, "")
		e.Type = TypeOther
		return e, nil
	}
	return newEntry(fh.Name, mode, fh.UnPackedSize, fh.ModificationTime, ""), nil
}

// Open returns the content of the current entry.
func (rr *rarReader) Open() (io.ReadCloser, error) {
	return rr.content.open()
}

// Close is a no-op, the input is owned by the caller.
func (rr *rarReader) Close() error {
	return nil
}
