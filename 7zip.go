// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/bodgit/sevenzip"
)

// fileExtension7zip is the file extension for 7zip files
const fileExtension7zip = "7z"

// magicBytes7zip are the magic bytes for 7zip files
var magicBytes7zip = [][]byte{
	{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
}

// container7zip reads 7zip archives. Writing is not supported.
var container7zip = container{
	Name:        fileExtension7zip,
	MagicBytes:  magicBytes7zip,
	NewReaderAt: new7zipReader,
}

// sevenZipReader is an [EntryReader] for 7zip archives
type sevenZipReader struct {
	r  *sevenzip.Reader
	fp int
}

// new7zipReader returns a reader for the 7zip archive in src.
func new7zipReader(src io.ReaderAt, size int64, _ *Config) (EntryReader, error) {
	r, err := sevenzip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("cannot create 7zip reader: %w", err)
	}
	return &sevenZipReader{r: r}, nil
}

// Format returns the name of the format.
func (z *sevenZipReader) Format() string {
	return fileExtension7zip
}

// Next returns the next entry of the archive.
func (z *sevenZipReader) Next() (Entry, error) {
	if z.fp >= len(z.r.File) {
		z.fp = len(z.r.File) + 1
		return Entry{}, io.EOF
	}
	f := z.r.File[z.fp]
	z.fp++

	fi := f.FileInfo()
	var link string
	if fi.Mode()&fs.ModeSymlink != 0 {
		target, err := readLinkTarget(f.Open)
		if err != nil {
			return Entry{}, err
		}
		link = target
	}
	return newEntry(f.Name, fi.Mode(), fi.Size(), fi.ModTime(), link), nil
}

// Open returns the content of the current entry. It can be opened more than once.
func (z *sevenZipReader) Open() (io.ReadCloser, error) {
	if z.fp == 0 || z.fp > len(z.r.File) {
		return nil, io.ErrUnexpectedEOF
	}
	return z.r.File[z.fp-1].Open()
}

// Close is a no-op, the input is owned by the caller.
func (z *sevenZipReader) Close() error {
	return nil
}
