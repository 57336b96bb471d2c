// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// fileExtensionZip is the file extension for zip files.
const fileExtensionZip = "zip"

// maxLinkTargetLength is the maximum size of a symlink target stored as content
const maxLinkTargetLength = 4096

// magicBytesZip contains the magic bytes for a zip archive.
// reference: https://golang.org/pkg/archive/zip/
var magicBytesZip = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
}

// containerZip reads and writes zip archives
var containerZip = container{
	Name:        fileExtensionZip,
	MagicBytes:  magicBytesZip,
	NewReaderAt: newZipReader,
	NewWriter:   newZipWriter,
}

// zipReader is an [EntryReader] for zip archives
type zipReader struct {
	zr    *zip.Reader
	names nameCodec
	fp    int
}

// newZipReader returns a reader for the zip archive in src.
func newZipReader(src io.ReaderAt, size int64, cfg *Config) (EntryReader, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("cannot create zip reader: %w", err)
	}
	return &zipReader{zr: zr, names: names}, nil
}

// Format returns the name of the format.
func (z *zipReader) Format() string {
	return fileExtensionZip
}

// current returns the file of the current entry.
func (z *zipReader) current() (*zip.File, error) {
	if z.fp == 0 || z.fp > len(z.zr.File) {
		return nil, io.ErrUnexpectedEOF
	}
	return z.zr.File[z.fp-1], nil
}

// Next returns the next entry of the archive.
func (z *zipReader) Next() (Entry, error) {
	if z.fp >= len(z.zr.File) {
		z.fp = len(z.zr.File) + 1
		return Entry{}, io.EOF
	}
	zf := z.zr.File[z.fp]
	z.fp++

	// names are only transcoded if the archive does not declare UTF-8
	name := zf.Name
	if zf.NonUTF8 {
		var err error
		if name, err = z.names.decode(name); err != nil {
			return Entry{}, err
		}
	}

	// symlink targets are stored as content
	mode := zf.Mode()
	var link string
	if mode&fs.ModeSymlink != 0 {
		target, err := readLinkTarget(zf.Open)
		if err != nil {
			return Entry{}, err
		}
		link = target
	}

	return newEntry(name, mode, int64(zf.UncompressedSize64), zf.Modified, link), nil
}

// Open returns the content of the current entry. It can be opened more than once.
func (z *zipReader) Open() (io.ReadCloser, error) {
	zf, err := z.current()
	if err != nil {
		return nil, err
	}
	return zf.Open()
}

// Close is a no-op, the input is owned by the caller.
func (z *zipReader) Close() error {
	return nil
}

// readLinkTarget reads the target of a symlink that is stored as content.
func readLinkTarget(open func() (io.ReadCloser, error)) (string, error) {
	rc, err := open()
	if err != nil {
		return "", fmt.Errorf("cannot open symlink: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxLinkTargetLength+1))
	if err != nil {
		return "", fmt.Errorf("cannot read symlink: %w", err)
	}
	if len(data) > maxLinkTargetLength {
		return "", fmt.Errorf("symlink target exceeds %d bytes", maxLinkTargetLength)
	}
	return string(data), nil
}

// zipWriter is an [EntryWriter] for zip archives
type zipWriter struct {
	zw    *zip.Writer
	names nameCodec
}

// newZipWriter returns a writer that writes a zip archive to w. The compression
// level of [FormatOptions] applies to deflate.
func newZipWriter(w io.Writer, cfg *Config) (EntryWriter, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	zw := zip.NewWriter(w)
	level := cfg.FormatOptions().CompressionLevel
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &zipWriter{zw: zw, names: names}, nil
}

// Format returns the name of the format.
func (z *zipWriter) Format() string {
	return fileExtensionZip
}

// WriteEntry writes the header of e and its content.
func (z *zipWriter) WriteEntry(e Entry, r io.Reader) (int64, error) {
	if e.Type == TypeOther {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEntry, e.Name)
	}

	hdr, err := zip.FileInfoHeader(entryFileInfo{e})
	if err != nil {
		return 0, fmt.Errorf("cannot create header: %w", err)
	}
	name, err := z.names.encode(e.Name)
	if err != nil {
		return 0, err
	}
	hdr.NonUTF8 = name != e.Name
	hdr.Name = name
	hdr.Modified = e.ModTime
	if e.Size < 0 {
		hdr.UncompressedSize64 = 0
	}
	switch e.Type {
	case TypeDir:
		hdr.Name += "/"
		hdr.Method = zip.Store
	case TypeSymlink:
		hdr.Method = zip.Store
	default:
		hdr.Method = zip.Deflate
	}

	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("cannot write header: %w", err)
	}
	switch e.Type {
	case TypeSymlink:
		if _, err := io.WriteString(w, e.LinkTarget); err != nil {
			return 0, fmt.Errorf("cannot write symlink: %w", err)
		}
		return 0, nil
	case TypeFile:
		n, err := io.Copy(w, r)
		if err != nil {
			return n, fmt.Errorf("cannot write content: %w", err)
		}
		if e.Size >= 0 && n != e.Size {
			return n, fmt.Errorf("content size mismatch: %d of %d bytes", n, e.Size)
		}
		return n, nil
	}
	return 0, nil
}

// Close writes the central directory.
func (z *zipWriter) Close() error {
	return z.zw.Close()
}
