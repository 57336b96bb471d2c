// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/blakesmith/ar"
)

// fileExtensionAr is the file extension for ar files
const fileExtensionAr = "ar"

// maxArNameLength is the maximum length of a member name in the common ar format
const maxArNameLength = 16

// magicBytesAr are the magic bytes for ar archives
// reference: https://en.wikipedia.org/wiki/Ar_(Unix)
var magicBytesAr = [][]byte{
	[]byte("!<arch>\n"),
}

// containerAr reads and writes ar archives. ar only stores flat regular files.
var containerAr = container{
	Name:       fileExtensionAr,
	MagicBytes: magicBytesAr,
	NewReader:  newArReader,
	NewWriter:  newArWriter,
}

// arReader is an [EntryReader] for ar archives
type arReader struct {
	ar      *ar.Reader
	names   nameCodec
	content streamContent
}

// newArReader returns a sequential reader for the ar archive in src.
func newArReader(src io.Reader, cfg *Config) (EntryReader, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &arReader{ar: ar.NewReader(src), names: names}, nil
}

// Format returns the name of the format.
func (a *arReader) Format() string {
	return fileExtensionAr
}

// Next returns the next member of the archive.
func (a *arReader) Next() (Entry, error) {
	for {
		hdr, err := a.ar.Next()
		if err != nil {
			a.content.reset(nil)
			return Entry{}, err
		}

		// skip the symbol and long name tables of GNU ar
		name := strings.TrimSpace(hdr.Name)
		if name == "/" || name == "//" || name == "__.SYMDEF" {
			continue
		}
		name = strings.TrimSuffix(name, "/")
		if name, err = a.names.decode(name); err != nil {
			return Entry{}, err
		}

		a.content.reset(a.ar)
		return newEntry(name, unixPermToFileMode(hdr.Mode), hdr.Size, hdr.ModTime, ""), nil
	}
}

// Open returns the content of the current member.
func (a *arReader) Open() (io.ReadCloser, error) {
	return a.content.open()
}

// Close is a no-op, ar has no resources to release.
func (a *arReader) Close() error {
	return nil
}

// arWriter is an [EntryWriter] for ar archives
type arWriter struct {
	aw      *ar.Writer
	names   nameCodec
	cfg     *Config
	started bool
}

// newArWriter returns a writer that writes an ar archive to w.
func newArWriter(w io.Writer, cfg *Config) (EntryWriter, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &arWriter{aw: ar.NewWriter(w), names: names, cfg: cfg}, nil
}

// Format returns the name of the format.
func (a *arWriter) Format() string {
	return fileExtensionAr
}

// WriteEntry writes a member. Only regular files with a name of up to 16 bytes
// and without directory are supported.
func (a *arWriter) WriteEntry(e Entry, r io.Reader) (int64, error) {
	if err := a.writeGlobalHeader(); err != nil {
		return 0, err
	}
	if e.Type != TypeFile {
		return 0, fmt.Errorf("%w: ar stores files only: %s", ErrUnsupportedEntry, e)
	}
	name, err := a.names.encode(e.Name)
	if err != nil {
		return 0, err
	}
	if len(name) > maxArNameLength || strings.ContainsAny(name, "/ ") {
		return 0, fmt.Errorf("%w: invalid ar member name: %s", ErrUnsupportedEntry, e.Name)
	}

	// ar needs the size upfront
	e, r, cleanup, err := resolveSize(a.cfg, e, r)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	hdr := &ar.Header{
		Name:    name,
		ModTime: e.ModTime,
		Mode:    fileModeToUnixPerm(e.Mode),
		Size:    e.Size,
	}
	if err := a.aw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("cannot write header: %w", err)
	}

	// members are written in one piece, the writer pads each write to an even length
	data, err := io.ReadAll(io.LimitReader(r, e.Size))
	if err != nil {
		return 0, fmt.Errorf("cannot read content: %w", err)
	}
	if int64(len(data)) != e.Size {
		return int64(len(data)), fmt.Errorf("content size mismatch: %d of %d bytes", len(data), e.Size)
	}
	if len(data) == 0 {
		return 0, nil
	}
	if _, err := a.aw.Write(data); err != nil {
		return 0, fmt.Errorf("cannot write content: %w", err)
	}
	return e.Size, nil
}

// writeGlobalHeader writes the archive signature once.
func (a *arWriter) writeGlobalHeader() error {
	if a.started {
		return nil
	}
	a.started = true
	if err := a.aw.WriteGlobalHeader(); err != nil {
		return fmt.Errorf("cannot write global header: %w", err)
	}
	return nil
}

// Close writes the signature of an empty archive, if no member was written.
func (a *arWriter) Close() error {
	return a.writeGlobalHeader()
}

// unixPermToFileMode converts the mode of a unix header, including the file type
// bits, into a regular [fs.FileMode].
func unixPermToFileMode(mode int64) fs.FileMode {
	m := fs.FileMode(mode) & fs.ModePerm
	if mode&04000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&02000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&01000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}

// fileModeToUnixPerm converts the permission bits of a regular file into the mode
// of an ar header. The writer adds the regular file type itself.
func fileModeToUnixPerm(mode fs.FileMode) int64 {
	m := int64(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		m |= 04000
	}
	if mode&fs.ModeSetgid != 0 {
		m |= 02000
	}
	if mode&fs.ModeSticky != 0 {
		m |= 01000
	}
	return m
}
