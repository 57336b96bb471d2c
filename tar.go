// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/tar"
	"fmt"
	"io"
)

// fileExtensionTar is the file extension for tar files
const fileExtensionTar = "tar"

// offsetTar is the offset where the magic bytes are located in the file
const offsetTar = 257

// magicBytesTar are the magic bytes for tar files
var magicBytesTar = [][]byte{
	[]byte("ustar\x00tar\x00"),
	[]byte("ustar\x00"),
	[]byte("ustar  \x00"),
}

// containerTar reads and writes tar archives
var containerTar = container{
	Name:       fileExtensionTar,
	MagicBytes: magicBytesTar,
	Offset:     offsetTar,
	NewReader:  newTarReader,
	NewWriter:  newTarWriter,
}

// tarReader is an [EntryReader] for tar archives
type tarReader struct {
	tr      *tar.Reader
	names   nameCodec
	content streamContent
}

// newTarReader returns a sequential reader for the tar archive in src.
func newTarReader(src io.Reader, cfg *Config) (EntryReader, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &tarReader{tr: tar.NewReader(src), names: names}, nil
}

// Format returns the name of the format.
func (t *tarReader) Format() string {
	return fileExtensionTar
}

// Next returns the next entry of the archive.
func (t *tarReader) Next() (Entry, error) {
	for {
		hdr, err := t.tr.Next()
		if err != nil {
			t.content.reset(nil)
			return Entry{}, err
		}

		// git archive adds a global pax header, which is not an entry
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name, err := t.names.decode(hdr.Name)
		if err != nil {
			return Entry{}, err
		}
		link, err := t.names.decode(hdr.Linkname)
		if err != nil {
			return Entry{}, err
		}

		t.content.reset(t.tr)
		mode := hdr.FileInfo().Mode()
		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeDir, tar.TypeSymlink:
			return newEntry(name, mode, hdr.Size, hdr.ModTime, link), nil
		default:
			// hard links, devices and fifos
			e := newEntry(name, mode&modeBits, hdr.Size, hdr.ModTime, "")
			e.Type = TypeOther
			return e, nil
		}
	}
}

// Open returns the content of the current entry.
func (t *tarReader) Open() (io.ReadCloser, error) {
	return t.content.open()
}

// Close is a no-op, tar has no resources to release.
func (t *tarReader) Close() error {
	return nil
}

// tarWriter is an [EntryWriter] for tar archives
type tarWriter struct {
	tw    *tar.Writer
	names nameCodec
	cfg   *Config
}

// newTarWriter returns a writer that writes a tar archive to w.
func newTarWriter(w io.Writer, cfg *Config) (EntryWriter, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &tarWriter{tw: tar.NewWriter(w), names: names, cfg: cfg}, nil
}

// Format returns the name of the format.
func (t *tarWriter) Format() string {
	return fileExtensionTar
}

// WriteEntry writes the header of e and its content.
func (t *tarWriter) WriteEntry(e Entry, r io.Reader) (int64, error) {
	if e.Type == TypeOther {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEntry, e.Name)
	}

	// tar needs the size upfront
	e, r, cleanup, err := resolveSize(t.cfg, e, r)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	hdr, err := tar.FileInfoHeader(entryFileInfo{e}, e.LinkTarget)
	if err != nil {
		return 0, fmt.Errorf("cannot create header: %w", err)
	}
	if hdr.Name, err = t.names.encode(e.Name); err != nil {
		return 0, err
	}
	if hdr.Linkname, err = t.names.encode(e.LinkTarget); err != nil {
		return 0, err
	}
	if e.Type == TypeDir {
		hdr.Name += "/"
	}
	if e.Type != TypeFile {
		hdr.Size = 0
	}

	if err := t.tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("cannot write header: %w", err)
	}
	if e.Type != TypeFile {
		return 0, nil
	}

	// write content
	n, err := io.Copy(t.tw, r)
	if err != nil {
		return n, fmt.Errorf("cannot write content: %w", err)
	}
	if n != e.Size {
		return n, fmt.Errorf("content size mismatch: %d of %d bytes", n, e.Size)
	}
	return n, nil
}

// Close writes the tar footer.
func (t *tarWriter) Close() error {
	return t.tw.Close()
}
