// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/cavaliergopher/cpio"
)

// fileExtensionCpio is the file extension for cpio files
const fileExtensionCpio = "cpio"

// magicBytesCpio are the magic bytes of the SVR4 (newc) cpio format
// reference: https://man.freebsd.org/cgi/man.cgi?query=cpio&sektion=5
var magicBytesCpio = [][]byte{
	[]byte("070701"),
	[]byte("070702"),
}

// containerCpio reads and writes cpio archives
var containerCpio = container{
	Name:       fileExtensionCpio,
	MagicBytes: magicBytesCpio,
	NewReader:  newCpioReader,
	NewWriter:  newCpioWriter,
}

// cpioReader is an [EntryReader] for cpio archives
type cpioReader struct {
	cr      *cpio.Reader
	names   nameCodec
	content streamContent
}

// newCpioReader returns a sequential reader for the cpio archive in src.
func newCpioReader(src io.Reader, cfg *Config) (EntryReader, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &cpioReader{cr: cpio.NewReader(src), names: names}, nil
}

// Format returns the name of the format.
func (c *cpioReader) Format() string {
	return fileExtensionCpio
}

// Next returns the next entry of the archive.
func (c *cpioReader) Next() (Entry, error) {
	for {
		hdr, err := c.cr.Next()
		if err != nil {
			c.content.reset(nil)
			return Entry{}, err
		}
		name, err := c.names.decode(hdr.Name)
		if err != nil {
			return Entry{}, err
		}
		if name == "." {
			continue
		}

		c.content.reset(c.cr)
		fi := hdr.FileInfo()
		mode := fi.Mode()
		if !mode.IsRegular() && !mode.IsDir() && mode.Type() != fs.ModeSymlink {
			e := newEntry(name, mode&modeBits, 0, hdr.ModTime, "")
			e.Type = TypeOther
			return e, nil
		}

		// the link target is either decoded by the library or stored as content
		var link string
		if mode.Type() == fs.ModeSymlink {
			link = hdr.Linkname
			if len(link) == 0 {
				if link, err = readLinkTarget(c.content.open); err != nil {
					return Entry{}, err
				}
			}
			if link, err = c.names.decode(link); err != nil {
				return Entry{}, err
			}
		}
		return newEntry(name, mode, hdr.Size, hdr.ModTime, link), nil
	}
}

// Open returns the content of the current entry.
func (c *cpioReader) Open() (io.ReadCloser, error) {
	return c.content.open()
}

// Close is a no-op, cpio has no resources to release.
func (c *cpioReader) Close() error {
	return nil
}

// cpioWriter is an [EntryWriter] for cpio archives
type cpioWriter struct {
	cw    *cpio.Writer
	names nameCodec
	cfg   *Config
}

// newCpioWriter returns a writer that writes a cpio archive in SVR4 format to w.
func newCpioWriter(w io.Writer, cfg *Config) (EntryWriter, error) {
	names, err := newNameCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &cpioWriter{cw: cpio.NewWriter(w), names: names, cfg: cfg}, nil
}

// Format returns the name of the format.
func (c *cpioWriter) Format() string {
	return fileExtensionCpio
}

// WriteEntry writes the header of e and its content. Symlink targets are
// stored as content.
func (c *cpioWriter) WriteEntry(e Entry, r io.Reader) (int64, error) {
	if e.Type == TypeOther {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEntry, e.Name)
	}

	// cpio needs the size upfront
	e, r, cleanup, err := resolveSize(c.cfg, e, r)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	hdr, err := cpio.FileInfoHeader(entryFileInfo{e}, "")
	if err != nil {
		return 0, fmt.Errorf("cannot create header: %w", err)
	}
	if hdr.Name, err = c.names.encode(e.Name); err != nil {
		return 0, err
	}
	hdr.ModTime = e.ModTime
	hdr.Linkname = ""
	var link string
	switch e.Type {
	case TypeSymlink:
		if link, err = c.names.encode(e.LinkTarget); err != nil {
			return 0, err
		}
		hdr.Size = int64(len(link))
	case TypeDir:
		hdr.Size = 0
	}

	if err := c.cw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("cannot write header: %w", err)
	}
	switch e.Type {
	case TypeSymlink:
		if _, err := io.WriteString(c.cw, link); err != nil {
			return 0, fmt.Errorf("cannot write symlink: %w", err)
		}
		return 0, nil
	case TypeFile:
		n, err := io.Copy(c.cw, r)
		if err != nil {
			return n, fmt.Errorf("cannot write content: %w", err)
		}
		if n != e.Size {
			return n, fmt.Errorf("content size mismatch: %d of %d bytes", n, e.Size)
		}
		return n, nil
	}
	return 0, nil
}

// Close writes the trailer.
func (c *cpioWriter) Close() error {
	return c.cw.Close()
}
