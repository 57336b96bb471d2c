// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EntryReader yields the entries of an archive container lazily, in archive order.
// It is forward only and cannot be restarted.
type EntryReader interface {
	// Format returns the name of the format, e.g., "tar.gz".
	Format() string

	// Next advances to the next entry. It returns io.EOF at the end of the archive.
	Next() (Entry, error)

	// Open returns the content of the current entry. Sequential formats fail with
	// [ErrContentConsumed] if the content was already read.
	Open() (io.ReadCloser, error)

	// Close releases all resources of the reader.
	Close() error
}

// EntryWriter serializes entries into an archive container.
type EntryWriter interface {
	// Format returns the name of the format, e.g., "tar.gz".
	Format() string

	// WriteEntry writes e and, for files, the content read from r. It returns the
	// number of content bytes written. If the size of e is -1, the content is read
	// until EOF. Entries that the format cannot represent are rejected with an
	// error wrapping [ErrUnsupportedEntry] before anything is written.
	WriteEntry(e Entry, r io.Reader) (int64, error)

	// Close flushes the container and releases all resources. It does not close
	// the underlying writer.
	Close() error
}

// seekerReaderAt is the input of formats that need random access.
type seekerReaderAt interface {
	io.ReaderAt
	io.Seeker
}

// container describes a container format and how to read and write it.
type container struct {
	// Name of the format and file extension
	Name string

	// MagicBytes identify the format at Offset
	MagicBytes [][]byte
	Offset     int

	// NewReader opens a sequential reader. Nil if the format needs random access.
	NewReader func(src io.Reader, cfg *Config) (EntryReader, error)

	// NewReaderAt opens a random access reader. Nil for sequential formats.
	NewReaderAt func(src io.ReaderAt, size int64, cfg *Config) (EntryReader, error)

	// NewWriter creates a writer. Nil if the format is read only.
	NewWriter func(w io.Writer, cfg *Config) (EntryWriter, error)
}

// compression describes a compression stream that can wrap a container.
type compression struct {
	// Name of the compression and file extension
	Name string

	// MagicBytes identify the compression at offset 0
	MagicBytes [][]byte

	// NewReader returns a decompressing reader
	NewReader func(src io.Reader) (io.ReadCloser, error)

	// NewWriter returns a compressing writer
	NewWriter func(w io.Writer, opts FormatOptions) (io.WriteCloser, error)
}

// availableContainers is the list of supported container formats in the order
// they are probed.
var availableContainers = []container{
	containerTar,
	containerZip,
	container7zip,
	containerRar,
	containerAr,
	containerCpio,
}

// availableCompressions is the list of supported compressions in the order they are probed.
var availableCompressions = []compression{
	compressionGZip,
	compressionBzip2,
	compressionXz,
	compressionZstd,
	compressionLZ4,
	compressionSnappy,
	compressionZlib,
	compressionBrotli,
}

// formatAliases maps well known short names onto the canonical format names
var formatAliases = map[string]string{
	"7zip":   "7z",
	"brotli": "br",
	"bzip2":  "bz2",
	"gzip":   "gz",
	"snappy": "sz",
	"tbz":    "tar.bz2",
	"tbz2":   "tar.bz2",
	"tgz":    "tar.gz",
	"tlz4":   "tar.lz4",
	"txz":    "tar.xz",
	"tzst":   "tar.zst",
	"zlib":   "zz",
	"zstd":   "zst",
}

// maxHeaderLength is the maximum header length of all formats
var maxHeaderLength int

// knownFormatNames holds all format names and aliases, longest first
var knownFormatNames []string

// init calculates the maximum header length and the list of known format names
func init() {
	for _, c := range availableContainers {
		for _, mb := range c.MagicBytes {
			if len(mb)+c.Offset > maxHeaderLength {
				maxHeaderLength = len(mb) + c.Offset
			}
		}
		knownFormatNames = append(knownFormatNames, c.Name)
		for _, k := range availableCompressions {
			knownFormatNames = append(knownFormatNames, c.Name+"."+k.Name)
		}
	}
	for _, k := range availableCompressions {
		for _, mb := range k.MagicBytes {
			if len(mb) > maxHeaderLength {
				maxHeaderLength = len(mb)
			}
		}
		knownFormatNames = append(knownFormatNames, k.Name)
	}
	for alias := range formatAliases {
		knownFormatNames = append(knownFormatNames, alias)
	}
	sort.SliceStable(knownFormatNames, func(i, j int) bool {
		return len(knownFormatNames[i]) > len(knownFormatNames[j])
	})
}

// matchesMagicBytes checks if the bytes in data are equal to magicBytes at the
// given offset.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	// check all possible magic bytes until match is found
	for _, mb := range magicBytes {
		// check if header is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		// check for byte match
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}

	// no match found
	return false
}

// findContainer returns the container with the given name.
func findContainer(name string) (container, bool) {
	for _, c := range availableContainers {
		if c.Name == name {
			return c, true
		}
	}
	return container{}, false
}

// findCompression returns the compression with the given name.
func findCompression(name string) (compression, bool) {
	for _, k := range availableCompressions {
		if k.Name == name {
			return k, true
		}
	}
	return compression{}, false
}

// detectContainer returns the name of the container that matches header.
func detectContainer(header []byte) string {
	for _, c := range availableContainers {
		if matchesMagicBytes(header, c.Offset, c.MagicBytes) {
			return c.Name
		}
	}
	return ""
}

// detectCompression returns the name of the compression that matches header.
func detectCompression(header []byte) string {
	for _, k := range availableCompressions {
		if matchesMagicBytes(header, 0, k.MagicBytes) {
			return k.Name
		}
	}
	return ""
}

// parseFormat splits a format name like "tar.gz", "tgz", "zip" or "zst" into the
// container and the compression. Either may be empty, but not both.
func parseFormat(name string) (string, string, bool) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".")
	if alias, ok := formatAliases[name]; ok {
		name = alias
	}

	cont, comp, _ := strings.Cut(name, ".")
	if alias, ok := formatAliases[comp]; ok {
		comp = alias
	}

	// single compression stream
	if _, ok := findContainer(cont); !ok {
		if len(comp) > 0 {
			return "", "", false
		}
		if _, ok := findCompression(cont); ok {
			return "", cont, true
		}
		return "", "", false
	}

	// container with optional compression
	if len(comp) > 0 {
		if _, ok := findCompression(comp); !ok {
			return "", "", false
		}
	}
	return cont, comp, true
}

// formatName joins container and compression into a format name.
func formatName(cont string, comp string) string {
	switch {
	case len(cont) == 0:
		return comp
	case len(comp) == 0:
		return cont
	default:
		return cont + "." + comp
	}
}

// FormatFromPath returns the format name that matches the file extension of path
// with the longest suffix match, e.g., "tar.gz" for "release.tar.gz". It returns an
// empty string if no format matches.
func FormatFromPath(path string) string {
	base := strings.ToLower(filepath.Base(path))
	for _, name := range knownFormatNames {
		if strings.HasSuffix(base, "."+name) {
			return name
		}
	}
	return ""
}

// OpenReader detects the format of src and returns an [EntryReader] for it.
//
// The compression and the container are identified by their magic bytes, unless a
// format is forced with [WithExtractType]. A compressed stream without a container
// is exposed as a single file entry. Formats that need random access, like zip and
// 7z, are read directly if src implements io.ReaderAt and io.Seeker, otherwise src
// is cached in memory or on disk, see [WithCacheInMemory].
//
// An unknown format is reported as [*UnsupportedFormatError]. The caller must close
// the returned reader.
func OpenReader(ctx context.Context, src io.Reader, cfg *Config) (EntryReader, error) {
	return openReader(ctx, src, cfg)
}

// openReader implements [OpenReader] and exposes the input accounting.
func openReader(ctx context.Context, src io.Reader, cfg *Config) (*codecReader, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// check for a forced format
	var cont, comp string
	forced := len(cfg.ExtractType()) > 0
	if forced {
		var ok bool
		if cont, comp, ok = parseFormat(cfg.ExtractType()); !ok {
			return nil, &UnsupportedFormatError{Format: cfg.ExtractType(), Op: "read"}
		}
	}

	// limit input size and read the header
	r := &codecReader{input: newLimitErrorReader(src, cfg.MaxInputSize())}
	hr, err := newHeaderReader(r.input, maxHeaderLength)
	if err != nil {
		return nil, err
	}
	if !forced {
		if cont = detectContainer(hr.PeekHeader()); len(cont) == 0 {
			comp = detectCompression(hr.PeekHeader())
		}
	}
	if len(cont) == 0 && len(comp) == 0 {
		return nil, &UnsupportedFormatError{Op: "read"}
	}

	// wrap decompression
	var stream io.Reader = hr
	if len(comp) > 0 {
		k, _ := findCompression(comp)
		dec, err := k.NewReader(hr)
		if err != nil {
			return nil, &CodecError{Format: comp, Err: fmt.Errorf("cannot start decompression: %w", err)}
		}
		r.cleanup = append(r.cleanup, dec.Close)
		stream = dec

		// look for a container in the decompressed stream
		if len(cont) == 0 && !cfg.NoUntarAfterDecompression() {
			dhr, err := newHeaderReader(dec, maxHeaderLength)
			if err != nil {
				r.Close()
				return nil, &CodecError{Format: comp, Err: err}
			}
			cont = detectContainer(dhr.PeekHeader())
			stream = dhr
		}

		// single file
		if len(cont) == 0 {
			r.format = comp
			r.EntryReader = newDecompressReader(stream, inputName(src), comp, cfg)
			cfg.Logger().Info("decompress", "fileExt", comp)
			return r, nil
		}
	}

	r.format = formatName(cont, comp)
	cfg.Logger().Info("extracting", "format", r.format)
	c, _ := findContainer(cont)
	if c.NewReaderAt == nil {
		er, err := c.NewReader(stream, cfg)
		if err != nil {
			r.Close()
			return nil, &CodecError{Format: r.format, Err: err}
		}
		r.EntryReader = er
		return r, nil
	}

	// random access: use the input directly if possible
	sra, ok := src.(seekerReaderAt)
	if !ok || len(comp) > 0 {
		var cleanup func() error
		sra, cleanup, err = readerToReaderAtSeeker(cfg, stream)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.cleanup = append(r.cleanup, cleanup)
	}
	size, err := sra.Seek(0, io.SeekEnd)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("cannot seek to end of reader: %w", err)
	}
	if len(comp) == 0 {
		r.size = size
		if cfg.MaxInputSize() != -1 && size > cfg.MaxInputSize() {
			r.Close()
			return nil, fmt.Errorf("%w: %d bytes", ErrMaxInputSizeExceeded, size)
		}
	}
	er, err := c.NewReaderAt(sra, size, cfg)
	if err != nil {
		r.Close()
		return nil, &CodecError{Format: r.format, Err: err}
	}
	r.EntryReader = er
	return r, nil
}

// inputName returns the base name of src if it is a file.
func inputName(src io.Reader) string {
	if f, ok := src.(*os.File); ok {
		return filepath.Base(f.Name())
	}
	return ""
}

// codecReader wraps the [EntryReader] of a container together with the layers
// below it: input limit, decompression and cache.
type codecReader struct {
	EntryReader
	format  string
	input   *limitErrorReader
	size    int64
	cleanup []func() error
}

// Format returns the combined format name, e.g., "tar.gz".
func (r *codecReader) Format() string {
	return r.format
}

// Next returns the next entry. Failures of the container are reported as [*CodecError].
func (r *codecReader) Next() (Entry, error) {
	e, err := r.EntryReader.Next()
	if err != nil && err != io.EOF {
		return e, asCodecError(r.format, err)
	}
	return e, err
}

// Close closes the container reader and all layers below it.
func (r *codecReader) Close() error {
	var errs []error
	if r.EntryReader != nil {
		errs = append(errs, r.EntryReader.Close())
	}
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, r.cleanup[i]())
	}
	r.cleanup = nil
	return errors.Join(errs...)
}

// inputSize returns the number of input bytes consumed so far, or the size of a
// random access input.
func (r *codecReader) inputSize() int64 {
	if r.size > 0 {
		return r.size
	}
	return r.input.ReadBytes()
}

// asCodecError wraps err into a [*CodecError], unless it already is one.
func asCodecError(format string, err error) error {
	var ce *CodecError
	if errors.As(err, &ce) {
		return err
	}
	return &CodecError{Format: format, Err: err}
}

// NewWriter returns an [EntryWriter] that writes an archive in the given format
// to w, e.g., "tar", "tar.gz", "tgz", "zip", "ar" or "cpio.xz".
//
// Read only formats (7z, rar), plain compression streams and unknown names are
// rejected with [*UnsupportedFormatError]. Closing the writer does not close w.
func NewWriter(w io.Writer, format string, cfg *Config) (EntryWriter, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// negotiate format
	cont, comp, ok := parseFormat(format)
	if !ok || len(cont) == 0 {
		return nil, &UnsupportedFormatError{Format: format, Op: "write"}
	}
	c, _ := findContainer(cont)
	if c.NewWriter == nil {
		return nil, &UnsupportedFormatError{Format: format, Op: "write"}
	}

	// wrap compression
	cw := &codecWriter{format: formatName(cont, comp)}
	sink := w
	if len(comp) > 0 {
		k, _ := findCompression(comp)
		zw, err := k.NewWriter(w, cfg.FormatOptions())
		if err != nil {
			return nil, &CodecError{Format: comp, Err: fmt.Errorf("cannot start compression: %w", err)}
		}
		cw.compressor = zw
		sink = zw
	}

	ew, err := c.NewWriter(sink, cfg)
	if err != nil {
		if cw.compressor != nil {
			cw.compressor.Close()
		}
		return nil, &CodecError{Format: cw.format, Err: err}
	}
	cw.EntryWriter = ew
	return cw, nil
}

// codecWriter wraps the [EntryWriter] of a container and the compression below it.
type codecWriter struct {
	EntryWriter
	format     string
	compressor io.WriteCloser
}

// Format returns the combined format name, e.g., "tar.gz".
func (w *codecWriter) Format() string {
	return w.format
}

// WriteEntry writes e. Failures of the container are reported as [*CodecError].
func (w *codecWriter) WriteEntry(e Entry, r io.Reader) (int64, error) {
	n, err := w.EntryWriter.WriteEntry(e, r)
	if err != nil && !errors.Is(err, ErrUnsupportedEntry) {
		return n, asCodecError(w.format, err)
	}
	return n, err
}

// Close flushes the container and the compression.
func (w *codecWriter) Close() error {
	err := w.EntryWriter.Close()
	if w.compressor != nil {
		err = errors.Join(err, w.compressor.Close())
	}
	if err != nil {
		return asCodecError(w.format, err)
	}
	return nil
}
