// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// fileExtensionZstd is the file extension for zstd files
const fileExtensionZstd = "zst"

// magicBytesZstd are the magic bytes for zstd compressed files
// reference: https://datatracker.ietf.org/doc/html/rfc8878
var magicBytesZstd = [][]byte{
	{0x28, 0xb5, 0x2f, 0xfd},
}

// compressionZstd reads and writes zstd streams
var compressionZstd = compression{
	Name:       fileExtensionZstd,
	MagicBytes: magicBytesZstd,
	NewReader:  decompressZstdStream,
	NewWriter:  compressZstdStream,
}

func decompressZstdStream(src io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// compressZstdStream returns a writer that compresses into w. The compression
// level follows the zstd levels, a level <= 0 selects the default.
func compressZstdStream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	var zopts []zstd.EOption
	if opts.CompressionLevel > 0 {
		zopts = append(zopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
	}
	if opts.Blocks > 0 {
		zopts = append(zopts, zstd.WithEncoderConcurrency(opts.Blocks))
	}
	return zstd.NewWriter(w, zopts...)
}
