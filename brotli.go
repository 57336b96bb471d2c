// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/andybalholm/brotli"
)

// fileExtensionBrotli is the file extension for brotli files
const fileExtensionBrotli = "br"

// compressionBrotli reads and writes brotli streams. Brotli has no magic bytes,
// the format must be selected with [WithExtractType] or by file extension.
var compressionBrotli = compression{
	Name:      fileExtensionBrotli,
	NewReader: decompressBrotliStream,
	NewWriter: compressBrotliStream,
}

func decompressBrotliStream(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}

func compressBrotliStream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	level := opts.CompressionLevel
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		level = brotli.DefaultCompression
	}
	return brotli.NewWriterLevel(w, level), nil
}
