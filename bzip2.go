// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// fileExtensionBzip2 is the file extension for bzip2 files
const fileExtensionBzip2 = "bz2"

// magicBytesBzip2 are the magic bytes for bzip2 compressed files
// reference: https://en.wikipedia.org/wiki/Bzip2 // https://github.com/dsnet/compress/blob/master/doc/bzip2-format.pdf
var magicBytesBzip2 = [][]byte{
	[]byte("BZh1"),
	[]byte("BZh2"),
	[]byte("BZh3"),
	[]byte("BZh4"),
	[]byte("BZh5"),
	[]byte("BZh6"),
	[]byte("BZh7"),
	[]byte("BZh8"),
	[]byte("BZh9"),
}

// compressionBzip2 reads and writes bzip2 streams
var compressionBzip2 = compression{
	Name:       fileExtensionBzip2,
	MagicBytes: magicBytesBzip2,
	NewReader:  decompressBz2Stream,
	NewWriter:  compressBz2Stream,
}

func decompressBz2Stream(src io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(src, nil)
}

// compressBz2Stream returns a writer that compresses into w. Levels outside of
// 1-9 select the default level.
func compressBz2Stream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	level := opts.CompressionLevel
	if level < bzip2.BestSpeed || level > bzip2.BestCompression {
		level = bzip2.DefaultCompression
	}
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
}
