// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"
	"runtime"

	"github.com/klauspost/pgzip"
)

// fileExtensionGZip is the file extension for gzip files.
const fileExtensionGZip = "gz"

// defaultGZipBlockSize is the block size of the concurrent gzip writer
const defaultGZipBlockSize = 1 << 20

// magicBytesGZip are the magic bytes for gzip compressed files.
//
// https://socketloop.com/tutorials/golang-gunzip-file
var magicBytesGZip = [][]byte{
	{0x1f, 0x8b},
}

// compressionGZip reads and writes gzip streams
var compressionGZip = compression{
	Name:       fileExtensionGZip,
	MagicBytes: magicBytesGZip,
	NewReader:  decompressGZipStream,
	NewWriter:  compressGZipStream,
}

// decompressGZipStream returns an io.Reader that decompresses src with gzip algorithm.
func decompressGZipStream(src io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(src)
}

// compressGZipStream returns a writer that compresses into w. Blocks of
// opts.BlockSize bytes are compressed concurrently, up to opts.Blocks at once.
func compressGZipStream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	zw, err := pgzip.NewWriterLevel(w, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	if opts.BlockSize > 0 || opts.Blocks > 0 {
		blockSize, blocks := opts.BlockSize, opts.Blocks
		if blockSize <= 0 {
			blockSize = defaultGZipBlockSize
		}
		if blocks <= 0 {
			blocks = runtime.GOMAXPROCS(0)
		}
		if err := zw.SetConcurrency(blockSize, blocks); err != nil {
			return nil, err
		}
	}
	return zw, nil
}
