// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// fileExtensionZlib is the file extension for zlib files
const fileExtensionZlib = "zz"

// magicBytesZlib are the magic bytes for zlib compressed files
// reference: https://stackoverflow.com/a/43170354
var magicBytesZlib = [][]byte{
	{0x78, 0x01},
	{0x78, 0x5e},
	{0x78, 0x9c},
	{0x78, 0xda},
	{0x78, 0x20},
	{0x78, 0x7d},
	{0x78, 0xbb},
	{0x78, 0xf9},
}

// compressionZlib reads and writes zlib streams
var compressionZlib = compression{
	Name:       fileExtensionZlib,
	MagicBytes: magicBytesZlib,
	NewReader:  decompressZlibStream,
	NewWriter:  compressZlibStream,
}

func decompressZlibStream(src io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(src)
}

func compressZlibStream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	return zlib.NewWriterLevel(w, opts.CompressionLevel)
}
