// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/golang/snappy"
)

// fileExtensionSnappy is the file extension for snappy files
const fileExtensionSnappy = "sz"

// magicBytesSnappy are the magic bytes for snappy framed streams
// reference: https://github.com/google/snappy/blob/main/framing_format.txt
var magicBytesSnappy = [][]byte{
	append([]byte{0xff, 0x06, 0x00, 0x00}, []byte("sNaPpY")...),
}

// compressionSnappy reads and writes snappy framed streams
var compressionSnappy = compression{
	Name:       fileExtensionSnappy,
	MagicBytes: magicBytesSnappy,
	NewReader:  decompressSnappyStream,
	NewWriter:  compressSnappyStream,
}

func decompressSnappyStream(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

// compressSnappyStream returns a buffered writer; snappy has no compression levels.
func compressSnappyStream(w io.Writer, _ FormatOptions) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}
