// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// fileExtensionLZ4 is the file extension for lz4 files
const fileExtensionLZ4 = "lz4"

// magicBytesLZ4 are the magic bytes for lz4 compressed files
// reference: https://android.googlesource.com/platform/external/lz4/+/HEAD/doc/lz4_Frame_format.md
var magicBytesLZ4 = [][]byte{
	{0x04, 0x22, 0x4D, 0x18},
}

// lz4Levels maps the compression levels 0-9 onto lz4 levels
var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// compressionLZ4 reads and writes lz4 streams
var compressionLZ4 = compression{
	Name:       fileExtensionLZ4,
	MagicBytes: magicBytesLZ4,
	NewReader:  decompressLZ4Stream,
	NewWriter:  compressLZ4Stream,
}

func decompressLZ4Stream(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

func compressLZ4Stream(w io.Writer, opts FormatOptions) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if opts.CompressionLevel >= 0 && opts.CompressionLevel < len(lz4Levels) {
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[opts.CompressionLevel])); err != nil {
			return nil, err
		}
	}
	return zw, nil
}
