// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package archive creates and extracts archives, while it enforces safety policies
// that the underlying codecs do not provide.
//
// Extraction reads the entries of an archive one after another and maps them onto
// a destination directory. Entry names are stripped of leading components, checked
// for path traversal and, for symlinks, for targets outside of the destination.
// Existing files are only replaced on request, and failed entries are aborted,
// skipped or retried as decided by an [ErrorHandler]. The input is limited in size,
// number of entries and extracted bytes.
//
// Creation walks files and directories on disk and writes a directory before its
// children, in lexical order. Symlinks are recorded with their target and never
// followed.
//
// Supported containers are tar, zip, ar and cpio, plus 7z and rar for extraction.
// Each of them may be compressed with gzip, bzip2, xz, zstandard, lz4, snappy, zlib
// or brotli. A compressed stream without a container is extracted as a single file.
//
// Configuration is done with [Config] and its options, e.g., [WithStripComponents]
// or [WithOverwrite]. [TelemetryData] about each run is passed to the hook
// configured with [WithTelemetryHook].
package archive
