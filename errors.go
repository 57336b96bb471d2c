// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned before any entry is processed if the
	// configuration cannot be used, e.g., for a negative strip count.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidEntry is returned for an entry that violates the invariants of [Entry].
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrPathTraversal is returned if the name of an entry contains a ".." segment
	// or resolves outside of the destination.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrSymlinkEscape is returned if the target of a symlink points outside of the
	// destination and the symlink policy is [SymlinkDisallow].
	ErrSymlinkEscape = errors.New("symlink target escapes destination")

	// ErrSymlinkInPath is returned if an existing symlink would be traversed to
	// reach the destination of an entry.
	ErrSymlinkInPath = errors.New("symlink in path")

	// ErrCollapsedToRoot is returned if a file or symlink would be materialized as
	// the destination directory itself after stripping leading path components.
	ErrCollapsedToRoot = errors.New("entry collapses to destination root")

	// ErrAlreadyExists is returned if the destination of an entry exists and
	// overwriting is disabled.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupportedEntry is returned for entries that cannot be materialized or
	// archived, e.g., hard links, FIFOs or device files.
	ErrUnsupportedEntry = errors.New("unsupported entry type")

	// ErrContentConsumed is returned if the content of a streamed entry is opened
	// again after bytes have already been read from it.
	ErrContentConsumed = errors.New("entry content already consumed")

	// ErrMaxFilesExceeded is returned if the maximum number of entries is exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded is returned if the maximum extraction size is exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded is returned if the maximum input size is exceeded.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")
)

// IsSecurityViolation reports whether err is caused by a path traversal or a
// symlink escape. Such errors indicate a malicious or corrupt archive.
func IsSecurityViolation(err error) bool {
	return errors.Is(err, ErrPathTraversal) ||
		errors.Is(err, ErrSymlinkEscape) ||
		errors.Is(err, ErrSymlinkInPath)
}

// EntryError is returned from a run that was aborted while processing an entry.
type EntryError struct {
	// Entry is the entry that triggered the abort.
	Entry Entry

	// Err is the cause.
	Err error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entry.Name, e.Err)
}

// Unwrap returns the cause.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// CodecError is returned if the container itself cannot be read or written,
// e.g., for a malformed header or a truncated stream. A run never continues
// after a codec error, because subsequent entries cannot be located reliably.
type CodecError struct {
	// Format is the name of the container format.
	Format string

	// Err is the cause.
	Err error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	return fmt.Sprintf("%s codec: %s", e.Format, e.Err)
}

// Unwrap returns the cause.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError is returned if no codec adapter can serve the requested
// format and operation.
type UnsupportedFormatError struct {
	// Format is the requested or detected format. It is empty if detection failed.
	Format string

	// Op is the requested operation, either "read" or "write".
	Op string
}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	if len(e.Format) == 0 {
		return fmt.Sprintf("archive type not supported for %s", e.Op)
	}
	return fmt.Sprintf("archive type %q not supported for %s", e.Format, e.Op)
}
