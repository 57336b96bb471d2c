// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// EntryType is the kind of filesystem object an [Entry] describes.
type EntryType int

const (
	// TypeFile is a regular file with content.
	TypeFile EntryType = iota

	// TypeDir is a directory.
	TypeDir

	// TypeSymlink is a symbolic link. The link target is stored in [Entry.LinkTarget].
	TypeSymlink

	// TypeOther is an object that is present in a container but cannot be
	// materialized, e.g., hard links, FIFOs or device files.
	TypeOther
)

// String returns a human-readable name of the entry type.
func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// modeBits is the set of permission bits an [Entry] can carry.
const modeBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Entry is the logical record of one item in an archive, independent of the
// byte-level encoding of the container.
//
// Entries are produced by an [EntryReader] during extraction and by the creation
// orchestrator during archive creation. They are passed by value and never modified
// after construction.
type Entry struct {
	// Name is the slash separated, archive relative path of the entry. It is never
	// empty and carries no trailing slash, also not for directories.
	Name string

	// Type is the kind of the entry.
	Type EntryType

	// Size is the content length in bytes. It is 0 for directories and symlinks and
	// -1 if the size of a file is not known upfront.
	Size int64

	// Mode holds the POSIX permission bits. 0 means unspecified.
	Mode fs.FileMode

	// ModTime is the modification time. The zero value means unspecified.
	ModTime time.Time

	// LinkTarget is the literal target of a symlink. It is set if, and only if,
	// Type is TypeSymlink.
	LinkTarget string
}

// IsDir reports whether e describes a directory.
func (e Entry) IsDir() bool {
	return e.Type == TypeDir
}

// IsRegular reports whether e describes a regular file.
func (e Entry) IsRegular() bool {
	return e.Type == TypeFile
}

// IsSymlink reports whether e describes a symbolic link.
func (e Entry) IsSymlink() bool {
	return e.Type == TypeSymlink
}

// Validate checks the invariants of an entry.
func (e Entry) Validate() error {
	if len(e.Name) == 0 {
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if (e.Type == TypeSymlink) != (len(e.LinkTarget) > 0) {
		return fmt.Errorf("%w: link target must be set only for symlinks: %s", ErrInvalidEntry, e.Name)
	}
	if e.Type == TypeDir && e.Size != 0 {
		return fmt.Errorf("%w: directory with size %d: %s", ErrInvalidEntry, e.Size, e.Name)
	}
	if e.Mode&^modeBits != 0 {
		return fmt.Errorf("%w: mode %s carries type bits: %s", ErrInvalidEntry, e.Mode, e.Name)
	}
	return nil
}

// String returns a short description of the entry, mainly used for logging.
func (e Entry) String() string {
	if e.Type == TypeSymlink {
		return fmt.Sprintf("%s %s -> %s", e.Type, e.Name, e.LinkTarget)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Name)
}

// newEntry normalizes what a codec adapter reads from a container header into an
// [Entry]. The type is derived from the type bits of mode.
func newEntry(name string, mode fs.FileMode, size int64, modTime time.Time, linkTarget string) Entry {
	e := Entry{
		Name:    strings.TrimSuffix(name, "/"),
		Mode:    mode & modeBits,
		ModTime: modTime,
	}
	switch {
	case mode.IsDir() || strings.HasSuffix(name, "/"):
		e.Type = TypeDir
	case mode&fs.ModeSymlink != 0:
		e.Type = TypeSymlink
		e.LinkTarget = linkTarget
	case mode.IsRegular():
		e.Type = TypeFile
		e.Size = size
	default:
		e.Type = TypeOther
	}

	// a directory named "/" or "./" must not end up without a name
	if len(e.Name) == 0 && len(name) > 0 {
		e.Name = name
	}
	return e
}

// entryFileInfo exposes an [Entry] as [fs.FileInfo], which some codec libraries
// expect when building headers.
type entryFileInfo struct {
	e Entry
}

// Name returns the base name of the entry.
func (fi entryFileInfo) Name() string {
	if i := strings.LastIndex(fi.e.Name, "/"); i >= 0 {
		return fi.e.Name[i+1:]
	}
	return fi.e.Name
}

// Size returns the size of the entry.
func (fi entryFileInfo) Size() int64 {
	if fi.e.Type == TypeSymlink {
		return int64(len(fi.e.LinkTarget))
	}
	return fi.e.Size
}

// Mode returns the permission bits combined with the type bits of the entry.
func (fi entryFileInfo) Mode() fs.FileMode {
	switch fi.e.Type {
	case TypeDir:
		return fi.e.Mode | fs.ModeDir
	case TypeSymlink:
		return fi.e.Mode | fs.ModeSymlink
	default:
		return fi.e.Mode
	}
}

// ModTime returns the modification time of the entry.
func (fi entryFileInfo) ModTime() time.Time { return fi.e.ModTime }

// IsDir reports whether the entry is a directory.
func (fi entryFileInfo) IsDir() bool { return fi.e.Type == TypeDir }

// Sys returns the underlying entry.
func (fi entryFileInfo) Sys() any { return fi.e }
