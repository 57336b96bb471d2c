// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// TargetDisk is the struct type that holds all information for interacting with the filesystem
type TargetDisk struct{}

// NewTargetDisk creates a new TargetDisk
func NewTargetDisk() *TargetDisk {
	// create object
	td := &TargetDisk{}
	return td
}

// CreateDir creates a directory at the specified path with the specified mode. If the directory already
// exists, nothing is done.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {

	// create dirs
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// CreateFile creates a file at the specified path with src as content.
// An existing object is only replaced if overwrite is true. It is removed before the
// file is created exclusively, so content is never written through an existing symlink.
// If the write fails, the partial file is removed.
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	// check for existence and overwrite
	if err := d.clear(path, overwrite); err != nil {
		return 0, err
	}

	// create dst file
	dstFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	// write data to file
	writer := limitWriter(dstFile, maxSize)
	n, err := io.Copy(writer, src)
	if cErr := dstFile.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// CreateSymlink creates a symbolic link from newname to oldname. If
// newname already exists and overwrite is false, an error is returned.
func (d *TargetDisk) CreateSymlink(oldname string, newname string, overwrite bool) error {

	// check for existence and overwrite
	if err := d.clear(newname, overwrite); err != nil {
		return err
	}

	// create link
	if err := os.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}

	return nil
}

// clear removes the object at path if overwrite is enabled. Directories are only
// removed if they are empty.
func (d *TargetDisk) clear(path string, overwrite bool) error {
	if _, err := os.Lstat(path); !os.IsNotExist(err) {

		// something wrong with path
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		// check for overwrite
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}

		// delete existing object
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to overwrite: %w", err)
		}
	}
	return nil
}

// Lstat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

// Remove removes the named file or (empty) directory.
func (d *TargetDisk) Remove(name string) error {
	return os.Remove(name)
}

// Chmod changes the mode of the named file to mode.
func (d *TargetDisk) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode&modeBits)
}

// Chtimes changes the access and modification times of the named file.
func (d *TargetDisk) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Lchtimes changes the access and modification times of the named file.
// It does not follow symlinks.
func (d *TargetDisk) Lchtimes(name string, atime, mtime time.Time) error {
	if canMaintainSymlinkTimestamps {
		return lchtimes(name, atime, mtime)
	}
	return nil
}
