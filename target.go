// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"
)

// Target specifies all functions that are needed to materialize the entries of an archive
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If an object already exists at path and overwrite is false, an error wrapping
	// [ErrAlreadyExists] must be returned and the object must be left untouched. If overwrite is true, the existing
	// object is replaced, never written through. The size of the file must not exceed maxSize. If an error occurs,
	// no partial file is left behind. The number of bytes written is returned. If maxSize < 0, the file size is
	// not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// CreateDir creates a directory and all missing parents at the specified path with the specified mode. If the
	// directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// CreateSymlink creates a symbolic link from newname to oldname. If newname already exists and overwrite is false,
	// an error wrapping [ErrAlreadyExists] is returned. If overwrite is true, the existing object is replaced.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the extraction path
	// and for existing objects.
	Lstat(path string) (fs.FileInfo, error)

	// Remove see docs for os.Remove. Main purpose is to replace an existing object if overwrite is enabled.
	Remove(path string) error

	// Chmod see docs for os.Chmod. Main purpose is to set the file mode of a file or directory.
	Chmod(name string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes. Main purpose is to set the file times of a file or directory.
	Chtimes(name string, atime, mtime time.Time) error

	// Lchtimes see docs for os.Lchtimes. Main purpose is to set the file times of a symlink.
	Lchtimes(name string, atime, mtime time.Time) error
}

// prepareDestination ensures that the destination root exists. If it does not exist
// and createDestination is enabled, it is created with the configured directory mode.
func prepareDestination(t Target, dst string, cfg *Config) error {
	stat, err := t.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		if !cfg.CreateDestination() {
			return fmt.Errorf("destination does not exist: %s", dst)
		}
		if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
		cfg.Logger().Info("created destination directory", "path", dst)
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	if !stat.IsDir() && stat.Mode()&fs.ModeSymlink == 0 {
		return fmt.Errorf("destination is not a directory: %s", dst)
	}
	return nil
}

// ensureParent creates the missing ancestors of path below root. Existing ancestors
// are checked for symlinks before anything is created.
func ensureParent(t Target, root string, path string, cfg *Config) error {
	if err := checkSymlinksInPath(t, root, path, cfg.TraverseSymlinks(), cfg.Logger()); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir == root {
		return nil
	}
	if err := t.CreateDir(dir, cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return nil
}

// replaceable checks if an object at path may be replaced. It returns nil if
// nothing exists at path, or if it exists and overwrite is enabled.
func replaceable(t Target, path string, overwrite bool) (fs.FileInfo, error) {
	stat, err := t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if !overwrite {
		return stat, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	return stat, nil
}
