// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxSymlinkHops limits the number of symlinks followed while resolving a path.
const maxSymlinkHops = 40

var (
	errNotDir       = errors.New("not a directory")
	errIsDir        = errors.New("is a directory")
	errDirNotEmpty  = errors.New("directory not empty")
	errTooManyLinks = errors.New("too many levels of symbolic links")
)

// TargetMemory is an in-memory filesystem that implements [Target] and [fs.FS].
// It can be used to extract archives without touching the disk, and to inspect
// the result with the functions of the io/fs package. Permissions on entries are
// recorded, but not enforced.
//
// Paths passed to the [Target] methods are relative to the root of the memory, a
// leading separator is ignored. The [fs.FS] methods follow the naming rules of
// [fs.ValidPath].
type TargetMemory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewTargetMemory creates a new, empty in-memory filesystem.
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{
		entries: map[string]*memoryEntry{
			".": {info: memoryFileInfo{name: ".", mode: fs.ModeDir | 0755, modTime: time.Now()}},
		},
	}
}

// memoryEntry is a file, directory or symlink in the memory
type memoryEntry struct {
	info memoryFileInfo
	data []byte
	link string
}

func (e *memoryEntry) isSymlink() bool {
	return e.info.mode&fs.ModeSymlink != 0
}

// targetKey converts a path of the target into a key of the memory.
func targetKey(op string, name string) (string, error) {
	key := strings.TrimLeft(filepath.ToSlash(name), "/")
	if key == "" {
		key = "."
	}
	if !fs.ValidPath(key) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return key, nil
}

// resolveRoot maps the destination of an extraction into the memory.
func (m *TargetMemory) resolveRoot(dst string) (string, error) {
	key := path.Clean(strings.TrimLeft(filepath.ToSlash(dst), "/"))
	if !fs.ValidPath(key) {
		return "", fmt.Errorf("%w: %s", fs.ErrInvalid, dst)
	}
	return filepath.Join(string(filepath.Separator), filepath.FromSlash(key)), nil
}

// resolve follows all symlinks in key and returns the key of the entry it
// refers to. The final element is only followed if followLast is set. Callers
// must hold the lock.
func (m *TargetMemory) resolve(key string, followLast bool) (string, error) {
	parts := splitKey(key)
	cur := "."
	hops := 0
	for i := 0; i < len(parts); i++ {
		next := path.Join(cur, parts[i])
		e, ok := m.entries[next]
		if !ok {
			return "", fs.ErrNotExist
		}
		last := i == len(parts)-1
		if e.isSymlink() && (!last || followLast) {
			if hops++; hops > maxSymlinkHops {
				return "", errTooManyLinks
			}
			target, ok := linkKey(cur, e.link)
			if !ok {
				return "", fs.ErrNotExist
			}
			parts = append(splitKey(target), parts[i+1:]...)
			cur = "."
			i = -1
			continue
		}
		if !last && !e.info.IsDir() {
			return "", errNotDir
		}
		cur = next
	}
	return cur, nil
}

// parentKey resolves the directory of key and returns the key of the final
// element within it. Callers must hold the lock.
func (m *TargetMemory) parentKey(key string) (string, error) {
	if key == "." {
		return key, nil
	}
	dir, err := m.resolve(path.Dir(key), true)
	if err != nil {
		return "", err
	}
	if !m.entries[dir].info.IsDir() {
		return "", errNotDir
	}
	return path.Join(dir, path.Base(key)), nil
}

// splitKey returns the elements of key.
func splitKey(key string) []string {
	if key == "." {
		return nil
	}
	return strings.Split(key, "/")
}

// linkKey returns the key a symlink in dir with the given target points to.
// Absolute targets are relative to the root of the memory.
func linkKey(dir string, target string) (string, bool) {
	target = filepath.ToSlash(target)
	var key string
	if path.IsAbs(target) {
		key = path.Clean(strings.TrimLeft(target, "/"))
	} else {
		key = path.Join(dir, target)
	}
	return key, fs.ValidPath(key)
}

// CreateFile creates a file at the specified path with src as content. The parent
// directory must exist.
func (m *TargetMemory) CreateFile(name string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	key, err := targetKey("create", name)
	if err != nil {
		return 0, err
	}

	// read the content before the lock is taken
	var buf bytes.Buffer
	n, err := io.Copy(limitWriter(&buf, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, err = m.parentKey(key); err != nil {
		return 0, &fs.PathError{Op: "create", Path: name, Err: err}
	}
	if err := m.clear(key, overwrite); err != nil {
		return 0, err
	}
	m.entries[key] = &memoryEntry{
		info: memoryFileInfo{name: path.Base(key), size: n, mode: mode & modeBits, modTime: time.Now()},
		data: buf.Bytes(),
	}
	return n, nil
}

// CreateDir creates a directory and all missing parents at the specified path.
// If the directory already exists, nothing is done.
func (m *TargetMemory) CreateDir(name string, mode fs.FileMode) error {
	key, err := targetKey("mkdir", name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.mkdirAll(key, mode); err != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return nil
}

// mkdirAll creates key and its missing parents and returns the resolved key of
// the directory.
func (m *TargetMemory) mkdirAll(key string, mode fs.FileMode) (string, error) {
	if key == "." {
		return key, nil
	}
	dir, err := m.mkdirAll(path.Dir(key), mode)
	if err != nil {
		return "", err
	}
	key = path.Join(dir, path.Base(key))

	e, ok := m.entries[key]
	if !ok {
		m.entries[key] = &memoryEntry{
			info: memoryFileInfo{name: path.Base(key), mode: fs.ModeDir | mode.Perm(), modTime: time.Now()},
		}
		return key, nil
	}
	if e.isSymlink() {
		if key, err = m.resolve(key, true); err != nil {
			return "", err
		}
		e = m.entries[key]
	}
	if !e.info.IsDir() {
		return "", errNotDir
	}
	return key, nil
}

// CreateSymlink creates a symbolic link from newname to oldname.
func (m *TargetMemory) CreateSymlink(oldname string, newname string, overwrite bool) error {
	key, err := targetKey("symlink", newname)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, err = m.parentKey(key); err != nil {
		return &fs.PathError{Op: "symlink", Path: newname, Err: err}
	}
	if err := m.clear(key, overwrite); err != nil {
		return err
	}
	m.entries[key] = &memoryEntry{
		info: memoryFileInfo{name: path.Base(key), size: int64(len(oldname)), mode: fs.ModeSymlink | 0777, modTime: time.Now()},
		link: oldname,
	}
	return nil
}

// clear removes the object at key if overwrite is enabled. Callers must hold the lock.
func (m *TargetMemory) clear(key string, overwrite bool) error {
	if _, ok := m.entries[key]; !ok {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	if err := m.remove(key); err != nil {
		return fmt.Errorf("failed to overwrite: %w", err)
	}
	return nil
}

// Lstat returns the FileInfo of the named entry. Symlinks are not followed.
func (m *TargetMemory) Lstat(name string) (fs.FileInfo, error) {
	key, err := targetKey("lstat", name)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if key, err = m.parentKey(key); err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: err}
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: fs.ErrNotExist}
	}
	return e.info, nil
}

// Readlink returns the target of the named symlink.
func (m *TargetMemory) Readlink(name string) (string, error) {
	key, err := targetKey("readlink", name)
	if err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if key, err = m.parentKey(key); err != nil {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: err}
	}
	e, ok := m.entries[key]
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrNotExist}
	}
	if !e.isSymlink() {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	return e.link, nil
}

// Remove removes the named entry. Directories are only removed if they are empty.
func (m *TargetMemory) Remove(name string) error {
	key, err := targetKey("remove", name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, err = m.parentKey(key); err == nil {
		err = m.remove(key)
	}
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

// remove deletes key. Callers must hold the lock.
func (m *TargetMemory) remove(key string) error {
	e, ok := m.entries[key]
	if !ok {
		return fs.ErrNotExist
	}
	if key == "." {
		return fs.ErrPermission
	}
	if e.info.IsDir() {
		for k := range m.entries {
			if k != "." && path.Dir(k) == key {
				return errDirNotEmpty
			}
		}
	}
	delete(m.entries, key)
	return nil
}

// Chmod changes the mode of the named entry. Symlinks are followed.
func (m *TargetMemory) Chmod(name string, mode fs.FileMode) error {
	return m.update("chmod", name, true, func(e *memoryEntry) {
		e.info.mode = e.info.mode.Type() | mode&modeBits
	})
}

// Chtimes changes the modification time of the named entry. Symlinks are followed.
// The access time is not recorded.
func (m *TargetMemory) Chtimes(name string, _, mtime time.Time) error {
	return m.update("chtimes", name, true, func(e *memoryEntry) {
		e.info.modTime = mtime
	})
}

// Lchtimes changes the modification time of the named entry without following symlinks.
func (m *TargetMemory) Lchtimes(name string, _, mtime time.Time) error {
	return m.update("lchtimes", name, false, func(e *memoryEntry) {
		e.info.modTime = mtime
	})
}

// update applies fn to the named entry.
func (m *TargetMemory) update(op string, name string, follow bool, fn func(*memoryEntry)) error {
	key, err := targetKey(op, name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, err = m.parentKey(key); err == nil {
		key, err = m.resolve(key, follow)
	}
	if err != nil {
		return &fs.PathError{Op: op, Path: name, Err: err}
	}
	fn(m.entries[key])
	return nil
}

// lookup returns the entry of a valid fs.FS name with all symlinks followed.
// Callers must hold the lock.
func (m *TargetMemory) lookup(op string, name string) (*memoryEntry, string, error) {
	if !fs.ValidPath(name) {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	key, err := m.resolve(name, true)
	if err != nil {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: err}
	}
	return m.entries[key], key, nil
}

// Open opens the named file for reading. Symlinks are followed. Directories
// implement [fs.ReadDirFile].
func (m *TargetMemory) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, key, err := m.lookup("open", name)
	if err != nil {
		return nil, err
	}
	info := e.info
	info.name = path.Base(name)
	if info.IsDir() {
		return &memoryDir{info: info, entries: m.readDir(key)}, nil
	}
	return &memoryFile{info: info, r: bytes.NewReader(e.data)}, nil
}

// Stat returns the FileInfo of the named file. Symlinks are followed.
func (m *TargetMemory) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, _, err := m.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	info := e.info
	info.name = path.Base(name)
	return info, nil
}

// ReadFile returns a copy of the content of the named file.
func (m *TargetMemory) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, _, err := m.lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	if e.info.IsDir() {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
	}
	return bytes.Clone(e.data), nil
}

// ReadDir returns the entries of the named directory sorted by name.
func (m *TargetMemory) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, key, err := m.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !e.info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errNotDir}
	}
	return m.readDir(key), nil
}

// readDir lists the children of key. Callers must hold the lock.
func (m *TargetMemory) readDir(key string) []fs.DirEntry {
	entries := []fs.DirEntry{}
	for k, e := range m.entries {
		if k != "." && path.Dir(k) == key {
			entries = append(entries, fs.FileInfoToDirEntry(e.info))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// Glob returns the names of all entries matching pattern.
func (m *TargetMemory) Glob(pattern string) ([]string, error) {
	return fs.Glob(struct{ fs.ReadDirFS }{m}, pattern)
}

// memoryFile is an opened file of the memory
type memoryFile struct {
	info memoryFileInfo
	r    *bytes.Reader
}

func (f *memoryFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *memoryFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *memoryFile) ReadAt(p []byte, off int64) (int, error) { return f.r.ReadAt(p, off) }

func (f *memoryFile) Seek(offset int64, whence int) (int64, error) { return f.r.Seek(offset, whence) }

func (f *memoryFile) Close() error { return nil }

// memoryDir is an opened directory of the memory
type memoryDir struct {
	info    memoryFileInfo
	entries []fs.DirEntry
	offset  int
}

func (d *memoryDir) Stat() (fs.FileInfo, error) { return d.info, nil }

func (d *memoryDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: errIsDir}
}

func (d *memoryDir) Close() error { return nil }

// ReadDir see docs for fs.ReadDirFile.
func (d *memoryDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}

// memoryFileInfo is a FileInfo implementation for the in-memory filesystem
type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

// Name returns the base name of the entry
func (fi memoryFileInfo) Name() string { return fi.name }

// Size returns the length of the content in bytes
func (fi memoryFileInfo) Size() int64 { return fi.size }

// Mode returns the mode of the entry
func (fi memoryFileInfo) Mode() fs.FileMode { return fi.mode }

// ModTime returns the modification time of the entry
func (fi memoryFileInfo) ModTime() time.Time { return fi.modTime }

// IsDir reports whether the entry is a directory
func (fi memoryFileInfo) IsDir() bool { return fi.mode.IsDir() }

// Sys returns nil
func (fi memoryFileInfo) Sys() any { return nil }
