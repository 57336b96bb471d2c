// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive_test

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tarEntry describes an entry of a test tar archive
type tarEntry struct {
	Name     string
	Content  []byte
	Mode     int64
	Typeflag byte
	Linkname string
}

// packTar returns a tar archive with the given entries
func packTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		mode := e.Mode
		if mode == 0 {
			mode = 0644
		}
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     mode,
			Typeflag: e.Typeflag,
			Linkname: e.Linkname,
			ModTime:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		if e.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Content))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.Typeflag == tar.TypeReg {
			_, err := tw.Write(e.Content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// file returns a regular file entry
func file(name string, content string) tarEntry {
	return tarEntry{Name: name, Content: []byte(content), Typeflag: tar.TypeReg}
}

// dir returns a directory entry
func dir(name string) tarEntry {
	return tarEntry{Name: name, Mode: 0755, Typeflag: tar.TypeDir}
}

// symlink returns a symlink entry
func symlink(name string, target string) tarEntry {
	return tarEntry{Name: name, Mode: 0777, Typeflag: tar.TypeSymlink, Linkname: target}
}

// writeTree creates files below root. Names ending with "/" are directories and
// values starting with "->" are symlinks.
func writeTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := tree[name]
		path := filepath.Join(root, filepath.FromSlash(name))
		switch {
		case name[len(name)-1] == '/':
			require.NoError(t, os.MkdirAll(path, 0755))
		case len(content) > 2 && content[:2] == "->":
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.Symlink(content[2:], path))
		default:
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		}
	}
}

// chmodTree sets the permission bits of objects below root, independent of the
// umask
func chmodTree(t *testing.T, root string, modes map[string]fs.FileMode) {
	t.Helper()
	for name, mode := range modes {
		require.NoError(t, os.Chmod(filepath.Join(root, filepath.FromSlash(name)), mode))
	}
}

// assertModes checks the permission bits of objects below root. Windows only
// knows read-only files, so nothing is checked there.
func assertModes(t *testing.T, root string, modes map[string]fs.FileMode) {
	t.Helper()
	if runtime.GOOS == "windows" {
		return
	}
	for name, mode := range modes {
		stat, err := os.Lstat(filepath.Join(root, filepath.FromSlash(name)))
		if assert.NoError(t, err, name) {
			assert.Equal(t, mode, stat.Mode().Perm(), "%s: %s", name, stat.Mode())
		}
	}
}

// readTree returns all objects below root in the notation of writeTree
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			tree[name] = "->" + target
		case d.IsDir():
			tree[name+"/"] = ""
		default:
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree[name] = string(content)
		}
		return nil
	})
	require.NoError(t, err)
	return tree
}

// emptyDir reports whether dir has no children
func emptyDir(t *testing.T, dir string) bool {
	t.Helper()
	children, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(children) == 0
}
