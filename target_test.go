// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive_test

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	archive "github.com/hashicorp/go-archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDiskCreateFile(t *testing.T) {
	d := archive.NewTargetDisk()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "file")

	n, err := d.CreateFile(path, strings.NewReader("first"), 0644, false, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// existing files are kept without overwrite
	_, err = d.CreateFile(path, strings.NewReader("second"), 0644, false, -1)
	assert.ErrorIs(t, err, archive.ErrAlreadyExists)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))

	_, err = d.CreateFile(path, strings.NewReader("second"), 0644, true, -1)
	require.NoError(t, err)
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestTargetDiskCreateFileMaxSize(t *testing.T) {
	d := archive.NewTargetDisk()
	path := filepath.Join(t.TempDir(), "file")

	_, err := d.CreateFile(path, bytes.NewReader(make([]byte, 100)), 0644, false, 10)
	assert.ErrorIs(t, err, archive.ErrMaxExtractionSizeExceeded)

	// no partial file is left behind
	_, err = os.Lstat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	n, err := d.CreateFile(path, bytes.NewReader(make([]byte, 10)), 0644, false, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestTargetDiskCreateFileReplacesSymlink(t *testing.T) {
	d := archive.NewTargetDisk()
	tmp := t.TempDir()
	outside := filepath.Join(t.TempDir(), "outside")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0644))

	link := filepath.Join(tmp, "link")
	require.NoError(t, os.Symlink(outside, link))

	_, err := d.CreateFile(link, strings.NewReader("replaced"), 0644, true, -1)
	require.NoError(t, err)

	// the link is replaced, the target is untouched
	stat, err := os.Lstat(link)
	require.NoError(t, err)
	assert.True(t, stat.Mode().IsRegular())
	content, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestTargetDiskCreateSymlink(t *testing.T) {
	d := archive.NewTargetDisk()
	tmp := t.TempDir()
	link := filepath.Join(tmp, "link")

	require.NoError(t, d.CreateSymlink("target", link, false))
	assert.ErrorIs(t, d.CreateSymlink("other", link, false), archive.ErrAlreadyExists)
	require.NoError(t, d.CreateSymlink("other", link, true))

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "other", target)
}

func TestTargetDiskCreateDir(t *testing.T) {
	d := archive.NewTargetDisk()
	path := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, d.CreateDir(path, 0755))
	require.NoError(t, d.CreateDir(path, 0755))

	stat, err := d.Lstat(path)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())

	// a file is in the way
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, d.CreateDir(filepath.Join(file, "sub"), 0755))
}
