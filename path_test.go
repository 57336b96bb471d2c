// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "dst")

	tests := []struct {
		name  string
		strip int
		want  string
		err   error
	}{
		{name: "file", want: "file"},
		{name: "a/b/c", want: "a/b/c"},
		{name: "./a/./b", want: "a/b"},
		{name: "/etc/passwd", want: "etc/passwd"},
		{name: "a//b/", want: "a/b"},
		{name: "../evil", err: ErrPathTraversal},
		{name: "a/../../evil", err: ErrPathTraversal},
		{name: "a/../b", err: ErrPathTraversal},
		{name: "..", err: ErrPathTraversal},
		{name: "", err: ErrCollapsedToRoot},
		{name: ".", err: ErrCollapsedToRoot},
		{name: "./", err: ErrCollapsedToRoot},
		{name: "pkg/bin/tool", strip: 1, want: "bin/tool"},
		{name: "./pkg/bin/tool", strip: 2, want: "tool"},
		{name: "pkg/bin", strip: 2, err: ErrCollapsedToRoot},
		{name: "pkg", strip: 3, err: ErrCollapsedToRoot},
		{name: "../pkg/file", strip: 1, want: "pkg/file"},
		{name: "pkg/../file", strip: 1, err: ErrPathTraversal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolvePath(root, tc.name, tc.strip)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tc.want)), got)
		})
	}
}

func TestCheckWithinRoot(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "dst")

	assert.NoError(t, checkWithinRoot(root, filepath.Join(root, "a"), false))
	assert.NoError(t, checkWithinRoot(root, filepath.Join(root, "a", "..", "b"), false))
	assert.ErrorIs(t, checkWithinRoot(root, root, false), ErrPathTraversal)
	assert.NoError(t, checkWithinRoot(root, root, true))
	assert.ErrorIs(t, checkWithinRoot(root, root+"-other", true), ErrPathTraversal)
	assert.ErrorIs(t, checkWithinRoot(root, filepath.Dir(root), true), ErrPathTraversal)
}

func TestCheckSymlinkTarget(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "dst")

	tests := []struct {
		link   string
		target string
		ok     bool
	}{
		{link: "a", target: "b", ok: true},
		{link: "a", target: ".", ok: true},
		{link: "dir/a", target: "..", ok: true},
		{link: "dir/a", target: "../b", ok: true},
		{link: "dir/a", target: "../../b"},
		{link: "a", target: ".."},
		{link: "a", target: "/etc/passwd"},
		{link: "a", target: root + "/inside", ok: true},
		{link: "a/b/c", target: "../../../../dst/x"},
		{link: "a/b/c", target: "../../../../etc"},
		{link: "a", target: "b/../../x"},
		{link: "a", target: "b/../x/./y", ok: true},
	}

	d := NewTargetDisk()
	log := NewConfig().Logger()
	for _, tc := range tests {
		t.Run(tc.link+"->"+tc.target, func(t *testing.T) {
			linkPath := filepath.Join(root, filepath.FromSlash(tc.link))
			err := checkSymlinkTarget(d, root, linkPath, tc.target, SymlinkDisallow, false, log)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrSymlinkEscape)
			}

			// every target is accepted with the allow policy
			assert.NoError(t, checkSymlinkTarget(d, root, linkPath, tc.target, SymlinkAllow, false, log))
		})
	}
}

func TestCheckSymlinkTargetChained(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir", "sub"), 0755))
	require.NoError(t, os.Symlink(".", filepath.Join(root, "self")))
	require.NoError(t, os.Symlink("dir/sub", filepath.Join(root, "deep")))
	d := NewTargetDisk()
	log := NewConfig().Logger()
	link := filepath.Join(root, "link")

	// "self/.." resolves to the parent of root
	assert.ErrorIs(t, checkSymlinkTarget(d, root, link, "self/..", SymlinkDisallow, false, log), ErrSymlinkEscape)
	assert.ErrorIs(t, checkSymlinkTarget(d, root, link, "self/self/x", SymlinkDisallow, false, log), ErrSymlinkEscape)
	assert.ErrorIs(t, checkSymlinkTarget(d, root, link, "deep/..", SymlinkDisallow, false, log), ErrSymlinkEscape)

	// pointing at a symlink does not traverse it
	assert.NoError(t, checkSymlinkTarget(d, root, link, "self", SymlinkDisallow, false, log))
	assert.NoError(t, checkSymlinkTarget(d, root, link, "dir/sub/..", SymlinkDisallow, false, log))
	assert.NoError(t, checkSymlinkTarget(d, root, link, "missing/x/..", SymlinkDisallow, false, log))

	// accepted on request
	assert.NoError(t, checkSymlinkTarget(d, root, link, "deep/..", SymlinkDisallow, true, log))
	assert.NoError(t, checkSymlinkTarget(d, root, link, "self/..", SymlinkAllow, false, log))
}

func TestCheckSymlinkTargetFilesystemRoot(t *testing.T) {
	root := string(os.PathSeparator)
	m := NewTargetMemory()
	log := NewConfig().Logger()

	// a walk cannot be clamped at the root of the filesystem
	assert.ErrorIs(t, checkSymlinkTarget(m, root, filepath.Join(root, "link"), "../outside", SymlinkDisallow, false, log), ErrSymlinkEscape)
	assert.ErrorIs(t, checkSymlinkTarget(m, root, filepath.Join(root, "a", "link"), "../../etc", SymlinkDisallow, false, log), ErrSymlinkEscape)
	assert.NoError(t, checkSymlinkTarget(m, root, filepath.Join(root, "a", "link"), "../etc", SymlinkDisallow, false, log))
	assert.NoError(t, checkSymlinkTarget(m, root, filepath.Join(root, "link"), "/etc", SymlinkDisallow, false, log))
}

func TestCheckSymlinksInPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir", "sub"), 0755))
	require.NoError(t, os.Symlink("dir", filepath.Join(root, "link")))
	d := NewTargetDisk()
	log := NewConfig().Logger()

	assert.NoError(t, checkSymlinksInPath(d, root, filepath.Join(root, "file"), false, log))
	assert.NoError(t, checkSymlinksInPath(d, root, filepath.Join(root, "dir", "sub", "file"), false, log))
	assert.NoError(t, checkSymlinksInPath(d, root, filepath.Join(root, "missing", "sub", "file"), false, log))

	// the link itself may be replaced, but not traversed
	assert.NoError(t, checkSymlinksInPath(d, root, filepath.Join(root, "link"), false, log))
	assert.ErrorIs(t, checkSymlinksInPath(d, root, filepath.Join(root, "link", "file"), false, log), ErrSymlinkInPath)
	assert.ErrorIs(t, checkSymlinksInPath(d, root, filepath.Join(root, "link", "sub", "file"), false, log), ErrSymlinkInPath)
	assert.NoError(t, checkSymlinksInPath(d, root, filepath.Join(root, "link", "file"), true, log))
}

func TestRelativeName(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "dst")
	assert.Equal(t, "a/b", relativeName(root, filepath.Join(root, "a", "b")))
	assert.Equal(t, ".", relativeName(root, root))
}

// FuzzResolvePath looks for names that resolve outside of the destination
func FuzzResolvePath(f *testing.F) {
	for _, name := range []string{"file", "../x", "a/../../b", "/abs", "./.", "a\\..\\b"} {
		f.Add(name, 0)
	}
	root := filepath.Join(string(os.PathSeparator), "dst")
	f.Fuzz(func(t *testing.T, name string, strip int) {
		if strip < 0 || strip > 8 {
			return
		}
		path, err := resolvePath(root, name, strip)
		if err != nil {
			return
		}
		if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			t.Fatalf("resolvePath(%q, %d) = %q escapes %q", name, strip, path, root)
		}
	})
}
