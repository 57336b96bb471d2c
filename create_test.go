// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	archive "github.com/hashicorp/go-archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingWriter is an [archive.EntryWriter] that records all entries
type recordingWriter struct {
	mock.Mock
	entries  []archive.Entry
	contents map[string]string
}

func newRecordingWriter() *recordingWriter {
	w := &recordingWriter{contents: map[string]string{}}
	w.On("Close").Return(nil)
	return w
}

func (w *recordingWriter) Format() string {
	return "recording"
}

func (w *recordingWriter) WriteEntry(e archive.Entry, r io.Reader) (int64, error) {
	w.entries = append(w.entries, e)
	if r == nil {
		return 0, nil
	}
	content, err := io.ReadAll(r)
	w.contents[e.Name] = string(content)
	return int64(len(content)), err
}

func (w *recordingWriter) Close() error {
	return w.Called().Error(0)
}

// names returns the names of all recorded entries
func (w *recordingWriter) names() []string {
	names := make([]string, 0, len(w.entries))
	for _, e := range w.entries {
		names = append(names, e.Name)
	}
	return names
}

func TestCreateEntriesOrder(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"b/":        "",
		"b/z.txt":   "z",
		"b/a/":      "",
		"b/a/x.txt": "x",
		"a.txt":     "a",
		"c":         "->a.txt",
	})

	w := newRecordingWriter()
	err := archive.CreateEntries(context.Background(), w, []archive.Source{{Name: "root", Path: src}}, archive.NewConfig())
	require.NoError(t, err)
	w.AssertCalled(t, "Close")

	// parents before children, children in lexical order
	assert.Equal(t, []string{
		"root",
		"root/a.txt",
		"root/b",
		"root/b/a",
		"root/b/a/x.txt",
		"root/b/z.txt",
		"root/c",
	}, w.names())

	types := map[string]archive.EntryType{}
	for _, e := range w.entries {
		types[e.Name] = e.Type
		require.NoError(t, e.Validate())
	}
	assert.Equal(t, archive.TypeDir, types["root"])
	assert.Equal(t, archive.TypeFile, types["root/a.txt"])
	assert.Equal(t, archive.TypeSymlink, types["root/c"])

	assert.Equal(t, "a", w.contents["root/a.txt"])
	assert.Equal(t, "x", w.contents["root/b/a/x.txt"])
	assert.Equal(t, "a.txt", w.entries[len(w.entries)-1].LinkTarget)
}

func TestCreateEntriesSourceNames(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"dir/":     "",
		"dir/file": "content",
		"single":   "single",
	})

	cases := []struct {
		name    string
		sources []archive.Source
		opts    []archive.ConfigOption
		expect  []string
	}{
		{
			name:    "children at root",
			sources: []archive.Source{{Path: filepath.Join(src, "dir")}},
			expect:  []string{"file"},
		},
		{
			name:    "file without name",
			sources: []archive.Source{{Path: filepath.Join(src, "single")}},
			expect:  []string{"single"},
		},
		{
			name:    "renamed file",
			sources: []archive.Source{{Name: "other/name", Path: filepath.Join(src, "single")}},
			expect:  []string{"other/name"},
		},
		{
			name:    "name is cleaned",
			sources: []archive.Source{{Name: "/../x/./y/", Path: filepath.Join(src, "single")}},
			expect:  []string{"x/y"},
		},
		{
			name:    "name prefix",
			sources: []archive.Source{{Name: "dir", Path: filepath.Join(src, "dir")}},
			opts:    []archive.ConfigOption{archive.WithNamePrefix("release-1.0")},
			expect:  []string{"release-1.0/dir", "release-1.0/dir/file"},
		},
		{
			name: "multiple sources",
			sources: []archive.Source{
				{Name: "b", Path: filepath.Join(src, "single")},
				{Name: "a", Path: filepath.Join(src, "dir")},
			},
			expect: []string{"b", "a", "a/file"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newRecordingWriter()
			err := archive.CreateEntries(context.Background(), w, tc.sources, archive.NewConfig(tc.opts...))
			require.NoError(t, err)
			assert.Equal(t, tc.expect, w.names())
		})
	}
}

func TestCreateEntriesFilter(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":        "k",
		"skip.log":        "s",
		"logs/":           "",
		"logs/inner.txt":  "i",
		"logs/inner.log":  "l",
		"other/":          "",
		"other/file.txt":  "o",
		"other/file.log":  "o",
		"other/deep/":     "",
		"other/deep/a.go": "a",
	})

	var hints []string
	var processed []string
	exclude, err := archive.ExcludeFilter("*.log", "**/*.log", "logs")
	require.NoError(t, err)

	w := newRecordingWriter()
	err = archive.CreateEntries(context.Background(), w, []archive.Source{{Path: src}}, archive.NewConfig(
		archive.WithFilter(exclude),
		archive.WithFilter(func(name string, hint string) bool {
			hints = append(hints, hint)
			return true
		}),
		archive.WithPostProcessor(func(_ context.Context, e archive.Entry, err error) {
			processed = append(processed, e.Name)
		}),
	))
	require.NoError(t, err)

	// rejected directories are still walked, but "logs" excludes its children too
	assert.Equal(t, []string{"keep.txt", "other", "other/deep", "other/deep/a.go", "other/file.txt"}, w.names())
	assert.Equal(t, w.names(), processed)

	// the hint is the source path
	for _, h := range hints {
		assert.Contains(t, h, src)
	}
}

func TestCreateEntriesFilteredDirectoryIsWalked(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"vendor/":         "",
		"vendor/lib.go":   "l",
		"vendor/lib.txt":  "t",
		"main.go":         "m",
		"docs/":           "",
		"docs/readme.txt": "r",
	})

	w := newRecordingWriter()
	err := archive.CreateEntries(context.Background(), w, []archive.Source{{Path: src}}, archive.NewConfig(
		archive.WithFilter(func(name string, _ string) bool {
			return filepath.Ext(name) == ".go"
		}),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "vendor/lib.go"}, w.names())
}

func TestCreateEntriesErrors(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a"})
	missing := filepath.Join(src, "missing")

	// missing sources abort by default
	w := newRecordingWriter()
	err := archive.CreateEntries(context.Background(), w, []archive.Source{
		{Name: "missing", Path: missing},
		{Name: "a", Path: filepath.Join(src, "a")},
	}, archive.NewConfig())
	require.Error(t, err)
	var ee *archive.EntryError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "missing", ee.Entry.Name)
	assert.Empty(t, w.names())
	w.AssertCalled(t, "Close")

	// and can be skipped
	var td archive.TelemetryData
	w = newRecordingWriter()
	err = archive.CreateEntries(context.Background(), w, []archive.Source{
		{Name: "missing", Path: missing},
		{Name: "a", Path: filepath.Join(src, "a")},
	}, archive.NewConfig(
		archive.WithContinueOnError(true),
		archive.WithTelemetryHook(func(_ context.Context, d *archive.TelemetryData) { td = *d }),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, w.names())
	assert.Equal(t, int64(1), td.Skipped)
	assert.Equal(t, int64(1), td.Files)
	assert.Equal(t, "create", td.Operation)
}

// failingWriter fails on every entry
type failingWriter struct {
	*recordingWriter
	err error
}

func (w *failingWriter) WriteEntry(e archive.Entry, r io.Reader) (int64, error) {
	return 0, w.err
}

func TestCreateEntriesWriterFailure(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a", "b": "b"})
	broken := errors.New("broken pipe")

	w := &failingWriter{recordingWriter: newRecordingWriter(), err: broken}
	err := archive.CreateEntries(context.Background(), w, []archive.Source{{Path: src}}, archive.NewConfig(
		archive.WithContinueOnError(true),
	))

	// writer failures end the run regardless of the error handler
	require.ErrorIs(t, err, broken)
	var ce *archive.CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "recording", ce.Format)
}

func TestCreateEntriesCloseError(t *testing.T) {
	w := &recordingWriter{contents: map[string]string{}}
	w.On("Close").Return(errors.New("flush failed"))

	err := archive.CreateEntries(context.Background(), w, nil, archive.NewConfig())
	var ce *archive.CodecError
	require.ErrorAs(t, err, &ce)
}

func TestCreateEntriesUnsupported(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"long-file-name-for-ar.txt": "x", "short": "y"})

	// ar cannot store long names
	var buf bytes.Buffer
	err := archive.Create(context.Background(), &buf, "ar", []archive.Source{{Path: src}}, archive.NewConfig())
	require.ErrorIs(t, err, archive.ErrUnsupportedEntry)

	var td archive.TelemetryData
	buf.Reset()
	err = archive.Create(context.Background(), &buf, "ar", []archive.Source{{Path: src}}, archive.NewConfig(
		archive.WithContinueOnUnsupportedFiles(true),
		archive.WithTelemetryHook(func(_ context.Context, d *archive.TelemetryData) { td = *d }),
	))
	require.NoError(t, err)
	assert.Equal(t, int64(1), td.UnsupportedFiles)
	assert.Equal(t, "long-file-name-for-ar.txt", td.LastUnsupportedFile)
	assert.Equal(t, int64(1), td.Files)
}

func TestCreateEntriesMaxFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a", "b": "b", "c": "c"})

	w := newRecordingWriter()
	err := archive.CreateEntries(context.Background(), w, []archive.Source{{Path: src}}, archive.NewConfig(
		archive.WithMaxFiles(2),
	))
	require.ErrorIs(t, err, archive.ErrMaxFilesExceeded)
	assert.Equal(t, []string{"a", "b"}, w.names())
}

func TestCreateEntriesContextCanceled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newRecordingWriter()
	err := archive.CreateEntries(ctx, w, []archive.Source{{Path: src}}, archive.NewConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.names())
}

func TestCreateFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"dir/": "", "dir/file": "content"})
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out.tar.gz")

	sources := []archive.Source{{Name: "dir", Path: filepath.Join(src, "dir")}}
	require.NoError(t, archive.CreateFile(context.Background(), path, sources, nil))

	// existing archives are kept by default
	err := archive.CreateFile(context.Background(), path, sources, nil)
	require.ErrorIs(t, err, archive.ErrAlreadyExists)
	require.NoError(t, archive.CreateFile(context.Background(), path, sources, archive.NewConfig(archive.WithOverwrite(true))))

	dst := filepath.Join(tmp, "dst")
	require.NoError(t, archive.ExtractFile(context.Background(), path, dst, archive.NewConfig(archive.WithCreateDestination(true))))
	assert.Equal(t, map[string]string{"dir/": "", "dir/file": "content"}, readTree(t, dst))

	// unknown extension
	err = archive.CreateFile(context.Background(), filepath.Join(tmp, "out.unknown"), sources, nil)
	var ufe *archive.UnsupportedFormatError
	require.ErrorAs(t, err, &ufe)

	// failed creation leaves nothing behind
	bad := filepath.Join(tmp, "bad.zip")
	err = archive.CreateFile(context.Background(), bad, []archive.Source{{Name: "x", Path: filepath.Join(src, "missing")}}, nil)
	require.Error(t, err)
	_, statErr := os.Stat(bad)
	assert.True(t, os.IsNotExist(statErr))
}
