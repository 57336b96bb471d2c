// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	archive "github.com/hashicorp/go-archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckMaxFiles implements test cases
func TestCheckMaxFiles(t *testing.T) {
	cases := []struct {
		name        string
		input       int64
		config      *archive.Config
		expectError bool
	}{
		{
			name:   "less files then maximum",
			input:  5,
			config: archive.NewConfig(archive.WithMaxFiles(10)),
		},
		{
			name:   "exactly the maximum",
			input:  10,
			config: archive.NewConfig(archive.WithMaxFiles(10)),
		},
		{
			name:        "more files then maximum",
			input:       15,
			config:      archive.NewConfig(archive.WithMaxFiles(10)),
			expectError: true,
		},
		{
			name:   "disable file counter check",
			input:  5000,
			config: archive.NewConfig(archive.WithMaxFiles(-1)),
		},
		{
			name:        "zero files allowed",
			input:       1,
			config:      archive.NewConfig(archive.WithMaxFiles(0)),
			expectError: true,
		},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("tc %d", i), func(t *testing.T) {
			err := tc.config.CheckMaxFiles(tc.input)
			if tc.expectError {
				assert.ErrorIs(t, err, archive.ErrMaxFilesExceeded, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
			}
		})
	}
}

// TestCheckExtractionSize implements test cases
func TestCheckExtractionSize(t *testing.T) {
	cfg := archive.NewConfig(archive.WithMaxExtractionSize(1024))
	assert.NoError(t, cfg.CheckExtractionSize(1024))
	assert.ErrorIs(t, cfg.CheckExtractionSize(1025), archive.ErrMaxExtractionSizeExceeded)

	cfg = archive.NewConfig(archive.WithMaxExtractionSize(-1))
	assert.NoError(t, cfg.CheckExtractionSize(1<<40))
}

func TestConfigDefaults(t *testing.T) {
	cfg := archive.NewConfig()

	assert.False(t, cfg.CacheInMemory())
	assert.False(t, cfg.ContinueOnUnsupportedFiles())
	assert.False(t, cfg.CreateDestination())
	assert.False(t, cfg.DropFileAttributes())
	assert.False(t, cfg.NoUntarAfterDecompression())
	assert.False(t, cfg.Overwrite())
	assert.False(t, cfg.TraverseSymlinks())
	assert.Equal(t, int64(100000), cfg.MaxFiles())
	assert.Equal(t, int64(1<<30), cfg.MaxExtractionSize())
	assert.Equal(t, int64(1<<30), cfg.MaxInputSize())
	assert.Equal(t, 1, cfg.MaxRetries())
	assert.Equal(t, 0, cfg.StripComponents())
	assert.Equal(t, archive.SymlinkDisallow, cfg.SymlinkPolicy())
	assert.Equal(t, -1, cfg.FormatOptions().CompressionLevel)
	assert.Empty(t, cfg.ExtractType())
	assert.Empty(t, cfg.Encoding())
	assert.Empty(t, cfg.NamePrefix())
	assert.Equal(t, archive.Abort, cfg.ErrorHandler()(archive.Entry{}, assert.AnError))
	assert.NoError(t, cfg.Validate())
}

func TestConfigOptions(t *testing.T) {
	cfg := archive.NewConfig(
		archive.WithCacheInMemory(true),
		archive.WithContinueOnUnsupportedFiles(true),
		archive.WithCreateDestination(true),
		archive.WithCustomCreateDirMode(0700),
		archive.WithCustomDecompressFileMode(0600),
		archive.WithDropFileAttributes(true),
		archive.WithEncoding("cp437"),
		archive.WithExtractType("tar.gz"),
		archive.WithInsecureTraverseSymlinks(true),
		archive.WithMaxExtractionSize(1),
		archive.WithMaxFiles(2),
		archive.WithMaxInputSize(3),
		archive.WithMaxRetries(4),
		archive.WithNamePrefix("prefix"),
		archive.WithNoUntarAfterDecompression(true),
		archive.WithOverwrite(true),
		archive.WithPatterns("*.txt"),
		archive.WithStripComponents(5),
		archive.WithSymlinkPolicy(archive.SymlinkAllow),
	)

	assert.True(t, cfg.CacheInMemory())
	assert.True(t, cfg.ContinueOnUnsupportedFiles())
	assert.True(t, cfg.CreateDestination())
	assert.Equal(t, 0700, int(cfg.CustomCreateDirMode()))
	assert.Equal(t, 0600, int(cfg.CustomDecompressFileMode()))
	assert.True(t, cfg.DropFileAttributes())
	assert.Equal(t, "cp437", cfg.Encoding())
	assert.Equal(t, "tar.gz", cfg.ExtractType())
	assert.True(t, cfg.TraverseSymlinks())
	assert.Equal(t, int64(1), cfg.MaxExtractionSize())
	assert.Equal(t, int64(2), cfg.MaxFiles())
	assert.Equal(t, int64(3), cfg.MaxInputSize())
	assert.Equal(t, 4, cfg.MaxRetries())
	assert.Equal(t, "prefix", cfg.NamePrefix())
	assert.True(t, cfg.NoUntarAfterDecompression())
	assert.True(t, cfg.Overwrite())
	assert.Equal(t, []string{"*.txt"}, cfg.Patterns())
	assert.Equal(t, 5, cfg.StripComponents())
	assert.Equal(t, archive.SymlinkAllow, cfg.SymlinkPolicy())
	assert.NoError(t, cfg.Validate())

	// an empty extract type keeps the previous value
	cfg = archive.NewConfig(archive.WithExtractType("zip"), archive.WithExtractType(""))
	assert.Equal(t, "zip", cfg.ExtractType())
}

func TestWithContinueOnError(t *testing.T) {
	e := archive.Entry{Name: "a"}

	cfg := archive.NewConfig(archive.WithContinueOnError(true))
	assert.Equal(t, archive.Skip, cfg.ErrorHandler()(e, assert.AnError))

	cfg = archive.NewConfig(archive.WithContinueOnError(true), archive.WithContinueOnError(false))
	assert.Equal(t, archive.Abort, cfg.ErrorHandler()(e, assert.AnError))

	cfg = archive.NewConfig(archive.WithErrorHandler(archive.RetryOnError))
	assert.Equal(t, archive.Retry, cfg.ErrorHandler()(e, assert.AnError))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  archive.ConfigOption
	}{
		{name: "negative strip", opt: archive.WithStripComponents(-1)},
		{name: "negative retries", opt: archive.WithMaxRetries(-1)},
		{name: "unknown policy", opt: archive.WithSymlinkPolicy(archive.SymlinkPolicy(7))},
		{name: "invalid pattern", opt: archive.WithPatterns("[")},
		{name: "unknown encoding", opt: archive.WithEncoding("no-such-charset")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := archive.NewConfig(tc.opt)
			assert.ErrorIs(t, cfg.Validate(), archive.ErrInvalidConfig)

			// runs are rejected before anything is touched
			dst := t.TempDir()
			err := archive.Extract(context.Background(), bytes.NewReader(packTar(t, []tarEntry{file("a", "a")})), dst, cfg)
			assert.ErrorIs(t, err, archive.ErrInvalidConfig)
			assert.True(t, emptyDir(t, dst))
		})
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := archive.NewConfig(archive.WithLogger(logger))

	dst := t.TempDir()
	err := archive.Extract(context.Background(), bytes.NewReader(packTar(t, []tarEntry{file("a", "a")})), dst, cfg)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "format=tar")
}

func TestWithTelemetryHook(t *testing.T) {
	var calls int
	var td *archive.TelemetryData
	cfg := archive.NewConfig(archive.WithTelemetryHook(func(_ context.Context, data *archive.TelemetryData) {
		calls++
		td = data
	}))

	dst := t.TempDir()
	err := archive.Extract(context.Background(), bytes.NewReader(packTar(t, []tarEntry{dir("d/"), file("d/a", "abc")})), dst, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NotNil(t, td)
	assert.Equal(t, "extract", td.Operation)
	assert.Equal(t, "tar", td.Format)
	assert.Equal(t, int64(1), td.Dirs)
	assert.Equal(t, int64(1), td.Files)
	assert.Equal(t, int64(3), td.Size)
}
