// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	archive "github.com/hashicorp/go-archive"
	"github.com/hashicorp/go-slug"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// extractFunc extracts reader into the directory dst
type extractFunc func(ctx context.Context, reader io.Reader, dst string) error

var CLI struct {
	CacheInMemory bool     `short:"c" long:"cache-in-memory" default:"false" description:"hide io.Seeker of the input, so zip and 7z input is cached"`
	Archive       bool     `short:"a" long:"archive" default:"false" description:"use the go-archive extraction method"`
	InputArchives []string `arg:"" name:"input-archives" required:"true" description:"input archives to extract"`
	Iterations    int      `short:"i" long:"iterations" default:"1" description:"number of iterations to repeat the extraction"`
	Profile       bool     `short:"p" long:"profile" default:"false" description:"enable profiling of the extraction"`
	ProfileOut    string   `short:"o" long:"profile-out" default:"mem.pprof" description:"output file for the profile"`
	Parallel      bool     `short:"P" long:"parallel" default:"false" description:"extract with both methods in parallel and compare the results"`
	SrcFromMem    bool     `short:"m" long:"src-from-mem" default:"false" description:"read input files into memory"`
	Slug          bool     `short:"s" long:"slug" default:"false" description:"use the go-slug extraction method"`
	Verbose       bool     `short:"v" long:"verbose" description:"Enable verbose output"`
}

func main() {
	ctx := context.Background()
	_ = kong.Parse(&CLI)
	lvl := slog.LevelInfo
	if CLI.Verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	methods := map[string]extractFunc{}
	if CLI.Archive {
		methods["go-archive"] = extractWithArchive
	}
	if CLI.Slug {
		methods["go-slug"] = extractWithSlug
	}
	if CLI.Parallel {
		methods["parallel"] = extractParallel
	}
	if len(methods) == 0 {
		logger.Warn("no extraction method specified, using go-archive")
		methods["go-archive"] = extractWithArchive
	}

	// durations in milliseconds per input and method
	durations := make(map[string][]int64)
	for i := 0; i < CLI.Iterations; i++ {
		for _, filename := range CLI.InputArchives {
			for method, fn := range methods {
				d, err := profileExtraction(ctx, logger, filename, method, fn)
				if err != nil {
					logger.Error("extraction failed", "error", err)
					continue
				}
				key := fmt.Sprintf("%s-%s", filename, method)
				durations[key] = append(durations[key], d)
			}
		}
	}

	for _, key := range sortedKeys(durations) {
		d := durations[key]
		logger.Info("extraction profiling results",
			"iterations", len(d),
			"average", fmt.Sprintf("%dms", avg(d)),
			"min", fmt.Sprintf("%dms", minOf(d)),
			"max", fmt.Sprintf("%dms", maxOf(d)),
			"std", fmt.Sprintf("%dms", int(std(d))),
			"key", key,
		)
	}
	for _, d := range telemetry {
		logger.Debug("telemetry", "data", d.String())
	}

	if CLI.Profile {
		logger.Debug("writing memory profile", "filename", CLI.ProfileOut)
		logger.Info(fmt.Sprintf("analyze with: go tool pprof -http=:8080 %s", CLI.ProfileOut))
		f, err := os.Create(CLI.ProfileOut)
		if err != nil {
			logger.Error("error creating memory profile", "error", err)
			return
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.Error("error writing memory profile", "error", err)
		}
	}
}

var telemetry []archive.TelemetryData

func storeTelemetryData(ctx context.Context, d *archive.TelemetryData) {
	telemetry = append(telemetry, *d)
}

// slugConfig matches the behavior of slug.Unpack, so both methods produce the
// same tree.
var slugConfig = archive.NewConfig(
	archive.WithContinueOnError(true),
	archive.WithContinueOnUnsupportedFiles(true),
	archive.WithMaxExtractionSize(-1),
	archive.WithMaxFiles(-1),
	archive.WithMaxInputSize(-1),
	archive.WithTelemetryHook(storeTelemetryData),
)

func extractWithSlug(ctx context.Context, reader io.Reader, dst string) error {
	return slug.Unpack(reader, dst)
}

func extractWithArchive(ctx context.Context, reader io.Reader, dst string) error {
	return archive.Extract(ctx, reader, dst, slugConfig)
}

func extractParallel(ctx context.Context, reader io.Reader, dst string) error {
	return unpackParallel(ctx, dst, reader)
}

// sortedKeys returns the keys of m in sorted order
func sortedKeys(m map[string][]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// noSeeker hides all interfaces of r except io.Reader
type noSeeker struct {
	r io.Reader
}

func (n *noSeeker) Read(p []byte) (int, error) {
	return n.r.Read(p)
}

// profileExtraction extracts filename into a temporary directory and returns the
// duration in milliseconds
func profileExtraction(ctx context.Context, logger *slog.Logger, filename string, method string, fn extractFunc) (int64, error) {
	dst, err := os.MkdirTemp("", "goarchive-bench-*")
	if err != nil {
		return -1, fmt.Errorf("error creating temp directory: %w", err)
	}
	defer os.RemoveAll(dst)

	inf, err := os.Open(filename)
	if err != nil {
		return -1, fmt.Errorf("error opening file: %w", err)
	}
	defer inf.Close()
	reader := io.Reader(inf)

	if CLI.SrcFromMem {
		b, err := os.ReadFile(filename)
		if err != nil {
			return -1, fmt.Errorf("error reading file into memory: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	if CLI.CacheInMemory {
		reader = &noSeeker{r: reader}
	}

	start := time.Now()
	if err := fn(ctx, reader, dst); err != nil {
		return -1, fmt.Errorf("error performing extraction with %s: %w", method, err)
	}
	duration := time.Since(start)

	logger.Debug("extraction finished", "method", method, "filename", filename, "duration", fmt.Sprintf("%dms", duration.Milliseconds()))
	return duration.Milliseconds(), nil
}

func minOf(slice []int64) int64 {
	m := int64(math.MaxInt64)
	for _, v := range slice {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(slice []int64) int64 {
	m := int64(math.MinInt64)
	for _, v := range slice {
		if v > m {
			m = v
		}
	}
	return m
}

func avg(slice []int64) int64 {
	var sum int64
	for _, v := range slice {
		sum += v
	}
	return sum / int64(len(slice))
}

func std(slice []int64) float64 {
	a := avg(slice)
	var sum float64
	for _, v := range slice {
		sum += math.Pow(float64(v)-float64(a), 2)
	}
	return math.Sqrt(sum / float64(len(slice)))
}

// unpackParallel extracts body with go-slug into slugDst and with go-archive into
// a temporary directory, and compares both trees.
func unpackParallel(ctx context.Context, slugDst string, body io.Reader) error {
	// reading from the TeeReader writes to the pipe
	pipeRead, pipeWrite := io.Pipe()
	tee := io.TeeReader(body, pipeWrite)

	archiveDst, err := os.MkdirTemp("", "goarchive-*")
	if err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	defer os.RemoveAll(archiveDst)

	eg := &errgroup.Group{}
	eg.Go(func() error {
		defer pipeWrite.Close()
		return slug.Unpack(tee, slugDst)
	})
	eg.Go(func() error {
		defer pipeRead.Close()
		return archive.Extract(ctx, pipeRead, archiveDst, slugConfig)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	return compareDirectories(slugDst, archiveDst)
}

// compareDirectories checks that every file of expected exists in actual with
// the same size.
func compareDirectories(expected string, actual string) error {
	want, err := listTree(expected)
	if err != nil {
		return err
	}
	got, err := listTree(actual)
	if err != nil {
		return err
	}

	for path, info := range want {
		if got[path] == nil {
			return fmt.Errorf("file %s not found in go-archive target", path)
		}
		if info.Mode().IsRegular() && info.Size() != got[path].Size() {
			return fmt.Errorf("file %s has different size in go-archive target", path)
		}
	}
	return nil
}

// listTree returns all objects below dir by their relative path.
func listTree(dir string) (map[string]os.FileInfo, error) {
	tree := make(map[string]os.FileInfo)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(err, "error walking directory")
		}
		tree[strings.TrimPrefix(path, dir)] = info
		return nil
	})
	return tree, err
}
