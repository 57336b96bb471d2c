// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	archive "github.com/hashicorp/go-archive"
)

// CLI are the cli parameters for the goarchive binary
type CLI struct {
	Extract ExtractCmd       `cmd:"" help:"Extract an archive into a directory."`
	Create  CreateCmd        `cmd:"" help:"Create an archive from files and directories."`
	List    ListCmd          `cmd:"" help:"List the entries of an archive."`
	Verbose bool             `short:"v" optional:"" help:"Verbose logging."`
	Version kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// LimitFlags are the resource limits shared by all commands
type LimitFlags struct {
	MaxFiles          int64  `optional:"" default:"100000" help:"Maximum files that are processed before stop. (disable check: -1)"`
	MaxExtractionSize int64  `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxInputSize      int64  `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	MaxTime           int64  `optional:"" default:"60" help:"Maximum time that an operation should take (in seconds). (disable check: -1)"`
	Type              string `optional:"" short:"t" help:"Archive format, e.g., tar.gz. Detected if not set."`
	Encoding          string `optional:"" help:"Character set of entry names, e.g., cp437."`
}

// ExtractCmd are the parameters of the extract command
type ExtractCmd struct {
	LimitFlags `embed:""`

	Archive                    string   `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	Destination                string   `arg:"" name:"destination" default:"." help:"Output directory."`
	AllowEscapingSymlinks      bool     `short:"A" help:"[Dangerous!] Create symlinks that point outside of the destination."`
	ContinueOnError            bool     `short:"C" help:"Continue extraction on error."`
	ContinueOnUnsupportedFiles bool     `short:"U" help:"Skip unsupported entries, e.g., devices and hard links."`
	CreateDestination          bool     `short:"c" help:"Create destination directory if it does not exist."`
	DropAttributes             bool     `help:"Don't restore file modes and modification times."`
	DryRun                     bool     `short:"n" help:"Extract into memory and print the paths that would be written."`
	Exclude                    []string `short:"x" help:"Skip entries matching the pattern."`
	FollowSymlinks             bool     `short:"F" help:"[Dangerous!] Follow symlinks to directories during extraction."`
	Include                    []string `short:"i" help:"Only extract entries matching the pattern."`
	NoUntar                    bool     `help:"Don't unpack a tar archive after decompression."`
	Overwrite                  bool     `short:"O" help:"Overwrite if exist."`
	Retries                    int      `optional:"" default:"1" help:"Maximum retries of a failed entry."`
	StripComponents            int      `short:"s" optional:"" default:"0" help:"Strip leading path components from entry names."`
	Telemetry                  bool     `short:"T" optional:"" default:"false" help:"Print telemetry data to log after extraction."`
}

// CreateCmd are the parameters of the create command
type CreateCmd struct {
	LimitFlags `embed:""`

	Archive                    string   `arg:"" name:"archive" help:"Path of the new archive. The format is taken from the extension. (\"-\" for STDOUT)"`
	Paths                      []string `arg:"" name:"paths" help:"Files and directories to add." type:"existingpath"`
	ContinueOnError            bool     `short:"C" help:"Continue creation on error."`
	ContinueOnUnsupportedFiles bool     `short:"U" help:"Skip unsupported files, e.g., sockets and devices."`
	Exclude                    []string `short:"x" help:"Skip files matching the pattern."`
	Include                    []string `short:"i" help:"Only add files matching the pattern."`
	Level                      int      `short:"l" optional:"" default:"-1" help:"Compression level. (default of the compression: -1)"`
	Overwrite                  bool     `short:"O" help:"Overwrite an existing archive."`
	Prefix                     string   `short:"p" optional:"" help:"Prefix for all entry names."`
	Telemetry                  bool     `short:"T" optional:"" default:"false" help:"Print telemetry data to log after creation."`
}

// ListCmd are the parameters of the list command
type ListCmd struct {
	LimitFlags `embed:""`

	Archive string `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
}

// runContext is passed to every command
type runContext struct {
	logger *slog.Logger
	stdout io.Writer
}

// Run the entrypoint into go-archive as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("goarchive"),
		kong.Description("A secure archive utility"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if err := kctx.Run(&runContext{logger: logger, stdout: os.Stdout}); err != nil {
		logger.Error("operation failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newContext returns a context that is canceled after the configured time
func (l LimitFlags) newContext() (context.Context, context.CancelFunc) {
	if l.MaxTime > 0 {
		return context.WithTimeout(context.Background(), time.Second*time.Duration(l.MaxTime))
	}
	return context.WithCancel(context.Background())
}

// options returns the config options of the limit flags
func (l LimitFlags) options() []archive.ConfigOption {
	return []archive.ConfigOption{
		archive.WithEncoding(l.Encoding),
		archive.WithExtractType(l.Type),
		archive.WithMaxExtractionSize(l.MaxExtractionSize),
		archive.WithMaxFiles(l.MaxFiles),
		archive.WithMaxInputSize(l.MaxInputSize),
	}
}

// filterOptions turns include and exclude patterns into config options
func filterOptions(include []string, exclude []string) ([]archive.ConfigOption, error) {
	var opts []archive.ConfigOption
	if len(include) > 0 {
		opts = append(opts, archive.WithPatterns(include...))
	}
	if len(exclude) > 0 {
		f, err := archive.ExcludeFilter(exclude...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithFilter(f))
	}
	return opts, nil
}

// telemetryToLog returns a hook that logs the telemetry data if enabled
func telemetryToLog(logger *slog.Logger, enabled bool) archive.TelemetryHook {
	return func(ctx context.Context, td *archive.TelemetryData) {
		if enabled {
			logger.Info(td.Operation+" finished", "telemetry", td)
		}
	}
}

// openInput opens path, or STDIN for "-"
func openInput(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return bufio.NewReader(os.Stdin), func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive failed: %w", err)
	}
	return f, f.Close, nil
}

// Run extracts the archive
func (c *ExtractCmd) Run(rc *runContext) error {
	ctx, cancel := c.newContext()
	defer cancel()

	policy := archive.SymlinkDisallow
	if c.AllowEscapingSymlinks {
		policy = archive.SymlinkAllow
	}
	opts := append(c.options(),
		archive.WithContinueOnError(c.ContinueOnError),
		archive.WithContinueOnUnsupportedFiles(c.ContinueOnUnsupportedFiles),
		archive.WithCreateDestination(c.CreateDestination),
		archive.WithDropFileAttributes(c.DropAttributes),
		archive.WithInsecureTraverseSymlinks(c.FollowSymlinks),
		archive.WithLogger(rc.logger),
		archive.WithMaxRetries(c.Retries),
		archive.WithNoUntarAfterDecompression(c.NoUntar),
		archive.WithOverwrite(c.Overwrite),
		archive.WithStripComponents(c.StripComponents),
		archive.WithSymlinkPolicy(policy),
		archive.WithTelemetryHook(telemetryToLog(rc.logger, c.Telemetry)),
	)
	filters, err := filterOptions(c.Include, c.Exclude)
	if err != nil {
		return err
	}
	cfg := archive.NewConfig(append(opts, filters...)...)

	if c.DryRun {
		return c.dryRun(ctx, rc, cfg)
	}
	if c.Archive != "-" {
		return archive.ExtractFile(ctx, c.Archive, c.Destination, cfg)
	}
	input, closeInput, err := openInput(c.Archive)
	if err != nil {
		return err
	}
	defer closeInput()
	return archive.Extract(ctx, input, c.Destination, cfg)
}

// dryRun extracts the archive into memory and prints every path below the
// destination that a real extraction would create
func (c *ExtractCmd) dryRun(ctx context.Context, rc *runContext, cfg *archive.Config) error {
	input, closeInput, err := openInput(c.Archive)
	if err != nil {
		return err
	}
	defer closeInput()

	er, err := archive.OpenReader(ctx, input, cfg)
	if err != nil {
		return err
	}
	mem := archive.NewTargetMemory()
	if err := archive.ExtractEntriesTo(ctx, mem, er, "", cfg); err != nil {
		return err
	}

	return fs.WalkDir(mem, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size := "-"
		if info.Mode().IsRegular() {
			size = humanize.IBytes(uint64(info.Size()))
		}
		line := fmt.Sprintf("%s %10s %s", info.Mode(), size, filepath.Join(c.Destination, filepath.FromSlash(p)))
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := mem.Readlink(p)
			if err != nil {
				return err
			}
			line += " -> " + target
		}
		fmt.Fprintln(rc.stdout, line)
		return nil
	})
}

// Run creates the archive
func (c *CreateCmd) Run(rc *runContext) error {
	ctx, cancel := c.newContext()
	defer cancel()

	opts := append(c.options(),
		archive.WithContinueOnError(c.ContinueOnError),
		archive.WithContinueOnUnsupportedFiles(c.ContinueOnUnsupportedFiles),
		archive.WithFormatOptions(archive.FormatOptions{CompressionLevel: c.Level}),
		archive.WithLogger(rc.logger),
		archive.WithNamePrefix(c.Prefix),
		archive.WithOverwrite(c.Overwrite),
		archive.WithTelemetryHook(telemetryToLog(rc.logger, c.Telemetry)),
	)
	filters, err := filterOptions(c.Include, c.Exclude)
	if err != nil {
		return err
	}
	cfg := archive.NewConfig(append(opts, filters...)...)

	sources := make([]archive.Source, 0, len(c.Paths))
	for _, p := range c.Paths {
		sources = append(sources, archive.Source{Name: filepath.Base(filepath.Clean(p)), Path: p})
	}

	if c.Archive != "-" {
		return archive.CreateFile(ctx, c.Archive, sources, cfg)
	}
	if len(c.Type) == 0 {
		return errors.New("format (--type) is required when writing to STDOUT")
	}
	w := bufio.NewWriter(rc.stdout)
	if err := archive.Create(ctx, w, c.Type, sources, cfg); err != nil {
		return err
	}
	return w.Flush()
}

// Run lists the entries of the archive
func (c *ListCmd) Run(rc *runContext) error {
	ctx, cancel := c.newContext()
	defer cancel()

	cfg := archive.NewConfig(append(c.options(), archive.WithLogger(rc.logger))...)
	input, closeInput, err := openInput(c.Archive)
	if err != nil {
		return err
	}
	defer closeInput()

	er, err := archive.OpenReader(ctx, input, cfg)
	if err != nil {
		return err
	}
	defer er.Close()

	var count int64
	for {
		e, err := er.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		count++
		if err := cfg.CheckMaxFiles(count); err != nil {
			return err
		}
		fmt.Fprintln(rc.stdout, formatListEntry(e))
	}
}

// formatListEntry returns a single line of the list output
func formatListEntry(e archive.Entry) string {
	size := "-"
	if e.Type == archive.TypeFile && e.Size >= 0 {
		size = humanize.IBytes(uint64(e.Size))
	}
	line := fmt.Sprintf("%-7s %s %10s %s %s", e.Type, e.Mode.Perm(), size, e.ModTime.Format(time.DateTime), e.Name)
	if e.Type == archive.TypeSymlink {
		line += " -> " + e.LinkTarget
	}
	return line
}
