// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// defaultFileMode is used for files without mode in the archive (respecting umask)
const defaultFileMode fs.FileMode = 0644

// errCollapsedDir marks a directory entry that collapses onto the destination root.
var errCollapsedDir = errors.New("directory collapses to destination root")

// ExtractFile extracts the archive at path into the directory dst.
//
// The format is detected by magic bytes. Brotli compressed input, which has no
// magic bytes, is recognized by its file extension.
func ExtractFile(ctx context.Context, path string, dst string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	// brotli can only be identified by name
	if len(cfg.ExtractType()) == 0 {
		format := FormatFromPath(path)
		if _, comp, ok := parseFormat(format); ok && comp == fileExtensionBrotli {
			c := *cfg
			c.extractionType = format
			cfg = &c
		}
	}

	return Extract(ctx, f, dst, cfg)
}

// Extract detects the format of src, see [OpenReader], and extracts it into the
// directory dst.
func Extract(ctx context.Context, src io.Reader, dst string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	er, err := openReader(ctx, src, cfg)
	if err != nil {
		return err
	}
	return ExtractEntriesTo(ctx, NewTargetDisk(), er, dst, cfg)
}

// ExtractEntries extracts the entries of er into the directory dst on disk.
// See [ExtractEntriesTo].
func ExtractEntries(ctx context.Context, er EntryReader, dst string, cfg *Config) error {
	return ExtractEntriesTo(ctx, NewTargetDisk(), er, dst, cfg)
}

// ExtractEntriesTo extracts the entries of er into the directory dst of t. It
// takes ownership of er and closes it on return.
//
// Entries are processed one after another, in archive order:
//
//  1. The entry is passed to the configured filters. A rejected entry is skipped
//     without further notice.
//  2. The name is mapped onto dst after stripping leading components, see
//     [WithStripComponents]. Names with ".." segments are rejected.
//  3. Symlink targets are checked against the [SymlinkPolicy].
//  4. Existing objects are only replaced if [WithOverwrite] is set. Existing
//     directories are reused.
//  5. The directory, file or symlink is created. Missing parent directories are
//     created on demand.
//
// If one of these steps fails, the [ErrorHandler] decides whether the run stops,
// the entry is skipped or retried. The [PostProcessor] is informed about the final
// outcome of each entry. An aborted run returns an [*EntryError]. Failures of the
// container and exceeded limits always end the run.
func ExtractEntriesTo(ctx context.Context, t Target, er EntryReader, dst string, cfg *Config) (err error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	defer func() {
		if cErr := er.Close(); err == nil && cErr != nil {
			err = asCodecError(er.Format(), cErr)
		}
	}()

	// prepare telemetry capturing
	td := &TelemetryData{Operation: "extract", Format: er.Format()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())
	defer captureInputSize(td, er)

	// check configuration before anything is touched
	if err := cfg.Validate(); err != nil {
		return err
	}

	x, err := newExtraction(ctx, t, er, dst, cfg, td)
	if err != nil {
		return err
	}
	if err := x.run(); err != nil {
		td.LastError = err
		return err
	}
	return nil
}

// extraction holds the state of one extraction run. Everything except the
// counters is fixed before the first entry is read.
type extraction struct {
	ctx     context.Context
	t       Target
	er      EntryReader
	root    string
	cfg     *Config
	filter  Filter
	handler ErrorHandler
	post    PostProcessor
	log     logger
	td      *TelemetryData

	// entries read from the archive
	count int64

	// content bytes written to the target
	written int64

	// directory attributes applied after all entries are extracted
	dirs []dirAttributes
}

// dirAttributes are the attributes of an extracted directory.
type dirAttributes struct {
	path    string
	mode    fs.FileMode
	modTime time.Time
}

// rootResolver is implemented by targets that do not materialize entries on the
// local filesystem. It maps the destination into the target.
type rootResolver interface {
	resolveRoot(dst string) (string, error)
}

// newExtraction prepares the destination and resolves it to an absolute, canonical
// path. The root is not resolved again during the run.
func newExtraction(ctx context.Context, t Target, er EntryReader, dst string, cfg *Config, td *TelemetryData) (*extraction, error) {
	root, err := extractionRoot(t, dst)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve destination: %w", err)
	}
	if err := prepareDestination(t, root, cfg); err != nil {
		return nil, err
	}
	if _, ok := t.(rootResolver); !ok {
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			root = resolved
		}
	}

	return &extraction{
		ctx:     ctx,
		t:       t,
		er:      er,
		root:    root,
		cfg:     cfg,
		filter:  cfg.Filter(),
		handler: cfg.ErrorHandler(),
		post:    cfg.PostProcessor(),
		log:     cfg.Logger(),
		td:      td,
	}, nil
}

// extractionRoot returns the absolute destination of a run within t.
func extractionRoot(t Target, dst string) (string, error) {
	if r, ok := t.(rootResolver); ok {
		return r.resolveRoot(dst)
	}
	if len(dst) == 0 {
		dst = "."
	}
	return filepath.Abs(dst)
}

// run processes all entries of the archive.
func (x *extraction) run() error {
	// also for the directories of an aborted run
	defer x.applyDirAttributes()

	x.log.Info("extracting", "format", x.er.Format(), "destination", x.root)
	for {
		// check if context is canceled
		if err := x.ctx.Err(); err != nil {
			return fmt.Errorf("context error: %w", err)
		}

		e, err := x.er.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return asCodecError(x.er.Format(), err)
		}

		// check for too many files in archive
		x.count++
		if err := x.cfg.CheckMaxFiles(x.count); err != nil {
			return fmt.Errorf("%w: %d", err, x.cfg.MaxFiles())
		}

		// check if entry is selected
		if !x.filter(e.Name, x.root) {
			x.td.Filtered++
			x.log.Debug("skipped by filter", "name", e.Name)
			continue
		}

		if err := x.process(e); err != nil {
			return err
		}
	}
	return nil
}

// process drives one entry to its final outcome and consults the error handler
// on failure.
func (x *extraction) process(e Entry) error {
	for attempt := 0; ; attempt++ {
		err := x.materialize(e)
		switch {
		case err == nil:
			x.td.countEntry(e)
			x.post(x.ctx, e, nil)
			return nil

		case errors.Is(err, errCollapsedDir):
			x.log.Debug("skipped directory collapsed to destination", "name", e.Name)
			return nil

		case errors.Is(err, ErrUnsupportedEntry) && x.cfg.ContinueOnUnsupportedFiles():
			x.td.UnsupportedFiles++
			x.td.LastUnsupportedFile = e.Name
			x.log.Info("skipped unsupported entry", "name", e.Name)
			x.post(x.ctx, e, err)
			return nil

		case isFatal(err):
			x.td.Errors++
			x.log.Error("extraction failed", "name", e.Name, "error", err)
			x.post(x.ctx, e, err)
			return &EntryError{Entry: e, Err: err}
		}

		// consult the error handler
		x.td.Errors++
		x.td.LastError = err
		decision := x.handler(e, err)
		if decision == Retry && attempt < x.cfg.MaxRetries() {
			x.td.Retried++
			x.log.Warn("retry entry", "name", e.Name, "attempt", attempt+1, "error", err)
			continue
		}
		if decision == Abort {
			x.log.Error("extraction aborted", "name", e.Name, "error", err)
			x.post(x.ctx, e, err)
			return &EntryError{Entry: e, Err: err}
		}

		// skip, also after exhausted retries
		x.td.Skipped++
		x.log.Warn("skipped entry", "name", e.Name, "error", err)
		x.post(x.ctx, e, err)
		return nil
	}
}

// isFatal reports whether err ends the run regardless of the error handler.
func isFatal(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) ||
		errors.Is(err, ErrMaxExtractionSizeExceeded) ||
		errors.Is(err, ErrMaxInputSizeExceeded)
}

// materialize resolves the destination of e and creates it.
func (x *extraction) materialize(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Type == TypeOther {
		return fmt.Errorf("%w: %s", ErrUnsupportedEntry, e.Name)
	}

	path, err := resolvePath(x.root, e.Name, x.cfg.StripComponents())
	if errors.Is(err, ErrCollapsedToRoot) && e.Type == TypeDir {
		return errCollapsedDir
	}
	if err != nil {
		return err
	}

	switch e.Type {
	case TypeDir:
		return x.createDir(e, path)
	case TypeSymlink:
		return x.createSymlink(e, path)
	default:
		return x.createFile(e, path)
	}
}

// createDir creates the directory of e. Existing directories are reused.
func (x *extraction) createDir(e Entry, path string) error {
	if err := checkSymlinksInPath(x.t, x.root, path, x.cfg.TraverseSymlinks(), x.log); err != nil {
		return err
	}

	// replace a file or symlink, if allowed
	stat, err := x.t.Lstat(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalid path: %w", err)
	}
	if stat != nil && !stat.IsDir() {
		if !x.cfg.Overwrite() {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		if err := x.t.Remove(path); err != nil {
			return fmt.Errorf("failed to overwrite: %w", err)
		}
	}

	// the owner keeps write access until all children are extracted
	mode := x.cfg.CustomCreateDirMode()
	if e.Mode != 0 && !x.cfg.DropFileAttributes() {
		mode = e.Mode.Perm() | 0700
	}
	if err := x.t.CreateDir(path, mode); err != nil {
		return err
	}

	if !x.cfg.DropFileAttributes() && (e.Mode != 0 || !e.ModTime.IsZero()) {
		x.dirs = append(x.dirs, dirAttributes{path: path, mode: e.Mode, modTime: e.ModTime})
	}
	return nil
}

// createFile creates the file of e with the content of the current entry.
func (x *extraction) createFile(e Entry, path string) error {
	// check the announced size first
	if e.Size > 0 {
		if err := x.cfg.CheckExtractionSize(x.written + e.Size); err != nil {
			return fmt.Errorf("%w: %d bytes", err, x.cfg.MaxExtractionSize())
		}
	}

	if err := ensureParent(x.t, x.root, path, x.cfg); err != nil {
		return err
	}
	if _, err := replaceable(x.t, path, x.cfg.Overwrite()); err != nil {
		return err
	}

	rc, err := x.er.Open()
	if err != nil {
		return fmt.Errorf("cannot open content: %w", err)
	}
	defer rc.Close()

	// limit the remaining extraction size
	maxSize := int64(-1)
	if x.cfg.MaxExtractionSize() >= 0 {
		maxSize = x.cfg.MaxExtractionSize() - x.written
	}

	mode := e.Mode
	if mode == 0 || x.cfg.DropFileAttributes() {
		mode = defaultFileMode
	}
	n, err := x.t.CreateFile(path, &codecContent{r: rc, format: x.er.Format()}, mode.Perm(), x.cfg.Overwrite(), maxSize)
	if err != nil {
		return err
	}
	x.written += n
	x.td.Size += n

	if x.cfg.DropFileAttributes() {
		return nil
	}
	if e.Mode != 0 {
		if err := x.t.Chmod(path, e.Mode); err != nil {
			return fmt.Errorf("cannot set mode: %w", err)
		}
	}
	if !e.ModTime.IsZero() {
		if err := x.t.Chtimes(path, e.ModTime, e.ModTime); err != nil {
			return fmt.Errorf("cannot set modification time: %w", err)
		}
	}
	return nil
}

// createSymlink creates the symlink of e after its target passed the policy.
func (x *extraction) createSymlink(e Entry, path string) error {
	if err := checkSymlinkTarget(x.t, x.root, path, e.LinkTarget, x.cfg.SymlinkPolicy(), x.cfg.TraverseSymlinks(), x.log); err != nil {
		return err
	}
	if err := ensureParent(x.t, x.root, path, x.cfg); err != nil {
		return err
	}
	if _, err := replaceable(x.t, path, x.cfg.Overwrite()); err != nil {
		return err
	}
	if err := x.t.CreateSymlink(e.LinkTarget, path, x.cfg.Overwrite()); err != nil {
		return err
	}

	if !x.cfg.DropFileAttributes() && !e.ModTime.IsZero() {
		if err := x.t.Lchtimes(path, e.ModTime, e.ModTime); err != nil {
			x.log.Debug("cannot set symlink modification time", "name", e.Name, "error", err)
		}
	}
	return nil
}

// applyDirAttributes sets mode and modification time of extracted directories.
// Children are processed first, because creating an entry changes the
// modification time of its directory.
func (x *extraction) applyDirAttributes() {
	for i := len(x.dirs) - 1; i >= 0; i-- {
		d := x.dirs[i]
		if d.mode != 0 {
			if err := x.t.Chmod(d.path, d.mode); err != nil {
				x.log.Warn("cannot set directory mode", "path", d.path, "error", err)
			}
		}
		if !d.modTime.IsZero() {
			if err := x.t.Chtimes(d.path, d.modTime, d.modTime); err != nil {
				x.log.Warn("cannot set directory modification time", "path", d.path, "error", err)
			}
		}
	}
}

// codecContent reports read errors of entry content as [*CodecError], so they
// can be told apart from errors of the target.
type codecContent struct {
	r      io.Reader
	format string
}

// Read reads from the entry content.
func (c *codecContent) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = asCodecError(c.format, err)
	}
	return n, err
}

// now is a function point that returns time.Now to the caller.
var now = time.Now

// captureDuration ensures that the duration of a run is captured
func captureDuration(td *TelemetryData, start time.Time) {
	td.Duration = time.Since(start)
}

// captureInputSize ensures that the input size is captured, if the reader
// keeps track of it
func captureInputSize(td *TelemetryData, er EntryReader) {
	if r, ok := er.(interface{ inputSize() int64 }); ok {
		td.InputSize = r.inputSize()
	}
}
