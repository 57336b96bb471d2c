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
	"path"
	"path/filepath"
	"strings"
)

// Source is a file, directory or symlink on disk that is added to an archive.
type Source struct {
	// Name is the name of Path in the archive. Entries below a directory are named
	// relative to it. If Name is empty, the children of a directory are added to
	// the archive root and a file keeps its base name.
	Name string

	// Path is the location on disk.
	Path string
}

// CreateFile creates the archive at path from sources. The format is taken from
// [WithExtractType] if set, otherwise from the file extension of path, e.g.,
// "release.tar.gz". An existing file is only replaced if [WithOverwrite] is set.
// If creation fails, the incomplete archive is removed.
func CreateFile(ctx context.Context, path string, sources []Source, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	format := cfg.ExtractType()
	if len(format) == 0 {
		format = FormatFromPath(path)
	}
	if len(format) == 0 {
		return &UnsupportedFormatError{Format: filepath.Ext(path), Op: "write"}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if cfg.Overwrite() {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, defaultFileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return fmt.Errorf("cannot create archive: %w", err)
	}

	err = Create(ctx, f, format, sources, cfg)
	if cErr := f.Close(); err == nil && cErr != nil {
		err = fmt.Errorf("cannot close archive: %w", cErr)
	}
	if err != nil {
		if rErr := os.Remove(path); rErr != nil {
			cfg.Logger().Warn("cannot remove incomplete archive", "path", path, "error", rErr)
		}
		return err
	}
	return nil
}

// Create writes an archive in format to w from sources, see [NewWriter] for the
// supported formats and [CreateEntries] for the walk.
func Create(ctx context.Context, w io.Writer, format string, sources []Source, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	ew, err := NewWriter(w, format, cfg)
	if err != nil {
		return err
	}
	return CreateEntries(ctx, ew, sources, cfg)
}

// CreateEntries adds sources to ew and closes it on return.
//
// Directories are walked recursively. A directory entry is written before its
// children, which are written in lexical order. Symlinks are stored with their
// target and are never followed. Files, directories and symlinks that are rejected
// by the configured filters are left out, but the walk still descends into
// rejected directories.
//
// Failures to read a source are passed to the [ErrorHandler]. Failures of the
// writer always end the run, because the archive cannot be repaired afterwards.
// Entries the format cannot represent are skipped if
// [WithContinueOnUnsupportedFiles] is set.
func CreateEntries(ctx context.Context, ew EntryWriter, sources []Source, cfg *Config) (err error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	defer func() {
		if cErr := ew.Close(); err == nil && cErr != nil {
			err = asCodecError(ew.Format(), cErr)
		}
	}()

	// prepare telemetry capturing
	td := &TelemetryData{Operation: "create", Format: ew.Format()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	if err := cfg.Validate(); err != nil {
		return err
	}

	c := &creation{
		ctx:     ctx,
		ew:      ew,
		cfg:     cfg,
		filter:  cfg.Filter(),
		handler: cfg.ErrorHandler(),
		post:    cfg.PostProcessor(),
		log:     cfg.Logger(),
		td:      td,
	}

	c.log.Info("creating", "format", ew.Format(), "sources", len(sources))
	for _, src := range sources {
		if err := c.addSource(src); err != nil {
			td.LastError = err
			return err
		}
	}
	return nil
}

// creation holds the state of one creation run.
type creation struct {
	ctx     context.Context
	ew      EntryWriter
	cfg     *Config
	filter  Filter
	handler ErrorHandler
	post    PostProcessor
	log     logger
	td      *TelemetryData

	// entries passed to the writer
	count int64
}

// addSource adds src and, for directories, everything below it.
func (c *creation) addSource(src Source) error {
	name := cleanArchiveName(src.Name)

	info, err := os.Lstat(src.Path)
	if err != nil {
		if len(name) == 0 {
			name = cleanArchiveName(filepath.Base(src.Path))
		}
		return c.fail(Entry{Name: name, Type: TypeOther}, fmt.Errorf("cannot read source: %w", err))
	}

	// only directories can be added without a name of their own
	if len(name) == 0 && !info.IsDir() {
		name = cleanArchiveName(filepath.Base(src.Path))
	}

	return c.addPath(name, src.Path, info)
}

// addPath adds the object at p as name, and walks into directories. An empty name
// adds the children of a directory only.
func (c *creation) addPath(name string, p string, info fs.FileInfo) error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if len(name) > 0 {
		if err := c.addEntry(name, p, info); err != nil {
			return err
		}
	}
	if !info.IsDir() {
		return nil
	}

	// walk children in lexical order
	children, err := os.ReadDir(p)
	if err != nil {
		return c.fail(Entry{Name: name, Type: TypeDir}, fmt.Errorf("cannot read directory: %w", err))
	}
	for _, child := range children {
		childInfo, err := child.Info()
		childName := path.Join(name, child.Name())
		if err != nil {
			if err := c.fail(Entry{Name: childName, Type: TypeOther}, fmt.Errorf("cannot read source: %w", err)); err != nil {
				return err
			}
			continue
		}
		if err := c.addPath(childName, filepath.Join(p, child.Name()), childInfo); err != nil {
			return err
		}
	}
	return nil
}

// addEntry writes a single object, unless it is rejected by the filters.
func (c *creation) addEntry(name string, p string, info fs.FileInfo) error {
	name = path.Join(c.cfg.NamePrefix(), name)
	if !c.filter(name, p) {
		c.td.Filtered++
		c.log.Debug("skipped by filter", "name", name)
		return nil
	}

	// check for too many files
	c.count++
	if err := c.cfg.CheckMaxFiles(c.count); err != nil {
		return fmt.Errorf("%w: %d", err, c.cfg.MaxFiles())
	}

	var target string
	if info.Mode()&fs.ModeSymlink != 0 {
		var err error
		if target, err = os.Readlink(p); err != nil {
			return c.fail(Entry{Name: name, Type: TypeSymlink}, fmt.Errorf("cannot read symlink: %w", err))
		}
	}
	e := newEntry(name, info.Mode(), info.Size(), info.ModTime(), target)

	for attempt := 0; ; attempt++ {
		err := c.write(e, p)
		switch {
		case err == nil:
			c.td.countEntry(e)
			c.post(c.ctx, e, nil)
			return nil

		case errors.Is(err, ErrUnsupportedEntry) && c.cfg.ContinueOnUnsupportedFiles():
			c.td.UnsupportedFiles++
			c.td.LastUnsupportedFile = e.Name
			c.log.Info("skipped unsupported entry", "name", e.Name)
			c.post(c.ctx, e, err)
			return nil

		case isFatal(err):
			c.td.Errors++
			c.log.Error("creation failed", "name", e.Name, "error", err)
			c.post(c.ctx, e, err)
			return &EntryError{Entry: e, Err: err}
		}

		c.td.Errors++
		c.td.LastError = err
		decision := c.handler(e, err)
		if decision == Retry && attempt < c.cfg.MaxRetries() {
			c.td.Retried++
			c.log.Warn("retry entry", "name", e.Name, "attempt", attempt+1, "error", err)
			continue
		}
		return c.decide(e, err, decision)
	}
}

// fail passes a failure that happened before an entry could be written to the
// error handler. Retries are not possible.
func (c *creation) fail(e Entry, err error) error {
	c.td.Errors++
	c.td.LastError = err
	decision := c.handler(e, err)
	if decision == Retry {
		decision = Skip
	}
	return c.decide(e, err, decision)
}

// decide applies a final decision for a failed entry.
func (c *creation) decide(e Entry, err error, decision Decision) error {
	if decision == Abort {
		c.log.Error("creation aborted", "name", e.Name, "error", err)
		c.post(c.ctx, e, err)
		return &EntryError{Entry: e, Err: err}
	}
	c.td.Skipped++
	c.log.Warn("skipped entry", "name", e.Name, "error", err)
	c.post(c.ctx, e, err)
	return nil
}

// write passes e with the content of p to the writer.
func (c *creation) write(e Entry, p string) error {
	if e.Type == TypeOther {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedEntry, e.Name, e.Mode.Type())
	}

	var content io.Reader
	if e.Type == TypeFile {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("cannot open source: %w", err)
		}
		defer f.Close()
		content = f
	}

	n, err := c.ew.WriteEntry(e, content)
	if err != nil && !errors.Is(err, ErrUnsupportedEntry) {
		return asCodecError(c.ew.Format(), err)
	}
	if err != nil {
		return err
	}
	c.td.Size += n
	return nil
}

// cleanArchiveName turns name into a relative, slash separated archive name.
func cleanArchiveName(name string) string {
	name = filepath.ToSlash(name)
	return strings.Trim(path.Clean("/"+name), "/")
}
