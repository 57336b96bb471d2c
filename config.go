// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"golang.org/x/text/encoding"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// PostProcessor is called after each entry reached its final outcome. err is nil
// if the entry was processed successfully, otherwise it is the failure that made
// the error handler skip the entry or abort the run. Filtered entries are never
// passed to the post-processor.
type PostProcessor func(ctx context.Context, e Entry, err error)

// FormatOptions are passed through to the codec adapters. The extraction and
// creation orchestrators do not interpret them.
type FormatOptions struct {
	// BlockSize is the block size in bytes used by block based compressors
	// (gzip). 0 selects the default of the compressor.
	BlockSize int

	// Blocks is the number of blocks compressed concurrently (gzip).
	// 0 selects the default of the compressor.
	Blocks int

	// CompressionLevel is the compression level. The meaning depends on the
	// compressor; -1 selects its default.
	CompressionLevel int
}

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for the extraction and
// the creation of archives. The configuration options can be adjusted using the
// option pattern style. A Config must not be changed after a run started.
//
// The default configuration is designed to be secure by default and prevent exhaustion,
// path traversal and symlink attacks.
type Config struct {
	// cacheInMemory offers the option to enable/disable caching in memory. This applies
	// to the extraction of formats that need random access (zip, 7z), if they are
	// provided as a stream, and to the creation of entries of unknown size.
	cacheInMemory bool

	// continueOnUnsupportedFiles offers the option to enable/disable skipping unsupported files
	continueOnUnsupportedFiles bool

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// customDecompressFileMode is the file mode for a decompressed file (respecting umask)
	customDecompressFileMode fs.FileMode

	// dropFileAttributes is a flag drop the file attributes of the extracted files
	dropFileAttributes bool

	// encoding is the character set of entry names in the container
	encoding string

	// errorHandler decides how to continue after an entry failed
	errorHandler ErrorHandler

	// extractionType is the type of extraction algorithm
	extractionType string

	// filters decide which entries are processed
	filters []Filter

	// formatOptions are passed to the codec adapters
	formatOptions FormatOptions

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool

	// logger stream for extraction
	logger logger

	// maxExtractionSize is the maximum size of a file after decompression.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of files (including folder and symlinks) in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the input
	// Set value to -1 to disable the check.
	maxInputSize int64

	// maxRetries bounds how often an entry is retried
	maxRetries int

	// namePrefix is prepended to all entry names during creation
	namePrefix string

	// noUntarAfterDecompression offers the option to enable/disable combined tar.gz extraction
	noUntarAfterDecompression bool

	// Define if files should be overwritten in the destination
	overwrite bool

	// patterns is a list of file patterns to match files to extract
	patterns []string

	// postProcessor observes the outcome of each entry
	postProcessor PostProcessor

	// stripComponents is the number of leading path segments dropped from entry names
	stripComponents int

	// symlinkPolicy decides about symlinks pointing out of the destination
	symlinkPolicy SymlinkPolicy

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook
}

// CacheInMemory returns true if caching in memory is enabled.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func (c *Config) CacheInMemory() bool {
	return c.cacheInMemory
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if fileSize exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// ContinueOnUnsupportedFiles returns true if unsupported files, e.g., FIFO, block or
// character devices, should be skipped.
func (c *Config) ContinueOnUnsupportedFiles() bool {
	return c.continueOnUnsupportedFiles
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomDecompressFileMode returns the file mode for a decompressed file.
// (respecting umask)
func (c *Config) CustomDecompressFileMode() fs.FileMode {
	return c.customDecompressFileMode
}

// DropFileAttributes returns true if the file attributes should be dropped.
func (c *Config) DropFileAttributes() bool {
	return c.dropFileAttributes
}

// Encoding returns the name of the character set of entry names. An empty string
// means UTF-8.
func (c *Config) Encoding() string {
	return c.encoding
}

// ErrorHandler returns the handler that decides how to continue after an entry failed.
func (c *Config) ErrorHandler() ErrorHandler {
	if c.errorHandler == nil {
		return defaultErrorHandler
	}
	return c.errorHandler
}

// ExtractType returns the specified extraction type.
func (c *Config) ExtractType() string {
	return c.extractionType
}

// Filter returns the combination of all configured filters and patterns.
func (c *Config) Filter() Filter {
	filters := append([]Filter{}, c.filters...)
	if len(c.patterns) > 0 {
		f, err := PatternFilter(c.patterns...)
		if err != nil {
			// rejected by Validate before a run starts
			return func(string, string) bool { return false }
		}
		filters = append(filters, f)
	}
	return allOf(filters...)
}

// FormatOptions returns the options passed to the codec adapters.
func (c *Config) FormatOptions() FormatOptions {
	return c.formatOptions
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	if c.logger == nil {
		return defaultLogger
	}
	return c.logger
}

// MaxExtractionSize returns the maximum size over all decompressed and extracted files.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of files (including folder and symlinks) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the input.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// MaxRetries returns how often a failed entry is retried if the error handler
// decides to retry.
func (c *Config) MaxRetries() int {
	return c.maxRetries
}

// NamePrefix returns the prefix prepended to all entry names during creation.
func (c *Config) NamePrefix() string {
	return c.namePrefix
}

// NoUntarAfterDecompression returns true if tar.gz should NOT be untared after decompression.
func (c *Config) NoUntarAfterDecompression() bool {
	return c.noUntarAfterDecompression
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Patterns returns a list of patterns to match files to extract.
func (c *Config) Patterns() []string {
	return c.patterns
}

// PostProcessor returns the post-processor.
func (c *Config) PostProcessor() PostProcessor {
	if c.postProcessor == nil {
		return defaultPostProcessor
	}
	return c.postProcessor
}

// StripComponents returns the number of leading path segments dropped from entry names.
func (c *Config) StripComponents() int {
	return c.stripComponents
}

// SymlinkPolicy returns the policy for symlinks pointing out of the destination.
func (c *Config) SymlinkPolicy() SymlinkPolicy {
	return c.symlinkPolicy
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// Validate checks the configuration before a run. Every problem is reported as
// [ErrInvalidConfig].
func (c *Config) Validate() error {
	if c.stripComponents < 0 {
		return fmt.Errorf("%w: negative strip components: %d", ErrInvalidConfig, c.stripComponents)
	}
	if c.maxRetries < 0 {
		return fmt.Errorf("%w: negative max retries: %d", ErrInvalidConfig, c.maxRetries)
	}
	if c.symlinkPolicy != SymlinkDisallow && c.symlinkPolicy != SymlinkAllow {
		return fmt.Errorf("%w: unknown symlink policy: %d", ErrInvalidConfig, c.symlinkPolicy)
	}
	if len(c.patterns) > 0 {
		if _, err := PatternFilter(c.patterns...); err != nil {
			return err
		}
	}
	if _, err := c.nameEncoding(); err != nil {
		return err
	}
	return nil
}

// nameEncoding looks up the configured character set.
func (c *Config) nameEncoding() (encoding.Encoding, error) {
	return lookupEncoding(c.encoding)
}

const (
	defaultCacheInMemory              = false         // cache on disk
	defaultContinueOnUnsupportedFiles = false         // stop on unsupported files and return error
	defaultCreateDestination          = false         // don't create destination directory
	defaultCustomCreateDirMode        = 0750          // default directory permissions rwxr-x---
	defaultCustomDecompressFileMode   = 0640          // default decompression permissions rw-r-----
	defaultDropFileAttributes         = false         // keep file attributes from archive
	defaultExtractionType             = ""            // don't limit extraction type
	defaultMaxFiles                   = 100000        // 100k files
	defaultMaxExtractionSize          = 1 << (10 * 3) // 1 Gb
	defaultMaxInputSize               = 1 << (10 * 3) // 1 Gb
	defaultMaxRetries                 = 1             // retry a failed entry once
	defaultNoUntarAfterDecompression  = false         // untar after decompression
	defaultOverwrite                  = false         // don't overwrite existing files
	defaultStripComponents            = 0             // keep all path segments
	defaultSymlinkPolicy              = SymlinkDisallow
	defaultTraverseSymlinks           = false // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	// abort on every failure
	defaultErrorHandler ErrorHandler = AbortOnError

	// no operation post-processor
	defaultPostProcessor = func(context.Context, Entry, error) {
		// noop
	}

	// no operation telemetry hook
	defaultTelemetryHook = func(context.Context, *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		cacheInMemory:              defaultCacheInMemory,
		continueOnUnsupportedFiles: defaultContinueOnUnsupportedFiles,
		createDestination:          defaultCreateDestination,
		customCreateDirMode:        defaultCustomCreateDirMode,
		customDecompressFileMode:   defaultCustomDecompressFileMode,
		dropFileAttributes:         defaultDropFileAttributes,
		errorHandler:               defaultErrorHandler,
		extractionType:             defaultExtractionType,
		formatOptions:              FormatOptions{CompressionLevel: -1},
		logger:                     defaultLogger,
		maxFiles:                   defaultMaxFiles,
		maxExtractionSize:          defaultMaxExtractionSize,
		maxInputSize:               defaultMaxInputSize,
		maxRetries:                 defaultMaxRetries,
		noUntarAfterDecompression:  defaultNoUntarAfterDecompression,
		overwrite:                  defaultOverwrite,
		postProcessor:              defaultPostProcessor,
		stripComponents:            defaultStripComponents,
		symlinkPolicy:              defaultSymlinkPolicy,
		telemetryHook:              defaultTelemetryHook,
		traverseSymlinks:           defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCacheInMemory options pattern function to enable/disable caching in memory.
//
// If set to false, the cache is stored on disk to avoid memory exhaustion.
func WithCacheInMemory(cache bool) ConfigOption {
	return func(c *Config) {
		c.cacheInMemory = cache
	}
}

// WithContinueOnError options pattern function to continue on error. If set to true,
// failed entries are logged and skipped. If set to false, the run stops and returns
// the error. It is a shortcut for [WithErrorHandler] with [SkipOnError] or [AbortOnError].
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		if yes {
			c.errorHandler = SkipOnError
		} else {
			c.errorHandler = AbortOnError
		}
	}
}

// WithContinueOnUnsupportedFiles options pattern function to
// enable/disable skipping unsupported files. An unsupported file is an entry
// that cannot be materialized, e.g., a hard link, FIFO or device file.
func WithContinueOnUnsupportedFiles(ctd bool) ConfigOption {
	return func(c *Config) {
		c.continueOnUnsupportedFiles = ctd
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomDecompressFileMode options pattern function to set the file mode for a
// decompressed file. (respecting umask)
func WithCustomDecompressFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customDecompressFileMode = mode
	}
}

// WithDropFileAttributes options pattern function to drop the
// file attributes of the extracted files.
func WithDropFileAttributes(drop bool) ConfigOption {
	return func(c *Config) {
		c.dropFileAttributes = drop
	}
}

// WithEncoding options pattern function to set the character set of entry names,
// e.g., "cp437" or "shift_jis". Names are decoded during extraction and encoded
// during creation. An empty name selects UTF-8.
func WithEncoding(name string) ConfigOption {
	return func(c *Config) {
		c.encoding = name
	}
}

// WithErrorHandler options pattern function to set the [ErrorHandler].
func WithErrorHandler(handler ErrorHandler) ConfigOption {
	return func(c *Config) {
		c.errorHandler = handler
	}
}

// WithExtractType options pattern function to set the extraction type in the [Config].
func WithExtractType(extractionType string) ConfigOption {
	return func(c *Config) {
		if len(extractionType) > 0 {
			c.extractionType = extractionType
		}
	}
}

// WithFilter options pattern function to add a [Filter]. Multiple filters
// must all accept an entry.
func WithFilter(filter Filter) ConfigOption {
	return func(c *Config) {
		if filter != nil {
			c.filters = append(c.filters, filter)
		}
	}
}

// WithFormatOptions options pattern function to set options for the codec adapters.
func WithFormatOptions(opts FormatOptions) ConfigOption {
	return func(c *Config) {
		c.formatOptions = opts
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all decompressed
// and extracted files. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted, files, directories
// and symlinks during the extraction. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set MaxInputSize for extraction input file. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithMaxRetries options pattern function to bound how often an entry is retried
// if the error handler returns [Retry].
func WithMaxRetries(retries int) ConfigOption {
	return func(c *Config) {
		c.maxRetries = retries
	}
}

// WithNamePrefix options pattern function to set a prefix that is prepended to all
// entry names during creation.
func WithNamePrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.namePrefix = prefix
	}
}

// WithNoUntarAfterDecompression options pattern function to enable/disable combined tar.gz extraction.
func WithNoUntarAfterDecompression(disable bool) ConfigOption {
	return func(c *Config) {
		c.noUntarAfterDecompression = disable
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPatterns options pattern function to set patterns, that files need to match to be extracted.
// Patterns use the syntax of .dockerignore files, see [PatternFilter].
func WithPatterns(pattern ...string) ConfigOption {
	return func(c *Config) {
		c.patterns = append(c.patterns, pattern...)
	}
}

// WithPostProcessor options pattern function to set the [PostProcessor].
func WithPostProcessor(pp PostProcessor) ConfigOption {
	return func(c *Config) {
		c.postProcessor = pp
	}
}

// WithStripComponents options pattern function to drop n leading path segments from
// entry names during extraction.
func WithStripComponents(n int) ConfigOption {
	return func(c *Config) {
		c.stripComponents = n
	}
}

// WithSymlinkPolicy options pattern function to set the [SymlinkPolicy].
func WithSymlinkPolicy(policy SymlinkPolicy) ConfigOption {
	return func(c *Config) {
		c.symlinkPolicy = policy
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after
// extraction and creation.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
