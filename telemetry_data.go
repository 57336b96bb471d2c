// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"encoding/json"
	"time"
)

// TelemetryData holds all telemetry data of an extraction or creation run.
type TelemetryData struct {
	// Operation is either "extract" or "create"
	Operation string `json:"operation"`

	// Format is the format of the archive, e.g., "tar.gz"
	Format string `json:"format"`

	// Dirs is the number of processed directories
	Dirs int64 `json:"dirs"`

	// Files is the number of processed files
	Files int64 `json:"files"`

	// Symlinks is the number of processed symlinks
	Symlinks int64 `json:"symlinks"`

	// Size is the number of content bytes written
	Size int64 `json:"size"`

	// InputSize is the size of the input during extraction
	InputSize int64 `json:"input_size"`

	// Duration is the time the run took
	Duration time.Duration `json:"duration"`

	// Filtered is the number of entries rejected by a filter
	Filtered int64 `json:"filtered"`

	// Skipped is the number of entries skipped after a failure
	Skipped int64 `json:"skipped"`

	// Retried is the number of retry attempts
	Retried int64 `json:"retried"`

	// Errors is the number of failures reported to the error handler
	Errors int64 `json:"errors"`

	// LastError is the last failure of the run
	LastError error `json:"last_error"`

	// UnsupportedFiles is the number of entries that could not be materialized
	UnsupportedFiles int64 `json:"unsupported_files"`

	// LastUnsupportedFile is the name of the last unsupported entry
	LastUnsupportedFile string `json:"last_unsupported_file"`
}

// String returns a string representation of [TelemetryData].
func (td TelemetryData) String() string {
	b, _ := json.Marshal(td)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (td TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if td.LastError != nil {
		lastError = td.LastError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastError string `json:"last_error"`
		*Alias
	}{
		LastError: lastError,
		Alias:     (*Alias)(&td),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after a run has finished which can be used to submit the [TelemetryData]
// to a telemetry service, for example.
type TelemetryHook func(context.Context, *TelemetryData)

// Equals returns true if the given [TelemetryData] is equal to the receiver.
// Duration and LastError are not compared.
func (td *TelemetryData) Equals(other *TelemetryData) bool {
	if td == nil && other == nil {
		return true
	}
	if td == nil || other == nil {
		return false
	}
	return td.Operation == other.Operation &&
		td.Format == other.Format &&
		td.Dirs == other.Dirs &&
		td.Files == other.Files &&
		td.Symlinks == other.Symlinks &&
		td.Size == other.Size &&
		td.InputSize == other.InputSize &&
		td.Filtered == other.Filtered &&
		td.Skipped == other.Skipped &&
		td.Retried == other.Retried &&
		td.Errors == other.Errors &&
		td.UnsupportedFiles == other.UnsupportedFiles &&
		td.LastUnsupportedFile == other.LastUnsupportedFile
}

// countEntry increments the counter matching the type of e.
func (td *TelemetryData) countEntry(e Entry) {
	switch e.Type {
	case TypeDir:
		td.Dirs++
	case TypeFile:
		td.Files++
	case TypeSymlink:
		td.Symlinks++
	}
}
