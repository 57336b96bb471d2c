// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive_test

import (
	"errors"
	"fmt"
	"testing"

	archive "github.com/hashicorp/go-archive"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandlers(t *testing.T) {
	e := archive.Entry{Name: "file", Type: archive.TypeFile}
	ioErr := errors.New("disk full")
	traversal := fmt.Errorf("%w: ../file", archive.ErrPathTraversal)
	escape := &archive.EntryError{Entry: e, Err: archive.ErrSymlinkEscape}

	tests := []struct {
		name    string
		handler archive.ErrorHandler
		err     error
		want    archive.Decision
	}{
		{name: "abort", handler: archive.AbortOnError, err: ioErr, want: archive.Abort},
		{name: "skip", handler: archive.SkipOnError, err: ioErr, want: archive.Skip},
		{name: "skip traversal", handler: archive.SkipOnError, err: traversal, want: archive.Skip},
		{name: "skip filesystem", handler: archive.SkipOnFilesystemError, err: ioErr, want: archive.Skip},
		{name: "skip filesystem on traversal", handler: archive.SkipOnFilesystemError, err: traversal, want: archive.Abort},
		{name: "skip filesystem on escape", handler: archive.SkipOnFilesystemError, err: escape, want: archive.Abort},
		{name: "retry", handler: archive.RetryOnError, err: ioErr, want: archive.Retry},
		{name: "retry on traversal", handler: archive.RetryOnError, err: traversal, want: archive.Abort},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.handler(e, tc.err))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "abort", archive.Abort.String())
	assert.Equal(t, "skip", archive.Skip.String())
	assert.Equal(t, "retry", archive.Retry.String())
	assert.Equal(t, "unknown", archive.Decision(42).String())
}

func TestIsSecurityViolation(t *testing.T) {
	assert.True(t, archive.IsSecurityViolation(archive.ErrPathTraversal))
	assert.True(t, archive.IsSecurityViolation(fmt.Errorf("wrapped: %w", archive.ErrSymlinkEscape)))
	assert.True(t, archive.IsSecurityViolation(archive.ErrSymlinkInPath))
	assert.False(t, archive.IsSecurityViolation(archive.ErrAlreadyExists))
	assert.False(t, archive.IsSecurityViolation(nil))
}

func TestEntryError(t *testing.T) {
	err := &archive.EntryError{
		Entry: archive.Entry{Name: "a/b", Type: archive.TypeFile},
		Err:   archive.ErrAlreadyExists,
	}
	assert.Contains(t, err.Error(), "a/b")
	assert.ErrorIs(t, err, archive.ErrAlreadyExists)
}
