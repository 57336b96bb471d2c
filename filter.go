// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"path/filepath"

	"github.com/moby/patternmatcher"
)

// Filter decides if an entry is processed. It is called with the slash separated
// name of the entry and a hint: the destination directory during extraction and
// the source path during creation.
//
// A Filter must be free of side effects. An entry for which the filter returns
// false is skipped entirely: nothing is written, and neither the error handler nor
// the post-processor is called.
//
// Filters apply per entry. During creation, a directory that is filtered out is
// still walked and its children are evaluated on their own.
type Filter func(name string, hint string) bool

// acceptAll is the default filter.
func acceptAll(string, string) bool {
	return true
}

// PatternFilter returns a [Filter] that accepts entries whose name, or one of its
// parent directories, matches at least one of the patterns. Patterns use the
// syntax of .dockerignore files, including "**" and "!" exclusions.
func PatternFilter(patterns ...string) (Filter, error) {
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot compile patterns: %w", ErrInvalidConfig, err)
	}
	return func(name string, _ string) bool {
		match, err := pm.MatchesOrParentMatches(filepath.FromSlash(name))
		return err == nil && match
	}, nil
}

// ExcludeFilter returns a [Filter] that rejects entries whose name, or one of its
// parent directories, matches the patterns. Patterns use the syntax of .dockerignore
// files.
func ExcludeFilter(patterns ...string) (Filter, error) {
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot compile patterns: %w", ErrInvalidConfig, err)
	}
	return func(name string, _ string) bool {
		match, err := pm.MatchesOrParentMatches(filepath.FromSlash(name))
		return err == nil && !match
	}, nil
}

// allOf combines filters; an entry must be accepted by each of them.
func allOf(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return acceptAll
	case 1:
		return filters[0]
	}
	return func(name string, hint string) bool {
		for _, f := range filters {
			if !f(name, hint) {
				return false
			}
		}
		return true
	}
}
