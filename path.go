// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// splitName splits the archive name of an entry into its path segments. Empty
// segments and "." are dropped, so leading slashes and "./" prefixes do not count
// as components.
func splitName(name string) []string {
	return strings.FieldsFunc(name, isSeparator)
}

// isSeparator reports whether r separates path segments in an entry name.
// Archives written on windows may use backslashes.
func isSeparator(r rune) bool {
	return r == '/' || (runtime.GOOS == "windows" && r == '\\')
}

// resolvePath maps the archive name of an entry onto the destination root.
//
// The first strip segments of name are dropped. If nothing remains, the entry
// collapses onto root and [ErrCollapsedToRoot] is returned. A ".." segment in the
// remaining path is rejected with [ErrPathTraversal]. On success the returned
// path is the absolute destination of the entry, strictly below root.
func resolvePath(root string, name string, strip int) (string, error) {
	// drop empty and current-dir segments before counting
	var segments []string
	for _, s := range splitName(name) {
		if s != "." {
			segments = append(segments, s)
		}
	}

	// check for collapse onto the destination root
	if len(segments) <= strip {
		return "", fmt.Errorf("%w: %s", ErrCollapsedToRoot, name)
	}
	segments = segments[strip:]

	// reject traversal anywhere in the remaining path
	for _, s := range segments {
		if s == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
		}
	}

	// join and perform the final prefix check
	path := filepath.Join(append([]string{root}, segments...)...)
	if err := checkWithinRoot(root, path, false); err != nil {
		return "", fmt.Errorf("%w: %s", err, name)
	}
	return path, nil
}

// relativeName returns path relative to root, slash separated. It is used for
// logging and for security checks that walk the path below root.
func relativeName(root string, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
