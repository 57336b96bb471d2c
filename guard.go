// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SymlinkPolicy decides how symlinks whose target lies outside of the destination
// are handled during extraction.
type SymlinkPolicy int

const (
	// SymlinkDisallow rejects symlinks whose target, resolved relative to the
	// directory of the link, is outside of the destination.
	SymlinkDisallow SymlinkPolicy = iota

	// SymlinkAllow creates symlinks verbatim without validating the target.
	// This is unsafe for untrusted archives.
	SymlinkAllow
)

// String returns the name of the policy.
func (p SymlinkPolicy) String() string {
	switch p {
	case SymlinkDisallow:
		return "disallow"
	case SymlinkAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// rootPrefix returns the prefix every path strictly below root starts with.
func rootPrefix(root string) string {
	if strings.HasSuffix(root, string(os.PathSeparator)) {
		return root
	}
	return root + string(os.PathSeparator)
}

// checkWithinRoot checks that the cleaned, absolute path lies strictly below root.
// If allowRoot is true, path may also be root itself.
func checkWithinRoot(root string, path string, allowRoot bool) error {
	path = filepath.Clean(path)
	if allowRoot && path == filepath.Clean(root) {
		return nil
	}
	if !strings.HasPrefix(path, rootPrefix(root)) {
		return ErrPathTraversal
	}
	return nil
}

// checkSymlinkTarget validates the target of a symlink that is going to be
// created at linkPath. The target is walked segment by segment, starting at the
// directory of the link, or at root for absolute targets. A ".." that leaves
// root rejects the link, even if later segments lead back into root.
//
// The target does not need to exist. Existing components that are followed by
// further segments are checked through t: traversing a symlink would invalidate
// the lexical walk, e.g., "d -> ." followed by "e -> d/..". If traverse is true,
// such symlinks are logged and accepted.
func checkSymlinkTarget(t Target, root string, linkPath string, target string, policy SymlinkPolicy, traverse bool, log logger) error {
	if policy == SymlinkAllow {
		return nil
	}

	// determine the start of the walk
	var current []string
	resolved := filepath.FromSlash(target)
	if filepath.IsAbs(resolved) {
		rel, err := filepath.Rel(root, filepath.Clean(resolved))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrSymlinkEscape, target)
		}
		resolved = rel
	} else {
		rel, err := filepath.Rel(root, filepath.Dir(linkPath))
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		current = pathSegments(rel)
		if len(current) > 0 && current[0] == ".." {
			return fmt.Errorf("%w: %s", ErrSymlinkEscape, target)
		}
	}

	segments := pathSegments(resolved)
	for i, s := range segments {
		if s == ".." {
			// the link may point to the destination itself, but not above
			if len(current) == 0 {
				return fmt.Errorf("%w: %s", ErrSymlinkEscape, target)
			}
			current = current[:len(current)-1]
			continue
		}
		current = append(current, s)
		if i == len(segments)-1 {
			break
		}

		// the walk continues below this component
		stat, err := t.Lstat(filepath.Join(append([]string{root}, current...)...))
		if err != nil || stat.Mode()&fs.ModeSymlink == 0 {
			continue
		}
		if !traverse {
			return fmt.Errorf("%w: %s traverses symlink %s", ErrSymlinkEscape, target, strings.Join(current, "/"))
		}
		log.Warn("symlink target traverses symlink", "target", target, "sub-dir", strings.Join(current, "/"))
	}
	return nil
}

// pathSegments splits a relative path into its segments. Empty and "."
// segments are dropped.
func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, string(os.PathSeparator)) {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	return segments
}

// checkSymlinksInPath checks that none of the existing parent directories of path
// below root is a symlink. The walk of symlink targets starts at the lexical
// parent of the link, which is only sound if no previously extracted symlink is
// traversed, e.g., "a -> ." followed by "a/b -> ..".
//
// If traverse is true, symlinks are logged and accepted.
func checkSymlinksInPath(t Target, root string, path string, traverse bool, log logger) error {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	if rel == "." {
		return nil
	}

	// check each existing directory on the way down
	current := root
	for _, segment := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, segment)

		stat, err := t.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			// nothing below a missing directory can exist
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		if stat.Mode()&fs.ModeSymlink != 0 {
			if !traverse {
				return fmt.Errorf("%w: %s", ErrSymlinkInPath, relativeName(root, current))
			}
			log.Warn("traverse symlink", "sub-dir", relativeName(root, current))
		}
	}
	return nil
}
