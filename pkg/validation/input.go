// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// file names, container names or subprocess calls. Using these validators
// prevents command injection and path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// slugPattern matches lowercase identifiers safe for file and container names.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// gitForbidden are characters git refuses in ref names.
const gitForbidden = " \t\n\r~^:?*[\\"

// ValidateSlug checks that s is a non-empty lowercase slug of at most max
// characters. A max of zero disables the length check.
func ValidateSlug(s string, max int) error {
	if s == "" {
		return fmt.Errorf("value is empty")
	}
	if max > 0 && len(s) > max {
		return fmt.Errorf("%q is longer than %d characters", s, max)
	}
	if !slugPattern.MatchString(s) {
		return fmt.Errorf("%q must match %s", s, slugPattern.String())
	}
	return nil
}

// ValidateGitRef checks a ref name before it is passed to git.
//
// Names starting with '-' are rejected so they cannot be read as flags.
//
// Example:
//
//	if err := validation.ValidateGitRef(branch); err != nil {
//	    return fmt.Errorf("invalid branch: %w", err)
//	}
//	// Safe to pass as a git argument
func ValidateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("%q starts with '-'", ref)
	}
	if strings.ContainsAny(ref, gitForbidden) || strings.Contains(ref, "..") {
		return fmt.Errorf("%q contains characters git does not allow", ref)
	}
	if strings.HasSuffix(ref, "/") || strings.HasSuffix(ref, ".lock") {
		return fmt.Errorf("%q has a suffix git does not allow", ref)
	}
	return nil
}
