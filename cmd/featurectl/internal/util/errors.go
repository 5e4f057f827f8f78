// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// maxStderrLines bounds how much of a tool's stderr ends up in an error.
const maxStderrLines = 20

// CommandError describes an external command that exited non-zero or could
// not be run.
type CommandError struct {
	// Command is the command line, for display.
	Command string

	// ExitCode is the process exit code, -1 if it never completed.
	ExitCode int

	// Stderr is the trimmed tail of the command's stderr.
	Stderr string

	// Wrapped is the start/cancel error, if any.
	Wrapped error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr reports whether the command wrote anything to stderr.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

var _ error = (*CommandError)(nil)

// NewCommandError builds a CommandError keeping only the last lines of stderr.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   tailLines(strings.TrimSpace(stderr), maxStderrLines),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the stderr of the first CommandError in err's chain.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}

func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
