// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process execution.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// Cancelling ctx kills the running process.
type Manager interface {
	// RunInDir executes a command in dir and waits for it.
	//
	// # Description
	//
	// The process environment is the current environment plus env
	// (KEY=VALUE entries, later entries win). Output is captured.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory; empty means the current directory
	//   - env: Extra environment entries
	//   - name: The executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - stdout, stderr: Captured output
	//   - exitCode: Process exit code; -1 if it never ran to completion
	//   - error: Non-nil only if the process could not be started or was
	//     cancelled. A non-zero exit is NOT an error.
	//
	// # Examples
	//
	//	out, _, code, err := pm.RunInDir(ctx, dir, nil, "git", "branch", "-r")
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// -----------------------------------------------------------------------------
// Production Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
type DefaultManager struct {
	// Output, when set, also receives stdout and stderr live.
	// Used by --verbose so long builds are visible while they run.
	Output io.Writer
}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// RunInDir executes a command in dir and waits for it.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	if pm.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, pm.Output)
		cmd.Stderr = io.MultiWriter(&stderr, pm.Output)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.String(), stderr.String(), -1, fmt.Errorf("%s cancelled: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}

	return stdout.String(), stderr.String(), -1, fmt.Errorf("failed to run %s: %w", name, err)
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// If RunInDirFunc is nil every command succeeds with empty output.
type MockManager struct {
	// RunInDirFunc is called when RunInDir is invoked
	RunInDirFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// Calls records all method invocations for verification
	Calls []Call

	mu sync.Mutex
}

// Call records a single invocation.
type Call struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// CommandLine returns "name arg1 arg2 ...".
func (c Call) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RunInDir delegates to RunInDirFunc and records the call.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Dir: dir, Env: env, Name: name, Args: args})
	fn := m.RunInDirFunc
	m.mu.Unlock()

	if fn == nil {
		return "", "", 0, nil
	}
	return fn(ctx, dir, env, name, args...)
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CommandLines returns CommandLine for every recorded call.
func (m *MockManager) CommandLines() []string {
	calls := m.GetCalls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.CommandLine()
	}
	return lines
}

// Compile-time interface compliance check.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
