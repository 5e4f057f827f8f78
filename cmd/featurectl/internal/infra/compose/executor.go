// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose runs docker compose against per-group projects.
//
// Each feature group tier is its own compose project: a project name, a
// working directory, and the generated manifest. The executor never edits
// files; it only invokes compose through a process.Manager.
package compose

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// ErrInvalidProject is returned for a Project missing its name or directory.
var ErrInvalidProject = errors.New("invalid compose project")

// =============================================================================
// Interface
// =============================================================================

// ComposeExecutor runs compose operations for one project at a time.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; status queries for
// several tiers run in parallel.
type ComposeExecutor interface {
	// Up runs `compose up -d`, optionally with --build.
	Up(ctx context.Context, project Project, opts UpOptions) (*ComposeResult, error)

	// Down runs `compose down`.
	Down(ctx context.Context, project Project, opts DownOptions) (*ComposeResult, error)

	// Status runs `compose ps --all --format json` and parses the result.
	Status(ctx context.Context, project Project) (*ComposeStatus, error)
}

// =============================================================================
// Types
// =============================================================================

// Project identifies one compose project.
type Project struct {
	// Name is passed as -p.
	Name string

	// Dir is the working directory; relative paths in Files and in the
	// manifests resolve against it.
	Dir string

	// Files are passed as -f in order.
	Files []string

	// Profiles are passed as --profile on every call, so services behind
	// them are started, listed and stopped with the rest of the project.
	Profiles []string
}

// ComposeConfig configures the executor.
type ComposeConfig struct {
	// Command is the compose invocation.
	// Default: ["docker", "compose"]
	Command []string

	// DefaultTimeout bounds each call. Zero means no timeout.
	DefaultTimeout time.Duration
}

// UpOptions configures Up.
type UpOptions struct {
	// Build maps to --build.
	Build bool

	// RemoveOrphans maps to --remove-orphans.
	RemoveOrphans bool

	// Env is added to the compose process environment.
	Env map[string]string

	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration
}

// DownOptions configures Down.
type DownOptions struct {
	// RemoveOrphans maps to --remove-orphans.
	RemoveOrphans bool

	// RemoveVolumes maps to -v. Destroys the group's database volume.
	RemoveVolumes bool

	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration
}

// ComposeResult is the outcome of one compose invocation.
type ComposeResult struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Command  string
}

// ComposeStatus is the parsed output of compose ps.
type ComposeStatus struct {
	Services  []ServiceStatus
	Running   int
	Stopped   int
	Unhealthy int
}

// ServiceStatus is one container of a project.
type ServiceStatus struct {
	// Service is the compose service name.
	Service string `json:"Service"`

	// ContainerName is the actual container name.
	ContainerName string `json:"Name"`

	// State is running, exited, created, ...
	State string `json:"State"`

	// Health is healthy, unhealthy, starting, or empty without a check.
	Health string `json:"Health"`

	// Status is the human readable status, e.g. "Up 3 minutes".
	Status string `json:"Status"`

	Image string `json:"Image"`
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultComposeExecutor shells out to docker compose.
type DefaultComposeExecutor struct {
	config ComposeConfig
	proc   process.Manager
	logger *slog.Logger
}

// NewDefaultComposeExecutor validates cfg and applies defaults.
func NewDefaultComposeExecutor(cfg ComposeConfig, proc process.Manager, logger *slog.Logger) (*DefaultComposeExecutor, error) {
	if proc == nil {
		return nil, errors.New("process manager is required")
	}
	applyComposeConfigDefaults(&cfg)
	if err := validateComposeConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultComposeExecutor{config: cfg, proc: proc, logger: logger}, nil
}

func applyComposeConfigDefaults(cfg *ComposeConfig) {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"docker", "compose"}
	}
}

func validateComposeConfig(cfg ComposeConfig) error {
	for _, part := range cfg.Command {
		if strings.TrimSpace(part) == "" {
			return errors.New("compose command contains an empty element")
		}
	}
	if cfg.DefaultTimeout < 0 {
		return errors.New("compose timeout must not be negative")
	}
	return nil
}

// Up runs compose up -d.
func (e *DefaultComposeExecutor) Up(ctx context.Context, project Project, opts UpOptions) (*ComposeResult, error) {
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}
	args := []string{"up", "-d"}
	if opts.Build {
		args = append(args, "--build")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	return e.runCompose(ctx, project, args, opts.Env, opts.Timeout)
}

// Down runs compose down.
func (e *DefaultComposeExecutor) Down(ctx context.Context, project Project, opts DownOptions) (*ComposeResult, error) {
	args := []string{"down"}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	return e.runCompose(ctx, project, args, nil, opts.Timeout)
}

// Status lists the project's containers, running or not.
func (e *DefaultComposeExecutor) Status(ctx context.Context, project Project) (*ComposeStatus, error) {
	result, err := e.runCompose(ctx, project, []string{"ps", "--all", "--format", "json"}, nil, 0)
	if err != nil {
		return nil, err
	}
	return parseStatus(result.Stdout)
}

func (e *DefaultComposeExecutor) runCompose(ctx context.Context, project Project, args []string, env map[string]string, timeout time.Duration) (*ComposeResult, error) {
	if project.Name == "" || project.Dir == "" {
		return nil, fmt.Errorf("%w: name and directory are required", ErrInvalidProject)
	}

	full := make([]string, 0, len(e.config.Command)+len(project.Files)*2+len(project.Profiles)*2+len(args)+2)
	full = append(full, e.config.Command[1:]...)
	full = append(full, "-p", project.Name)
	for _, f := range project.Files {
		full = append(full, "-f", f)
	}
	for _, profile := range project.Profiles {
		full = append(full, "--profile", profile)
	}
	full = append(full, args...)

	name := e.config.Command[0]
	cmdStr := name + " " + strings.Join(full, " ")

	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	execCtx, cancel := util.WithOptionalTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("running compose", "command", cmdStr, "dir", project.Dir)
	start := time.Now()
	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, project.Dir, buildCommandEnvironment(env), name, full...)

	result := &ComposeResult{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}
	e.logger.Debug("compose finished", "command", cmdStr, "exit_code", exitCode, "duration", result.Duration)

	if err != nil {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, nil)
	}
	return result, nil
}

// buildCommandEnvironment returns env as sorted KEY=VALUE entries.
func buildCommandEnvironment(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	vars := make([]util.EnvVar, 0, len(env))
	for k, v := range env {
		vars = append(vars, util.EnvVar{Key: k, Value: v})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.String()
	}
	return out
}

func validateEnvVars(env map[string]string) error {
	for key := range env {
		if err := util.ValidateEnvKey(key); err != nil {
			return err
		}
	}
	return nil
}

// parseStatus accepts both output shapes of `compose ps --format json`:
// a single JSON array (older releases) or one object per line.
func parseStatus(out string) (*ComposeStatus, error) {
	out = strings.TrimSpace(out)
	var services []ServiceStatus

	switch {
	case out == "":
	case strings.HasPrefix(out, "["):
		if err := json.Unmarshal([]byte(out), &services); err != nil {
			return nil, fmt.Errorf("parse compose ps output: %w", err)
		}
	default:
		sc := bufio.NewScanner(strings.NewReader(out))
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var s ServiceStatus
			if err := json.Unmarshal([]byte(line), &s); err != nil {
				return nil, fmt.Errorf("parse compose ps line: %w", err)
			}
			services = append(services, s)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read compose ps output: %w", err)
		}
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Service < services[j].Service })

	status := &ComposeStatus{Services: services}
	for _, s := range services {
		if s.State == "running" {
			status.Running++
		} else {
			status.Stopped++
		}
		if s.Health == "unhealthy" {
			status.Unhealthy++
		}
	}
	return status, nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockComposeExecutor is a test double for ComposeExecutor.
//
// Nil function fields succeed with an empty result.
type MockComposeExecutor struct {
	UpFunc     func(context.Context, Project, UpOptions) (*ComposeResult, error)
	DownFunc   func(context.Context, Project, DownOptions) (*ComposeResult, error)
	StatusFunc func(context.Context, Project) (*ComposeStatus, error)

	UpCalls     []Project
	DownCalls   []Project
	StatusCalls []Project
	mu          sync.Mutex
}

// Up implements ComposeExecutor.
func (m *MockComposeExecutor) Up(ctx context.Context, project Project, opts UpOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, project)
	m.mu.Unlock()
	if m.UpFunc != nil {
		return m.UpFunc(ctx, project, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Down implements ComposeExecutor.
func (m *MockComposeExecutor) Down(ctx context.Context, project Project, opts DownOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, project)
	m.mu.Unlock()
	if m.DownFunc != nil {
		return m.DownFunc(ctx, project, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Status implements ComposeExecutor.
func (m *MockComposeExecutor) Status(ctx context.Context, project Project) (*ComposeStatus, error) {
	m.mu.Lock()
	m.StatusCalls = append(m.StatusCalls, project)
	m.mu.Unlock()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, project)
	}
	return &ComposeStatus{}, nil
}

var (
	_ ComposeExecutor = (*DefaultComposeExecutor)(nil)
	_ ComposeExecutor = (*MockComposeExecutor)(nil)
)
