// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package git brings a project working tree to a requested branch.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// ErrBranchNotFound is returned when a branch exists neither on the remote
// nor locally.
var ErrBranchNotFound = errors.New("branch not found")

// Client runs git in project directories.
type Client struct {
	proc    process.Manager
	remote  string
	timeout time.Duration
	logger  *slog.Logger
}

// Config configures a Client.
type Config struct {
	// Remote is the remote to fetch from. Default: "origin"
	Remote string

	// Timeout bounds each git invocation. Zero means no timeout.
	Timeout time.Duration
}

// NewClient creates a Client.
func NewClient(cfg Config, proc process.Manager, logger *slog.Logger) *Client {
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{proc: proc, remote: cfg.Remote, timeout: cfg.Timeout, logger: logger}
}

// Sync fetches, checks out branch, and fast-forwards it from the remote.
//
// # Description
//
//  1. git fetch --prune <remote>
//  2. verify refs/remotes/<remote>/<branch> or refs/heads/<branch>
//  3. git checkout <branch>
//  4. git pull --ff-only <remote> <branch>, only if the remote has it
//
// A local-only branch is checked out as is.
//
// # Outputs
//
//   - error: wraps ErrBranchNotFound, or a *util.CommandError
func (c *Client) Sync(ctx context.Context, dir, branch string) error {
	if err := c.Fetch(ctx, dir); err != nil {
		return err
	}

	onRemote, err := c.refExists(ctx, dir, "refs/remotes/"+c.remote+"/"+branch)
	if err != nil {
		return err
	}
	onLocal := false
	if !onRemote {
		onLocal, err = c.refExists(ctx, dir, "refs/heads/"+branch)
		if err != nil {
			return err
		}
	}
	if !onRemote && !onLocal {
		return fmt.Errorf("%w: %s (in %s)", ErrBranchNotFound, branch, dir)
	}

	if err := c.run(ctx, dir, "checkout", branch); err != nil {
		return err
	}
	if onRemote {
		if err := c.run(ctx, dir, "pull", "--ff-only", c.remote, branch); err != nil {
			return err
		}
	}

	c.logger.Info("source synced", "dir", dir, "branch", branch, "remote", onRemote)
	return nil
}

// Fetch runs git fetch --prune <remote>.
func (c *Client) Fetch(ctx context.Context, dir string) error {
	return c.run(ctx, dir, "fetch", "--prune", c.remote)
}

// RemoteBranches lists branch names on the remote, without the remote
// prefix, sorted. The symbolic HEAD entry is dropped.
func (c *Client) RemoteBranches(ctx context.Context, dir string) ([]string, error) {
	out, err := c.output(ctx, dir, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}

	prefix := c.remote + "/"
	seen := make(map[string]bool)
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "->") {
			continue
		}
		name := strings.TrimPrefix(line, prefix)
		if name == "HEAD" || name == c.remote || seen[name] {
			continue
		}
		seen[name] = true
		branches = append(branches, name)
	}
	sort.Strings(branches)
	return branches, nil
}

func (c *Client) refExists(ctx context.Context, dir, ref string) (bool, error) {
	_, stderr, code, err := c.exec(ctx, dir, "show-ref", "--verify", "--quiet", ref)
	if err != nil {
		return false, util.NewCommandError("git show-ref "+ref, code, stderr, err)
	}
	// show-ref exits 1 for a missing ref; anything else is a real failure.
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, util.NewCommandError("git show-ref "+ref, code, stderr, nil)
	}
}

func (c *Client) run(ctx context.Context, dir string, args ...string) error {
	_, err := c.output(ctx, dir, args...)
	return err
}

func (c *Client) output(ctx context.Context, dir string, args ...string) (string, error) {
	stdout, stderr, code, err := c.exec(ctx, dir, args...)
	cmdStr := "git " + strings.Join(args, " ")
	if err != nil {
		return "", util.NewCommandError(cmdStr, code, stderr, err)
	}
	if code != 0 {
		return "", util.NewCommandError(cmdStr, code, stderr, nil)
	}
	return stdout, nil
}

func (c *Client) exec(ctx context.Context, dir string, args ...string) (string, string, int, error) {
	execCtx, cancel := util.WithOptionalTimeout(ctx, c.timeout)
	defer cancel()

	// Never block on a credential prompt.
	env, err := util.EnvSlice(util.EnvVar{Key: "GIT_TERMINAL_PROMPT", Value: "0"})
	if err != nil {
		return "", "", -1, err
	}
	c.logger.Debug("running git", "dir", dir, "args", args)
	return c.proc.RunInDir(execCtx, dir, env, "git", args...)
}
