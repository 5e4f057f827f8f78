// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// Reloader makes the running proxy pick up a new configuration.
type Reloader interface {
	Reload(ctx context.Context) error
	Close() error
}

// =============================================================================
// Docker Engine API
// =============================================================================

// containerKiller is the part of the Docker client DockerReloader uses.
type containerKiller interface {
	ContainerKill(ctx context.Context, container, signal string) error
	Close() error
}

// DockerReloader sends SIGHUP to the nginx container through the Docker
// Engine API. nginx re-reads its configuration on SIGHUP.
type DockerReloader struct {
	client    containerKiller
	container string
}

// NewDockerReloader connects using the standard DOCKER_* environment.
func NewDockerReloader(container string) (*DockerReloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, errors.New("proxy container name required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerReloader{client: cli, container: container}, nil
}

// Reload signals the container.
func (r *DockerReloader) Reload(ctx context.Context) error {
	if err := r.client.ContainerKill(ctx, r.container, "HUP"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("proxy container %s not found", r.container)
		}
		return fmt.Errorf("signal %s: %w", r.container, err)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerReloader) Close() error {
	return r.client.Close()
}

// =============================================================================
// Command
// =============================================================================

// CommandReloader runs a fixed command, by default
// `docker exec <container> nginx -s reload`.
type CommandReloader struct {
	proc    process.Manager
	command []string
}

// DefaultReloadCommand returns the docker exec reload command for container.
func DefaultReloadCommand(container string) []string {
	return []string{"docker", "exec", container, "nginx", "-s", "reload"}
}

// NewCommandReloader validates command.
func NewCommandReloader(proc process.Manager, command []string) (*CommandReloader, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("reload command is empty")
	}
	return &CommandReloader{proc: proc, command: command}, nil
}

// Reload runs the command.
func (r *CommandReloader) Reload(ctx context.Context) error {
	_, stderr, code, err := r.proc.RunInDir(ctx, "", nil, r.command[0], r.command[1:]...)
	cmdStr := strings.Join(r.command, " ")
	if err != nil {
		return util.NewCommandError(cmdStr, code, stderr, err)
	}
	if code != 0 {
		return util.NewCommandError(cmdStr, code, stderr, nil)
	}
	return nil
}

// Close is a no-op.
func (r *CommandReloader) Close() error { return nil }

// =============================================================================
// None
// =============================================================================

// NopReloader leaves reloading to someone else.
type NopReloader struct{}

func (NopReloader) Reload(context.Context) error { return nil }
func (NopReloader) Close() error                 { return nil }

var (
	_ Reloader = (*DockerReloader)(nil)
	_ Reloader = (*CommandReloader)(nil)
	_ Reloader = NopReloader{}
)
