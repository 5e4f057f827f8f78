// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/featurectl/cmd/featurectl/config"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/compose"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/git"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/lifecycle"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/metrics"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/orchestrator"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/proxy"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/store"
)

// AppOptions are the command line settings that affect wiring.
type AppOptions struct {
	// Stream receives the live output of git and compose when set.
	Stream io.Writer

	// Process runs git, compose and reload commands. Defaults to a
	// process.DefaultManager.
	Process process.Manager
}

// App holds the wired dependencies of one invocation.
type App struct {
	Service *lifecycle.Service

	records *store.FileStore
	closers []func() error
}

// NewApp builds the object graph for cfg.
//
// # Description
//
//	config ─► store (file | badger) ─► Registry (mutex + flock)
//	       ─► process.Manager ─► git.Client, compose executor ─► Orchestrator
//	       ─► proxy Writer + Reloader ─► Syncer
//	       ─► metrics Recorder
//	       ═► lifecycle.Service
//
// Everything that holds resources is closed by Close, in reverse order.
func NewApp(cfg *config.FeatureConfig, logger *slog.Logger, opts AppOptions) (app *App, err error) {
	app = &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	backend, err := openBackend(cfg.Store, logger)
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, backend.Close)
	if fs, ok := backend.(*store.FileStore); ok {
		app.records = fs
	}

	lockDir := cfg.LockDir()
	if err := os.MkdirAll(lockDir, 0o750); err != nil {
		return app, fmt.Errorf("create lock directory %s: %w", lockDir, err)
	}
	lock := process.NewProcessLock(process.ProcessLockConfig{LockDir: lockDir, LockName: "featurectl"})
	registry := store.NewRegistry(backend, logger, store.WithLocker(lock))

	proc := opts.Process
	if proc == nil {
		dm := process.NewDefaultManager()
		if opts.Stream != nil {
			dm.Output = opts.Stream
		}
		proc = dm
	}

	gitClient := git.NewClient(git.Config{
		Remote:  cfg.Git.Remote,
		Timeout: cfg.Timeouts.Git,
	}, proc, logger)

	executor, err := compose.NewDefaultComposeExecutor(compose.ComposeConfig{
		Command:        cfg.Compose.Command,
		DefaultTimeout: cfg.Timeouts.Compose,
	}, proc, logger)
	if err != nil {
		return app, fmt.Errorf("compose: %w", err)
	}

	orch := orchestrator.New(orchestratorConfig(cfg), gitClient, executor, logger)

	reloader, err := newReloader(cfg.Proxy, proc)
	if err != nil {
		return app, err
	}
	syncer := proxy.NewSyncer(
		proxy.NewWriter(cfg.Proxy.ConfigPath),
		reloader,
		renderOptions(cfg.Proxy),
		cfg.Timeouts.Reload,
		logger,
	)
	app.closers = append(app.closers, syncer.Close)

	app.Service = lifecycle.NewService(
		registry.Repository(),
		registry,
		orch,
		syncer,
		metrics.New(cfg.Metrics.Textfile),
		logger,
	)
	return app, nil
}

// WatchRecords calls onChange whenever a record file changes.
func (a *App) WatchRecords(ctx context.Context, onChange func(ctx context.Context)) error {
	if a.records == nil {
		return usageErrorf("--watch needs store.backend: file")
	}
	return a.records.Watch(ctx, store.DefaultWatchDebounce, onChange)
}

// Close releases everything NewApp opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openBackend(cfg config.StoreConfig, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case "badger":
		bs, err := store.OpenBadgerStore(store.DefaultBadgerConfig(cfg.Dir))
		if err != nil {
			return nil, err
		}
		return bs, nil
	default:
		fs, err := store.NewFileStore(cfg.Dir, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}

func orchestratorConfig(cfg *config.FeatureConfig) orchestrator.Config {
	project := func(p config.ProjectConfig) orchestrator.ProjectConfig {
		return orchestrator.ProjectConfig{
			Path:          p.Path,
			BaseFile:      p.BaseFile,
			Template:      p.Template,
			Services:      p.RoleServices(),
			DBHostKey:     p.DBHostKey,
			HostKeys:      p.HostKeys,
			PublicURLKey:  p.PublicURLKey,
			SharedVolumes: p.SharedVolumes,
		}
	}
	return orchestrator.Config{
		Projects: map[feature.Tier]orchestrator.ProjectConfig{
			feature.TierBackend:  project(cfg.Projects.Backend),
			feature.TierFrontend: project(cfg.Projects.Frontend),
		},
		Network:        cfg.Network.Name,
		DBVolumePrefix: cfg.Network.DBVolumePrefix,
		DBDataPath:     cfg.Network.DBDataPath,
		AlwaysProfile:  cfg.Network.AlwaysProfile,
		PublicBaseURL:  cfg.Proxy.PublicBaseURL,
	}
}

func renderOptions(cfg config.ProxyConfig) proxy.RenderOptions {
	return proxy.RenderOptions{
		ListenPort:        cfg.ListenPort,
		ServerName:        cfg.ServerName,
		BackendPort:       cfg.BackendPort,
		FrontendPort:      cfg.FrontendPort,
		ClientMaxBodySize: cfg.ClientMaxBodySize,
		Resolver:          cfg.Resolver,
		ProxyReadTimeout:  cfg.ProxyReadTimeout,
		BackendPrefixes:   cfg.BackendPrefixes,
	}
}

func newReloader(cfg config.ProxyConfig, proc process.Manager) (proxy.Reloader, error) {
	switch cfg.Reload {
	case "none":
		return proxy.NopReloader{}, nil
	case "command":
		command := cfg.ReloadCommand
		if len(command) == 0 {
			command = proxy.DefaultReloadCommand(cfg.Container)
		}
		return proxy.NewCommandReloader(proc, command)
	default:
		return proxy.NewDockerReloader(cfg.Container)
	}
}
