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
	"log/slog"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// SyncResult reports what Sync did.
type SyncResult struct {
	Groups    int
	Changed   bool
	Reloaded  bool
	ReloadErr error
}

// Syncer renders, writes, and reloads in one step.
type Syncer struct {
	writer        *Writer
	reloader      Reloader
	opts          RenderOptions
	reloadTimeout time.Duration
	logger        *slog.Logger
}

// NewSyncer wires the three proxy steps together. A nil reloader never
// reloads.
func NewSyncer(writer *Writer, reloader Reloader, opts RenderOptions, reloadTimeout time.Duration, logger *slog.Logger) *Syncer {
	if reloader == nil {
		reloader = NopReloader{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{writer: writer, reloader: reloader, opts: opts, reloadTimeout: reloadTimeout, logger: logger}
}

// Render returns the configuration for groups without writing it.
func (s *Syncer) Render(groups []feature.Group) string {
	return Render(groups, s.opts)
}

// Sync rewrites the configuration for groups and reloads the proxy if the
// file changed.
//
// # Outputs
//
//   - SyncResult: ReloadErr holds a reload failure, which is only logged
//   - error: render/write failure
func (s *Syncer) Sync(ctx context.Context, groups []feature.Group) (SyncResult, error) {
	return s.sync(ctx, groups, false)
}

// Resync is Sync but reloads even when the file did not change.
func (s *Syncer) Resync(ctx context.Context, groups []feature.Group) (SyncResult, error) {
	return s.sync(ctx, groups, true)
}

func (s *Syncer) sync(ctx context.Context, groups []feature.Group, force bool) (SyncResult, error) {
	res := SyncResult{Groups: len(groups)}

	changed, err := s.writer.Write(ctx, s.Render(groups))
	if err != nil {
		return res, err
	}
	res.Changed = changed
	if changed {
		s.logger.Info("proxy configuration written", "path", s.writer.Path(), "groups", len(groups))
	} else {
		s.logger.Debug("proxy configuration unchanged", "path", s.writer.Path())
		if !force {
			return res, nil
		}
	}

	reloadCtx, cancel := util.WithOptionalTimeout(ctx, s.reloadTimeout)
	defer cancel()
	if err := s.reloader.Reload(reloadCtx); err != nil {
		s.logger.Warn("proxy reload failed; configuration is written but not active", "error", err)
		res.ReloadErr = err
		return res, nil
	}
	res.Reloaded = true
	return res, nil
}

// Close releases the reloader.
func (s *Syncer) Close() error {
	return s.reloader.Close()
}
