// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package lifecycle implements the feature group operations shared by the
command line and the interactive menu.

	create   validate, allocate a number, persist
	deploy   per-tier pipeline, then regenerate the proxy
	stop     take containers down, keep the record
	remove   stop, delete generated files, delete the record, regenerate
	         the proxy

Records are never updated after creation.
*/
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/metrics"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/orchestrator"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/proxy"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/store"
)

// =============================================================================
// Collaborators
// =============================================================================

// Allocator creates records with a fresh group number.
type Allocator interface {
	Create(ctx context.Context, spec feature.CreateSpec) (feature.Group, error)
}

// Deployer runs the per-tier pipelines.
type Deployer interface {
	Deploy(ctx context.Context, g feature.Group) (orchestrator.DeployResult, error)
	Stop(ctx context.Context, g feature.Group, opts orchestrator.StopOptions) ([]feature.Tier, error)
	Cleanup(g feature.Group) error
	Status(ctx context.Context, g feature.Group) []orchestrator.TierStatus
	RemoteBranches(ctx context.Context, tier feature.Tier) ([]string, error)
	PublicURL(g feature.Group) string
}

// ProxySyncer regenerates the shared proxy configuration.
type ProxySyncer interface {
	Render(groups []feature.Group) string
	Sync(ctx context.Context, groups []feature.Group) (proxy.SyncResult, error)
	Resync(ctx context.Context, groups []feature.Group) (proxy.SyncResult, error)
}

// =============================================================================
// Results
// =============================================================================

// Detail is a group with its live state.
type Detail struct {
	Group     feature.Group
	PublicURL string
	Tiers     []orchestrator.TierStatus
}

// DeployReport describes a deploy.
type DeployReport struct {
	Group    feature.Group
	Deployed []feature.Tier
	Proxy    *proxy.SyncResult
}

// RemoveReport describes a remove.
type RemoveReport struct {
	Group   feature.Group
	Stopped []feature.Tier
	Proxy   *proxy.SyncResult
}

// =============================================================================
// Service
// =============================================================================

// Service coordinates the record store, the orchestrator, and the proxy.
type Service struct {
	groups   store.Repository
	alloc    Allocator
	deployer Deployer
	proxy    ProxySyncer
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewService creates a Service. A nil recorder disables metrics.
func NewService(groups store.Repository, alloc Allocator, deployer Deployer, px ProxySyncer, rec metrics.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		groups:   groups,
		alloc:    alloc,
		deployer: deployer,
		proxy:    px,
		metrics:  rec,
		logger:   logger,
	}
}

// List returns every group ordered by number.
func (s *Service) List(ctx context.Context) ([]feature.Group, error) {
	return s.groups.List(ctx)
}

// Get returns one group.
//
// # Outputs
//
//   - error: wraps feature.ErrGroupNotFound when id has no record
func (s *Service) Get(ctx context.Context, id string) (feature.Group, error) {
	if err := feature.ValidateID(id); err != nil {
		return feature.Group{}, err
	}
	g, ok, err := s.groups.Get(ctx, id)
	if err != nil {
		return feature.Group{}, err
	}
	if !ok {
		return feature.Group{}, fmt.Errorf("%w: %s", feature.ErrGroupNotFound, id)
	}
	return g, nil
}

// Show returns a group with the container state of its tiers.
func (s *Service) Show(ctx context.Context, id string) (Detail, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Group:     g,
		PublicURL: s.deployer.PublicURL(g),
		Tiers:     s.deployer.Status(ctx, g),
	}, nil
}

// RemoteBranches lists the branches a tier can be deployed from.
func (s *Service) RemoteBranches(ctx context.Context, tier feature.Tier) ([]string, error) {
	return s.deployer.RemoteBranches(ctx, tier)
}

// Create validates spec and persists a new group. Nothing is deployed.
func (s *Service) Create(ctx context.Context, spec feature.CreateSpec) (g feature.Group, err error) {
	defer s.observe(ctx, "create", time.Now(), &err)
	return s.alloc.Create(ctx, spec)
}

// Deploy brings up the group's tiers and regenerates the proxy.
//
// # Description
//
// The proxy is regenerated when at least one tier came up, even if a later
// tier failed. A proxy reload failure is only logged. The record is never
// modified.
func (s *Service) Deploy(ctx context.Context, id string) (rep DeployReport, err error) {
	defer s.observe(ctx, "deploy", time.Now(), &err)

	g, err := s.Get(ctx, id)
	if err != nil {
		return rep, err
	}
	rep.Group = g

	res, deployErr := s.deployer.Deploy(ctx, g)
	rep.Deployed = res.Deployed
	if len(res.Deployed) == 0 {
		return rep, deployErr
	}

	synced, syncErr := s.syncProxy(ctx, false)
	if syncErr == nil {
		rep.Proxy = &synced
	}
	if deployErr != nil {
		if syncErr != nil {
			s.logger.Warn("proxy regeneration failed", "error", syncErr)
		}
		return rep, deployErr
	}
	if syncErr != nil {
		return rep, fmt.Errorf("regenerate proxy: %w", syncErr)
	}

	s.logger.Info("feature group deployed", "group", g.ID, "tiers", res.Deployed)
	return rep, nil
}

// Stop takes the group's containers down and keeps the record.
func (s *Service) Stop(ctx context.Context, id string) (stopped []feature.Tier, err error) {
	defer s.observe(ctx, "stop", time.Now(), &err)

	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stopped, err = s.deployer.Stop(ctx, g, orchestrator.StopOptions{})
	if err != nil {
		return stopped, err
	}
	s.logger.Info("feature group stopped", "group", g.ID, "tiers", stopped)
	return stopped, nil
}

// Remove deletes a group and everything generated for it.
//
// # Description
//
// Containers and the group's database volume go first; if that fails the
// record is kept so remove can be retried. Generated files are deleted
// next, then the record, then the proxy is regenerated without the group.
func (s *Service) Remove(ctx context.Context, id string) (rep RemoveReport, err error) {
	defer s.observe(ctx, "remove", time.Now(), &err)

	g, err := s.Get(ctx, id)
	if err != nil {
		return rep, err
	}
	rep.Group = g

	rep.Stopped, err = s.deployer.Stop(ctx, g, orchestrator.StopOptions{RemoveVolumes: true})
	if err != nil {
		return rep, fmt.Errorf("stop %s: %w", g.ID, err)
	}
	if err := s.deployer.Cleanup(g); err != nil {
		return rep, fmt.Errorf("delete generated files of %s: %w", g.ID, err)
	}
	if err := s.groups.Delete(ctx, g.ID); err != nil {
		return rep, fmt.Errorf("delete record %s: %w", g.ID, err)
	}
	s.logger.Info("feature group removed", "group", g.ID, "number", g.Number)

	synced, err := s.syncProxy(ctx, false)
	if err != nil {
		return rep, fmt.Errorf("group removed but proxy not regenerated: %w", err)
	}
	rep.Proxy = &synced
	return rep, nil
}

// SyncProxy regenerates the proxy from all records. With force the proxy is
// reloaded even when the file did not change.
func (s *Service) SyncProxy(ctx context.Context, force bool) (res proxy.SyncResult, err error) {
	defer s.observe(ctx, "proxy_sync", time.Now(), &err)
	return s.syncProxy(ctx, force)
}

// RenderProxy returns the proxy configuration for the current records
// without writing it.
func (s *Service) RenderProxy(ctx context.Context) (string, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return "", err
	}
	return s.proxy.Render(groups), nil
}

func (s *Service) syncProxy(ctx context.Context, force bool) (proxy.SyncResult, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return proxy.SyncResult{}, fmt.Errorf("list groups: %w", err)
	}
	if force {
		return s.proxy.Resync(ctx, groups)
	}
	return s.proxy.Sync(ctx, groups)
}

// observe records the outcome of an operation. Metrics are best effort.
func (s *Service) observe(ctx context.Context, operation string, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	s.metrics.Observe(operation, started, err)
	if groups, listErr := s.groups.List(context.WithoutCancel(ctx)); listErr == nil {
		s.metrics.SetGroups(len(groups))
	}
	if flushErr := s.metrics.Flush(); flushErr != nil {
		s.logger.Warn("metrics not written", "error", flushErr)
	}
}

// IsUserError reports whether err was caused by invalid input rather than
// by the environment.
func IsUserError(err error) bool {
	return errors.Is(err, feature.ErrInvalidGroupID) ||
		errors.Is(err, feature.ErrInvalidBranch) ||
		errors.Is(err, feature.ErrGroupExists) ||
		errors.Is(err, feature.ErrGroupNotFound)
}
