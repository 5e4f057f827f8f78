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
Package orchestrator deploys, stops, and cleans up the tiers of a feature
group.

Each tier is a separate project directory with its own git checkout and
compose project. Deploying a tier runs four steps in order:

	source    git fetch, checkout, fast-forward
	overlay   .env.feature-<id> from the project's env template
	manifest  docker-compose.feature-<id>.yml extending the base manifest
	restart   compose down (best effort), compose up -d --build

A failed step aborts that tier and is returned as a *TierError. Tiers that
already finished are left running.
*/
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/compose"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/manifest"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/overlay"
)

// =============================================================================
// Configuration
// =============================================================================

// ProjectConfig describes the checkout of one tier.
type ProjectConfig struct {
	// Path is the project directory.
	Path string

	// BaseFile is the shared compose manifest, relative to Path.
	BaseFile string

	// Template is the env template, relative to Path.
	Template string

	// Services maps roles to service names in BaseFile.
	Services map[feature.Role]string

	// DBHostKey is the database host variable. Default: "DB_HOST"
	DBHostKey string

	// HostKeys are cache and broker host variables suffixed with the id.
	HostKeys []string

	// PublicURLKey receives the group's public URL.
	PublicURLKey string

	// SharedVolumes are external volumes the base manifest mounts.
	SharedVolumes []string
}

// Config configures an Orchestrator.
type Config struct {
	Projects map[feature.Tier]ProjectConfig

	// Network is the external network all groups share.
	Network string

	// DBVolumePrefix names per-group database volumes.
	DBVolumePrefix string

	// DBDataPath is the database data directory inside its container.
	DBDataPath string

	// AlwaysProfile is applied to the local database service.
	AlwaysProfile string

	// PublicBaseURL is the proxy's external origin, e.g. https://features.example.com
	PublicBaseURL string
}

// SourceControl fetches and checks out project sources.
type SourceControl interface {
	Sync(ctx context.Context, dir, branch string) error
	RemoteBranches(ctx context.Context, dir string) ([]string, error)
}

// =============================================================================
// Naming
// =============================================================================

// EnvFileName is the overlay file written into each project directory.
func EnvFileName(id string) string {
	return ".env.feature-" + id
}

// ManifestFileName is the compose file written into each project directory.
func ManifestFileName(id string) string {
	return "docker-compose.feature-" + id + ".yml"
}

// ProjectName is the compose project name of one tier of a group.
func ProjectName(id string, tier feature.Tier) string {
	return feature.ContainerPrefix + id + "-" + string(tier)
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the per-tier pipelines.
type Orchestrator struct {
	cfg     Config
	source  SourceControl
	compose compose.ComposeExecutor
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, source SourceControl, exec compose.ComposeExecutor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, source: source, compose: exec, logger: logger}
}

// PublicURL returns the externally visible URL of a group, or "" when no
// public base URL is configured.
func (o *Orchestrator) PublicURL(g feature.Group) string {
	if o.cfg.PublicBaseURL == "" {
		return ""
	}
	path := g.URLPath
	if path == "" {
		path = feature.URLPath(g.ID)
	}
	return strings.TrimRight(o.cfg.PublicBaseURL, "/") + path
}

// DeployResult lists the tiers that were brought up.
type DeployResult struct {
	Deployed []feature.Tier
}

// Preflight checks every tier's prerequisites without touching anything.
//
// # Outputs
//
//   - error: *TierError wrapping ErrProjectPathMissing or ErrTemplateMissing
func (o *Orchestrator) Preflight(g feature.Group) error {
	for _, tier := range g.DeployedTiers() {
		pc, err := o.project(tier)
		if err != nil {
			return tierErr(tier, StepPreflight, err)
		}
		template := filepath.Join(pc.Path, pc.Template)
		if _, err := os.Stat(template); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return tierErr(tier, StepPreflight, fmt.Errorf("%w: %s", ErrTemplateMissing, template))
			}
			return tierErr(tier, StepPreflight, err)
		}
	}
	return nil
}

// Deploy brings up every tier of g, backend first.
//
// # Description
//
// All prerequisites are checked before any tier is touched. The first
// failing tier stops the run; DeployResult still lists the tiers that
// succeeded before it.
func (o *Orchestrator) Deploy(ctx context.Context, g feature.Group) (DeployResult, error) {
	var res DeployResult
	if err := o.Preflight(g); err != nil {
		return res, err
	}
	for _, tier := range g.DeployedTiers() {
		if err := o.deployTier(ctx, g, tier); err != nil {
			return res, err
		}
		res.Deployed = append(res.Deployed, tier)
	}
	return res, nil
}

func (o *Orchestrator) deployTier(ctx context.Context, g feature.Group, tier feature.Tier) error {
	pc, err := o.project(tier)
	if err != nil {
		return tierErr(tier, StepPreflight, err)
	}
	branch := g.Branch(tier)
	logger := o.logger.With("group", g.ID, "tier", tier)

	logger.Info("syncing source", "branch", branch, "dir", pc.Path)
	if err := o.source.Sync(ctx, pc.Path, branch); err != nil {
		return tierErr(tier, StepSource, err)
	}

	envFile := EnvFileName(g.ID)
	params := overlay.Params{
		GroupID:      g.ID,
		DBHostKey:    pc.DBHostKey,
		HostKeys:     pc.HostKeys,
		PublicURLKey: pc.PublicURLKey,
		PublicURL:    o.PublicURL(g),
	}
	if g.UseLocalDB && tier == feature.TierBackend {
		params.DBHost = g.Container(feature.RoleMariaDB)
	}
	if err := overlay.Build(filepath.Join(pc.Path, pc.Template), filepath.Join(pc.Path, envFile), params); err != nil {
		return tierErr(tier, StepOverlay, err)
	}

	err = manifest.Write(filepath.Join(pc.Path, ManifestFileName(g.ID)), manifest.Params{
		Group:          g,
		Tier:           tier,
		BaseFile:       pc.BaseFile,
		Services:       pc.Services,
		Network:        o.cfg.Network,
		EnvFile:        envFile,
		SharedVolumes:  pc.SharedVolumes,
		DBVolumePrefix: o.cfg.DBVolumePrefix,
		DBDataPath:     o.cfg.DBDataPath,
		AlwaysProfile:  o.cfg.AlwaysProfile,
	})
	if err != nil {
		return tierErr(tier, StepManifest, err)
	}

	project := o.composeProject(g, tier, pc)
	if _, err := o.compose.Down(ctx, project, compose.DownOptions{RemoveOrphans: true}); err != nil {
		if ctx.Err() != nil {
			return tierErr(tier, StepRestart, ctx.Err())
		}
		logger.Warn("compose down failed; continuing with up", "error", err)
	}
	if _, err := o.compose.Up(ctx, project, compose.UpOptions{Build: true}); err != nil {
		return tierErr(tier, StepRestart, err)
	}

	logger.Info("tier deployed", "project", project.Name)
	return nil
}

// StopOptions configures Stop.
type StopOptions struct {
	// RemoveVolumes also deletes the group's database volume.
	RemoveVolumes bool
}

// Stop takes down every tier of g that has a generated manifest.
//
// Tiers without a manifest were never deployed and are skipped. Every tier
// is attempted; the returned error joins the per-tier failures.
func (o *Orchestrator) Stop(ctx context.Context, g feature.Group, opts StopOptions) ([]feature.Tier, error) {
	var stopped []feature.Tier
	var errs []error
	for _, tier := range feature.Tiers() {
		pc, ok := o.cfg.Projects[tier]
		if !ok || pc.Path == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(pc.Path, ManifestFileName(g.ID))); err != nil {
			continue
		}
		project := o.composeProject(g, tier, pc)
		_, err := o.compose.Down(ctx, project, compose.DownOptions{
			RemoveOrphans: true,
			RemoveVolumes: opts.RemoveVolumes,
		})
		if err != nil {
			errs = append(errs, tierErr(tier, StepStop, err))
			continue
		}
		o.logger.Info("tier stopped", "group", g.ID, "tier", tier, "project", project.Name)
		stopped = append(stopped, tier)
	}
	return stopped, errors.Join(errs...)
}

// Cleanup deletes the generated overlay and manifest of every tier.
// Missing files are not an error.
func (o *Orchestrator) Cleanup(g feature.Group) error {
	var errs []error
	for _, tier := range feature.Tiers() {
		pc, ok := o.cfg.Projects[tier]
		if !ok || pc.Path == "" {
			continue
		}
		for _, name := range []string{EnvFileName(g.ID), ManifestFileName(g.ID)} {
			err := os.Remove(filepath.Join(pc.Path, name))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, tierErr(tier, StepCleanup, err))
			}
		}
	}
	return errors.Join(errs...)
}

// TierStatus is the live state of one tier.
type TierStatus struct {
	Tier   feature.Tier
	Branch string
	Status *compose.ComposeStatus
	Err    error
}

// Status queries the containers of every deployed tier concurrently.
// Per-tier failures are reported in TierStatus.Err.
func (o *Orchestrator) Status(ctx context.Context, g feature.Group) []TierStatus {
	tiers := g.DeployedTiers()
	out := make([]TierStatus, len(tiers))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		out[i] = TierStatus{Tier: tier, Branch: g.Branch(tier)}
		pc, err := o.project(tier)
		if err != nil {
			out[i].Err = err
			continue
		}
		project := o.composeProject(g, tier, pc)
		i := i
		eg.Go(func() error {
			st, err := o.compose.Status(egCtx, project)
			out[i].Status, out[i].Err = st, err
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// RemoteBranches lists the branches available for a tier.
func (o *Orchestrator) RemoteBranches(ctx context.Context, tier feature.Tier) ([]string, error) {
	pc, err := o.project(tier)
	if err != nil {
		return nil, err
	}
	return o.source.RemoteBranches(ctx, pc.Path)
}

func (o *Orchestrator) project(tier feature.Tier) (ProjectConfig, error) {
	pc, ok := o.cfg.Projects[tier]
	if !ok || pc.Path == "" {
		return pc, fmt.Errorf("%w: no %s project configured", ErrProjectPathMissing, tier)
	}
	info, err := os.Stat(pc.Path)
	if err != nil || !info.IsDir() {
		return pc, fmt.Errorf("%w: %s", ErrProjectPathMissing, pc.Path)
	}
	return pc, nil
}

// composeProject activates the always-on profile for a backend with a local
// database; compose ignores the profiled database service otherwise.
func (o *Orchestrator) composeProject(g feature.Group, tier feature.Tier, pc ProjectConfig) compose.Project {
	p := compose.Project{
		Name:  ProjectName(g.ID, tier),
		Dir:   pc.Path,
		Files: []string{ManifestFileName(g.ID)},
	}
	if g.UseLocalDB && tier == feature.TierBackend && o.cfg.AlwaysProfile != "" {
		p.Profiles = []string{o.cfg.AlwaysProfile}
	}
	return p
}
