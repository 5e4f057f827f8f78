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
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/lifecycle"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/proxy"
	"github.com/AleutianAI/featurectl/pkg/ux"
)

// GroupService is the subset of lifecycle.Service the commands use.
type GroupService interface {
	List(ctx context.Context) ([]feature.Group, error)
	Show(ctx context.Context, id string) (lifecycle.Detail, error)
	Create(ctx context.Context, spec feature.CreateSpec) (feature.Group, error)
	Deploy(ctx context.Context, id string) (lifecycle.DeployReport, error)
	Stop(ctx context.Context, id string) ([]feature.Tier, error)
	Remove(ctx context.Context, id string) (lifecycle.RemoveReport, error)
	RemoteBranches(ctx context.Context, tier feature.Tier) ([]string, error)
	SyncProxy(ctx context.Context, force bool) (proxy.SyncResult, error)
	RenderProxy(ctx context.Context) (string, error)
}

// Handlers implement every operation once; the cobra commands and the
// menu both call them.
type Handlers struct {
	svc      GroupService
	prompter UserPrompter
	logger   *slog.Logger
}

// NewHandlers creates Handlers.
func NewHandlers(svc GroupService, prompter UserPrompter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, prompter: prompter, logger: logger}
}

// CreateOptions are the flag values of create. Nil pointers were not
// given and are prompted for.
type CreateOptions struct {
	ID             string
	BackendBranch  *string
	FrontendBranch *string
	UseLocalDB     *bool
}

// =============================================================================
// Operations
// =============================================================================

// List prints every group.
//
// With an id only that group is listed; an unknown id is ErrGroupNotFound.
func (h *Handlers) List(ctx context.Context, id ...string) error {
	groups, err := h.svc.List(ctx)
	if err != nil {
		return err
	}
	if len(id) > 0 && id[0] != "" {
		groups = filterGroups(groups, id[0])
		if len(groups) == 0 {
			return fmt.Errorf("%w: %s", feature.ErrGroupNotFound, id[0])
		}
	}
	if len(groups) == 0 {
		ux.Muted("No feature groups. Create one with: featurectl create <group-id>")
		return nil
	}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.ID,
			strconv.Itoa(g.Number),
			g.BackendBranch,
			g.FrontendBranch,
			yesNo(g.UseLocalDB),
			urlPathOf(g),
			g.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	ux.Table([]string{"ID", "NUMBER", "BACKEND", "FRONTEND", "LOCAL DB", "PATH", "CREATED"}, rows)
	return nil
}

func filterGroups(groups []feature.Group, id string) []feature.Group {
	for _, g := range groups {
		if g.ID == id {
			return []feature.Group{g}
		}
	}
	return nil
}

// Show prints one group with the live state of its containers.
func (h *Handlers) Show(ctx context.Context, id string) error {
	id, err := h.resolveGroup(ctx, id, "Show which group?")
	if err != nil {
		return err
	}
	d, err := h.svc.Show(ctx, id)
	if err != nil {
		return err
	}
	g := d.Group

	ux.Title("Feature group " + g.ID)
	pairs := []ux.KeyValue{
		{Key: "id", Value: g.ID},
		{Key: "number", Value: strconv.Itoa(g.Number)},
		{Key: "backend_branch", Value: g.BackendBranch},
		{Key: "frontend_branch", Value: g.FrontendBranch},
		{Key: "use_local_db", Value: strconv.FormatBool(g.UseLocalDB)},
		{Key: "url_path", Value: urlPathOf(g)},
		{Key: "created_at", Value: g.CreatedAt.Format("2006-01-02T15:04:05Z07:00")},
	}
	if d.PublicURL != "" {
		pairs = append(pairs, ux.KeyValue{Key: "url", Value: d.PublicURL})
	}
	for _, tier := range feature.Tiers() {
		if !g.HasTier(tier) {
			continue
		}
		for _, role := range g.RolesFor(tier) {
			pairs = append(pairs, ux.KeyValue{
				Key:   string(role),
				Value: g.Container(role) + " " + g.IP(role),
			})
		}
	}
	ux.KeyValues(pairs)

	for _, ts := range d.Tiers {
		ux.Title(fmt.Sprintf("%s (%s)", ts.Tier, ts.Branch))
		if ts.Err != nil {
			ux.Warning(fmt.Sprintf("status unavailable: %v", ts.Err))
			continue
		}
		if ts.Status == nil || len(ts.Status.Services) == 0 {
			ux.Muted("not running")
			continue
		}
		rows := make([][]string, 0, len(ts.Status.Services))
		for _, svc := range ts.Status.Services {
			rows = append(rows, []string{
				string(ux.StateIcon(svc.State, svc.Health)),
				svc.Service,
				svc.ContainerName,
				svc.State,
				svc.Status,
			})
		}
		ux.Table([]string{"", "SERVICE", "CONTAINER", "STATE", "STATUS"}, rows)
	}
	return nil
}

// Create allocates a new group. Missing choices are prompted for.
func (h *Handlers) Create(ctx context.Context, opts CreateOptions) error {
	spec, err := h.collectCreateSpec(ctx, opts)
	if err != nil {
		return err
	}
	g, err := h.svc.Create(ctx, spec)
	if err != nil {
		return err
	}

	ux.Success(fmt.Sprintf("Created feature group %s (number %d)", g.ID, g.Number))
	ux.KeyValues([]ux.KeyValue{
		{Key: "id", Value: g.ID},
		{Key: "number", Value: strconv.Itoa(g.Number)},
		{Key: "url_path", Value: urlPathOf(g)},
	})
	ux.Muted("Deploy it with: featurectl deploy " + g.ID)
	return nil
}

// Deploy brings a group up.
func (h *Handlers) Deploy(ctx context.Context, id string) error {
	id, err := h.resolveGroup(ctx, id, "Deploy which group?")
	if err != nil {
		return err
	}
	rep, err := h.svc.Deploy(ctx, id)
	for _, tier := range rep.Deployed {
		ux.Success(fmt.Sprintf("%s tier of %s is up", tier, id))
	}
	reportProxy(rep.Proxy)
	if err != nil {
		return err
	}
	if len(rep.Deployed) == 0 {
		ux.Warning(fmt.Sprintf("%s has no tiers to deploy", id))
	}
	return nil
}

// Stop takes a group's containers down.
func (h *Handlers) Stop(ctx context.Context, id string) error {
	id, err := h.resolveGroup(ctx, id, "Stop which group?")
	if err != nil {
		return err
	}
	stopped, err := h.svc.Stop(ctx, id)
	for _, tier := range stopped {
		ux.Success(fmt.Sprintf("%s tier of %s stopped", tier, id))
	}
	if err != nil {
		return err
	}
	if len(stopped) == 0 {
		ux.Muted(id + " was not deployed")
	}
	return nil
}

// Remove deletes a group after confirmation.
func (h *Handlers) Remove(ctx context.Context, id string, assumeYes bool) error {
	id, err := h.resolveGroup(ctx, id, "Remove which group?")
	if err != nil {
		return err
	}
	if !assumeYes {
		ok, err := h.prompter.Confirm(ctx, fmt.Sprintf("Remove %s with its containers, database volume, and generated files?", id))
		if err != nil {
			return err
		}
		if !ok {
			ux.Info("Nothing removed")
			return nil
		}
	}

	rep, err := h.svc.Remove(ctx, id)
	for _, tier := range rep.Stopped {
		ux.Success(fmt.Sprintf("%s tier of %s stopped", tier, id))
	}
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Removed feature group %s", id))
	reportProxy(rep.Proxy)
	return nil
}

// ProxyRender prints the configuration that sync would write.
func (h *Handlers) ProxyRender(ctx context.Context) error {
	content, err := h.svc.RenderProxy(ctx)
	if err != nil {
		return err
	}
	ux.Plain(content)
	return nil
}

// ProxySync regenerates the proxy from the current records.
func (h *Handlers) ProxySync(ctx context.Context, force bool) error {
	res, err := h.svc.SyncProxy(ctx, force)
	if err != nil {
		return err
	}
	reportProxy(&res)
	return nil
}

// =============================================================================
// Input
// =============================================================================

// resolveGroup returns id, or asks the operator to pick an existing group.
func (h *Handlers) resolveGroup(ctx context.Context, id, title string) (string, error) {
	if id != "" {
		return id, nil
	}
	if !h.prompter.Interactive() {
		return "", usageErrorf("a group id is required")
	}
	groups, err := h.svc.List(ctx)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "", fmt.Errorf("%w: there are no feature groups yet", feature.ErrGroupNotFound)
	}
	options := make([]string, len(groups))
	for i, g := range groups {
		options[i] = g.ID
	}
	return h.prompter.Select(ctx, title, options)
}

func (h *Handlers) collectCreateSpec(ctx context.Context, opts CreateOptions) (feature.CreateSpec, error) {
	spec := feature.CreateSpec{ID: strings.TrimSpace(opts.ID)}

	if !h.prompter.Interactive() {
		if spec.ID == "" {
			return spec, usageErrorf("a group id is required")
		}
		if opts.BackendBranch == nil && opts.FrontendBranch == nil {
			return spec, usageErrorf("pass --backend-branch and/or --frontend-branch")
		}
		spec.BackendBranch = deref(opts.BackendBranch, feature.NoBranch)
		spec.FrontendBranch = deref(opts.FrontendBranch, feature.NoBranch)
		if opts.UseLocalDB != nil {
			spec.UseLocalDB = *opts.UseLocalDB
		}
		return spec, nil
	}

	var err error
	if spec.ID == "" {
		spec.ID, err = h.prompter.Input(ctx, "Group id", "feat-42", feature.ValidateID)
		if err != nil {
			return spec, err
		}
	}
	if opts.BackendBranch != nil {
		spec.BackendBranch = *opts.BackendBranch
	} else if spec.BackendBranch, err = h.pickBranch(ctx, feature.TierBackend); err != nil {
		return spec, err
	}
	if opts.FrontendBranch != nil {
		spec.FrontendBranch = *opts.FrontendBranch
	} else if spec.FrontendBranch, err = h.pickBranch(ctx, feature.TierFrontend); err != nil {
		return spec, err
	}
	if opts.UseLocalDB != nil {
		spec.UseLocalDB = *opts.UseLocalDB
	} else if spec.BackendBranch != feature.NoBranch {
		if spec.UseLocalDB, err = h.prompter.Confirm(ctx, "Use a local database for this group?"); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

// pickBranch offers the remote branches of a tier plus none. When the
// branches cannot be listed the operator types one.
func (h *Handlers) pickBranch(ctx context.Context, tier feature.Tier) (string, error) {
	title := fmt.Sprintf("%s branch", capitalize(string(tier)))
	branches, err := h.svc.RemoteBranches(ctx, tier)
	if err != nil || len(branches) == 0 {
		if err != nil {
			h.logger.Warn("could not list branches", "tier", tier, "error", err)
		}
		return h.prompter.Input(ctx, title, feature.NoBranch, validateBranchInput)
	}
	return h.prompter.Select(ctx, title, append([]string{feature.NoBranch}, branches...))
}

func validateBranchInput(b string) error {
	if b == "" {
		return errors.New("enter a branch name or none")
	}
	return feature.ValidateBranch(b)
}

// =============================================================================
// Helpers
// =============================================================================

func reportProxy(res *proxy.SyncResult) {
	if res == nil {
		return
	}
	switch {
	case res.ReloadErr != nil:
		ux.Warning(fmt.Sprintf("Proxy configuration written but not reloaded: %v", res.ReloadErr))
	case res.Reloaded:
		ux.Success(fmt.Sprintf("Proxy reloaded (%d groups)", res.Groups))
	case !res.Changed:
		ux.Muted("Proxy configuration unchanged")
	}
}

func urlPathOf(g feature.Group) string {
	if g.URLPath != "" {
		return g.URLPath
	}
	return feature.URLPath(g.ID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
