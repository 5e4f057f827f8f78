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
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/lifecycle"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/proxy"
	"github.com/AleutianAI/featurectl/pkg/ux"
)

// =============================================================================
// Test Doubles
// =============================================================================

// mockService records calls and returns canned results.
type mockService struct {
	groups   []feature.Group
	branches map[feature.Tier][]string

	CreateFunc func(spec feature.CreateSpec) (feature.Group, error)
	DeployFunc func(id string) (lifecycle.DeployReport, error)
	StopFunc   func(id string) ([]feature.Tier, error)
	RemoveFunc func(id string) (lifecycle.RemoveReport, error)
	SyncFunc   func(force bool) (proxy.SyncResult, error)
	ShowFunc   func(id string) (lifecycle.Detail, error)

	calls []string
}

func (m *mockService) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockService) List(ctx context.Context) ([]feature.Group, error) {
	m.record("list")
	return m.groups, nil
}

func (m *mockService) Show(ctx context.Context, id string) (lifecycle.Detail, error) {
	m.record("show %s", id)
	if m.ShowFunc != nil {
		return m.ShowFunc(id)
	}
	for _, g := range m.groups {
		if g.ID == id {
			return lifecycle.Detail{Group: g}, nil
		}
	}
	return lifecycle.Detail{}, fmt.Errorf("%w: %s", feature.ErrGroupNotFound, id)
}

func (m *mockService) Create(ctx context.Context, spec feature.CreateSpec) (feature.Group, error) {
	m.record("create %s backend=%s frontend=%s localdb=%t", spec.ID, spec.BackendBranch, spec.FrontendBranch, spec.UseLocalDB)
	if m.CreateFunc != nil {
		return m.CreateFunc(spec)
	}
	return feature.NewGroup(spec, 20, time.Unix(0, 0)), nil
}

func (m *mockService) Deploy(ctx context.Context, id string) (lifecycle.DeployReport, error) {
	m.record("deploy %s", id)
	if m.DeployFunc != nil {
		return m.DeployFunc(id)
	}
	return lifecycle.DeployReport{Deployed: []feature.Tier{feature.TierBackend}}, nil
}

func (m *mockService) Stop(ctx context.Context, id string) ([]feature.Tier, error) {
	m.record("stop %s", id)
	if m.StopFunc != nil {
		return m.StopFunc(id)
	}
	return []feature.Tier{feature.TierBackend}, nil
}

func (m *mockService) Remove(ctx context.Context, id string) (lifecycle.RemoveReport, error) {
	m.record("remove %s", id)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(id)
	}
	return lifecycle.RemoveReport{}, nil
}

func (m *mockService) RemoteBranches(ctx context.Context, tier feature.Tier) ([]string, error) {
	m.record("branches %s", tier)
	return m.branches[tier], nil
}

func (m *mockService) SyncProxy(ctx context.Context, force bool) (proxy.SyncResult, error) {
	m.record("sync force=%t", force)
	if m.SyncFunc != nil {
		return m.SyncFunc(force)
	}
	return proxy.SyncResult{Groups: len(m.groups), Changed: true, Reloaded: true}, nil
}

func (m *mockService) RenderProxy(ctx context.Context) (string, error) {
	m.record("render")
	return "server {}\n", nil
}

// scriptedPrompter answers from queues and fails on anything unexpected.
type scriptedPrompter struct {
	interactive bool
	confirms    []bool
	inputs      []string
	selects     []string

	asked []string
}

func (p *scriptedPrompter) Interactive() bool { return p.interactive }

func (p *scriptedPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.asked = append(p.asked, "confirm: "+question)
	if !p.interactive {
		return NonInteractivePrompter{}.Confirm(ctx, question)
	}
	if len(p.confirms) == 0 {
		return false, ErrAborted
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

func (p *scriptedPrompter) Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error) {
	p.asked = append(p.asked, "input: "+title)
	if len(p.inputs) == 0 {
		return "", ErrAborted
	}
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	if validate != nil {
		if err := validate(v); err != nil {
			return "", err
		}
	}
	return v, nil
}

func (p *scriptedPrompter) Select(ctx context.Context, title string, options []string) (string, error) {
	p.asked = append(p.asked, fmt.Sprintf("select: %s %v", title, options))
	if len(p.selects) == 0 {
		return "", ErrAborted
	}
	v := p.selects[0]
	p.selects = p.selects[1:]
	return v, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureUX sends ux output to buffers at the machine level for the test.
func captureUX(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	orig := ux.GetPersonality()
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	ux.SetOutput(&out, &errOut)
	t.Cleanup(func() {
		ux.SetPersonalityLevel(orig)
		ux.SetOutput(os.Stdout, os.Stderr)
	})
	return &out, &errOut
}

func sampleGroups() []feature.Group {
	return []feature.Group{
		feature.NewGroup(feature.CreateSpec{ID: "alpha", BackendBranch: "dev", FrontendBranch: "main"}, 20, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		feature.NewGroup(feature.CreateSpec{ID: "feat-42", BackendBranch: "dev", UseLocalDB: true}, 42, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
}
