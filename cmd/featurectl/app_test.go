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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/featurectl/cmd/featurectl/config"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/proxy"
)

func testConfig(t *testing.T, backend string) *config.FeatureConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store.Backend = backend
	cfg.Store.Dir = filepath.Join(dir, "groups")
	cfg.Proxy.ConfigPath = filepath.Join(dir, "nginx", "features.conf")
	cfg.Proxy.Reload = "none"
	cfg.Projects.Backend.Path = filepath.Join(dir, "api")
	cfg.Projects.Frontend.Path = filepath.Join(dir, "web")
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics", "featurectl.prom")
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestNewApp_FileBackendEndToEnd(t *testing.T) {
	cfg := testConfig(t, "file")
	app, err := NewApp(cfg, quietLogger(), AppOptions{})
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	first, err := app.Service.Create(ctx, feature.CreateSpec{ID: "feat-a", BackendBranch: "dev"})
	require.NoError(t, err)
	second, err := app.Service.Create(ctx, feature.CreateSpec{ID: "feat-b", FrontendBranch: "main"})
	require.NoError(t, err)
	assert.Equal(t, feature.MinGroupNumber, first.Number)
	assert.Equal(t, first.Number+1, second.Number)

	_, err = os.Stat(filepath.Join(cfg.Store.Dir, "feat-a.yaml"))
	assert.NoError(t, err, "record written to the store directory")
	_, err = os.Stat(filepath.Join(cfg.LockDir(), "featurectl.lock"))
	assert.NoError(t, err, "allocation lock taken in the lock directory")

	res, err := app.Service.SyncProxy(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Groups)

	conf, err := os.ReadFile(cfg.Proxy.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(conf), proxy.ManagedBanner)
	assert.Contains(t, string(conf), "location /feat-a/ {")
	assert.Contains(t, string(conf), "return 302 /feat-a/;")

	rendered, err := app.Service.RenderProxy(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(conf), rendered)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "featurectl_feature_groups 2")
}

func TestNewApp_CreateDeployBackendOnly(t *testing.T) {
	cfg := testConfig(t, "file")
	require.NoError(t, os.MkdirAll(cfg.Projects.Backend.Path, 0o755))
	template := "DB_HOST=\"db.internal\"\nREDIS_HOST=\"redis\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Projects.Backend.Path, cfg.Projects.Backend.Template), []byte(template), 0o644))

	proc := &process.MockManager{}
	app, err := NewApp(cfg, quietLogger(), AppOptions{Process: proc})
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	g, err := app.Service.Create(ctx, feature.CreateSpec{
		ID:             "feat-42",
		BackendBranch:  "dev",
		FrontendBranch: feature.NoBranch,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, g.Number)
	assert.Equal(t, "172.20.4.100", g.BackendIP)

	rep, err := app.Service.Deploy(ctx, "feat-42")
	require.NoError(t, err)
	assert.Equal(t, []feature.Tier{feature.TierBackend}, rep.Deployed)
	require.NotNil(t, rep.Proxy)

	lines := proc.CommandLines()
	assert.Contains(t, lines, "git checkout dev")
	assert.Contains(t, lines, "docker compose -p feature-feat-42-backend -f docker-compose.feature-feat-42.yml up -d --build")
	for _, c := range proc.GetCalls() {
		assert.Equal(t, cfg.Projects.Backend.Path, c.Dir, "frontend tier is skipped")
	}

	env, err := os.ReadFile(filepath.Join(cfg.Projects.Backend.Path, ".env.feature-feat-42"))
	require.NoError(t, err)
	assert.Contains(t, string(env), `DB_HOST="db.internal"`)

	conf, err := os.ReadFile(cfg.Proxy.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "location /feat-42/ {\n        return 404;")
	assert.Contains(t, string(conf), "proxy_pass $fg_feat_42_backend;")
	assert.Contains(t, string(conf), "http://feature-feat-42-backend:80;")
	assert.NotContains(t, string(conf), "feat_42_frontend")
}

func TestNewApp_BadgerBackend(t *testing.T) {
	cfg := testConfig(t, "badger")
	app, err := NewApp(cfg, quietLogger(), AppOptions{})
	require.NoError(t, err)

	g, err := app.Service.Create(context.Background(), feature.CreateSpec{ID: "kv", BackendBranch: "dev"})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	app, err = NewApp(cfg, quietLogger(), AppOptions{})
	require.NoError(t, err)
	defer app.Close()

	got, err := app.Service.Get(context.Background(), "kv")
	require.NoError(t, err)
	assert.Equal(t, g.Number, got.Number)

	err = app.WatchRecords(context.Background(), func(context.Context) {})
	assert.Equal(t, ExitUsage, exitCode(err))
}

func TestNewApp_CommandReloader(t *testing.T) {
	cfg := testConfig(t, "file")
	cfg.Proxy.Reload = "command"
	cfg.Proxy.ReloadCommand = []string{"true"}

	app, err := NewApp(cfg, quietLogger(), AppOptions{})
	require.NoError(t, err)
	defer app.Close()

	res, err := app.Service.SyncProxy(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.Reloaded)
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := testConfig(t, "file")

	oc := orchestratorConfig(cfg)

	require.Contains(t, oc.Projects, feature.TierBackend)
	assert.Equal(t, "app", oc.Projects[feature.TierBackend].Services[feature.RoleBackend])
	assert.Equal(t, "frontend", oc.Projects[feature.TierFrontend].Services[feature.RoleFrontend])
	assert.Equal(t, "APP_URL", oc.Projects[feature.TierFrontend].PublicURLKey)
	assert.Equal(t, "feature-net", oc.Network)
	assert.Equal(t, "http://localhost", oc.PublicBaseURL)
}

func TestRenderOptions(t *testing.T) {
	cfg := testConfig(t, "file")
	cfg.Proxy.ListenPort = 8080
	cfg.Proxy.ProxyReadTimeout = "900s"

	opts := renderOptions(cfg.Proxy)

	assert.Equal(t, 8080, opts.ListenPort)
	assert.Equal(t, "64m", opts.ClientMaxBodySize)
	assert.Equal(t, "900s", opts.ProxyReadTimeout)
	assert.Contains(t, proxy.Render(nil, opts), "proxy_read_timeout 900s;")
}

func TestOpenSession_WritesDefaultConfig(t *testing.T) {
	captureUX(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FEATURECTL_STORE_DIR", filepath.Join(home, "groups"))
	path := filepath.Join(home, "featurectl.yaml")

	c := &cli{configPath: path, stdout: &discard{}, stderr: &discard{}}
	s, err := openSession(context.Background(), c, "list", false)
	require.NoError(t, err)
	defer s.close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.False(t, s.handlers.prompter.Interactive())
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
