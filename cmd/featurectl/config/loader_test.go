// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "featurectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "featurectl.yaml")

	cfg, created, err := Load(path)

	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "feature-net", cfg.Network.Name)
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.Compose)

	_, created, err = Load(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDefaultConfig_RoundTripsThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, string(data), "compose: 30m0s")

	var back FeatureConfig
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, DefaultConfig(), back)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: badger
  dir: /var/lib/featurectl
proxy:
  config_path: /etc/nginx/conf.d/features.conf
  container: edge
  reload: signal
  listen_port: 8080
  backend_port: 80
  frontend_port: 80
  proxy_read_timeout: 600s
timeouts:
  git: 2m
`)

	cfg, _, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/featurectl", cfg.LockDir())
	assert.Equal(t, 8080, cfg.Proxy.ListenPort)
	assert.Equal(t, "600s", cfg.Proxy.ProxyReadTimeout)
	assert.Equal(t, "64m", cfg.Proxy.ClientMaxBodySize)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Git)
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.Compose)
	assert.Equal(t, "app", cfg.Projects.Backend.Services["backend"])
}

func TestLoad_ServicesReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
projects:
  backend:
    base_file: compose.yaml
    template: .env.example
    services:
      backend: api
      redis: cache
`)

	cfg, _, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, map[feature.Role]string{
		feature.RoleBackend: "api",
		feature.RoleRedis:   "cache",
	}, cfg.Projects.Backend.RoleServices())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n  format: text\n")
	t.Setenv("FEATURECTL_LOG_LEVEL", "debug")
	t.Setenv("FEATURECTL_BACKEND_PATH", "/srv/api")
	t.Setenv("FEATURECTL_METRICS_TEXTFILE", "")

	cfg, _, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/srv/api", cfg.Projects.Backend.Path)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, "projects:\n  frontend:\n    path: ~/web\n    base_file: docker-compose.yml\n    template: .env\n")

	cfg, _, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "web"), cfg.Projects.Frontend.Path)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad backend", "store:\n  backend: sqlite\n  dir: /tmp/x\n", "store.backend"},
		{"bad reload", "proxy:\n  config_path: /tmp/f.conf\n  reload: restart\n  listen_port: 80\n  backend_port: 80\n  frontend_port: 80\n", "proxy.reload"},
		{"bad port", "proxy:\n  config_path: /tmp/f.conf\n  container: n\n  reload: signal\n  listen_port: 70000\n  backend_port: 80\n  frontend_port: 80\n", "proxy.listen_port"},
		{"unknown role", "projects:\n  backend:\n    base_file: a.yml\n    template: .env\n    services:\n      cron: cron\n", "services"},
		{"bad host key", "projects:\n  backend:\n    base_file: a.yml\n    template: .env\n    host_keys: [\"1BAD\"]\n", "host_keys"},
		{"bad level", "logging:\n  level: loud\n  format: text\n", "logging.level"},
		{"negative timeout", "timeouts:\n  git: -1s\n", "timeouts.git"},
		{"empty compose", "compose:\n  command: []\n", "compose.command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, _, err := Load(writeConfig(t, "store: [unterminated"))
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/op")

	got, err := ExpandHome("~/groups")
	require.NoError(t, err)
	assert.Equal(t, "/home/op/groups", got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ExpandHome("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
