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
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// FeatureConfig is the content of featurectl.yaml.
type FeatureConfig struct {
	// Store: where group records live
	Store StoreConfig `yaml:"store"`

	// Network: the shared container network and database volumes
	Network NetworkConfig `yaml:"network"`

	// Projects: the backend and frontend checkouts
	Projects ProjectsConfig `yaml:"projects"`

	// Proxy: the shared nginx configuration and how to reload it
	Proxy ProxyConfig `yaml:"proxy"`

	Compose  ComposeConfig  `yaml:"compose"`
	Git      GitConfig      `yaml:"git"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type StoreConfig struct {
	// Backend is file (one YAML file per group) or badger.
	Backend string `yaml:"backend" validate:"oneof=file badger"`
	Dir     string `yaml:"dir" validate:"required"`

	// LockDir holds the allocation lock. Default: Dir
	LockDir string `yaml:"lock_dir,omitempty"`
}

type NetworkConfig struct {
	Name           string `yaml:"name" validate:"required"`
	DBVolumePrefix string `yaml:"db_volume_prefix" validate:"required"`
	DBDataPath     string `yaml:"db_data_path"`

	// AlwaysProfile is the compose profile of the local database service.
	AlwaysProfile string `yaml:"always_profile"`
}

type ProjectsConfig struct {
	Backend  ProjectConfig `yaml:"backend"`
	Frontend ProjectConfig `yaml:"frontend"`
}

type ProjectConfig struct {
	Path     string `yaml:"path"`
	BaseFile string `yaml:"base_file" validate:"required"`
	Template string `yaml:"template" validate:"required"`

	// Services maps roles (backend, worker, scheduler, redis, rabbitmq,
	// mariadb, frontend) to service names in BaseFile.
	Services map[string]string `yaml:"services" validate:"required,min=1,dive,keys,role,endkeys,required"`

	DBHostKey     string   `yaml:"db_host_key,omitempty"`
	HostKeys      []string `yaml:"host_keys,omitempty" validate:"dive,envkey"`
	PublicURLKey  string   `yaml:"public_url_key,omitempty" validate:"omitempty,envkey"`
	SharedVolumes []string `yaml:"shared_volumes,omitempty" validate:"dive,required"`
}

// RoleServices returns Services keyed by role.
func (p ProjectConfig) RoleServices() map[feature.Role]string {
	out := make(map[feature.Role]string, len(p.Services))
	for role, svc := range p.Services {
		out[feature.Role(role)] = svc
	}
	return out
}

type ProxyConfig struct {
	ConfigPath    string   `yaml:"config_path" validate:"required"`
	Container     string   `yaml:"container" validate:"required_if=Reload signal"`
	Reload        string   `yaml:"reload" validate:"oneof=signal command none"`
	ReloadCommand []string `yaml:"reload_command,omitempty"`
	PublicBaseURL string   `yaml:"public_base_url" validate:"omitempty,url"`

	ListenPort        int      `yaml:"listen_port" validate:"min=1,max=65535"`
	ServerName        string   `yaml:"server_name"`
	BackendPort       int      `yaml:"backend_port" validate:"min=1,max=65535"`
	FrontendPort      int      `yaml:"frontend_port" validate:"min=1,max=65535"`
	ClientMaxBodySize string   `yaml:"client_max_body_size"`
	Resolver          string   `yaml:"resolver"`
	ProxyReadTimeout  string   `yaml:"proxy_read_timeout"`
	BackendPrefixes   []string `yaml:"backend_prefixes,omitempty" validate:"dive,required"`
}

type ComposeConfig struct {
	Command []string `yaml:"command" validate:"min=1,dive,required"`
}

type GitConfig struct {
	Remote string `yaml:"remote" validate:"required"`
}

// TimeoutsConfig bounds external tools. Zero means no timeout.
type TimeoutsConfig struct {
	Git     time.Duration `yaml:"git" validate:"gte=0"`
	Compose time.Duration `yaml:"compose" validate:"gte=0"`
	Reload  time.Duration `yaml:"reload" validate:"gte=0"`
}

// LoggingConfig: Dir enables daily JSON log files.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
	Dir    string `yaml:"dir,omitempty"`
}

// MetricsConfig enables the node_exporter textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() FeatureConfig {
	base := ".featurectl"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".featurectl")
	}
	timeouts := util.DefaultTimeouts()

	return FeatureConfig{
		Store: StoreConfig{
			Backend: "file",
			Dir:     filepath.Join(base, "groups"),
		},
		Network: NetworkConfig{
			Name:           "feature-net",
			DBVolumePrefix: "feature-db-",
			DBDataPath:     "/var/lib/mysql",
			AlwaysProfile:  "always",
		},
		Projects: ProjectsConfig{
			Backend: ProjectConfig{
				Path:     "~/src/backend",
				BaseFile: "docker-compose.yml",
				Template: ".env.feature.template",
				Services: map[string]string{
					string(feature.RoleBackend):   "app",
					string(feature.RoleWorker):    "worker",
					string(feature.RoleScheduler): "scheduler",
					string(feature.RoleRedis):     "redis",
					string(feature.RoleRabbitMQ):  "rabbitmq",
					string(feature.RoleMariaDB):   "mariadb",
				},
				DBHostKey: "DB_HOST",
				HostKeys:  []string{"REDIS_HOST", "RABBITMQ_HOST"},
			},
			Frontend: ProjectConfig{
				Path:     "~/src/frontend",
				BaseFile: "docker-compose.yml",
				Template: ".env.feature.template",
				Services: map[string]string{
					string(feature.RoleFrontend): "frontend",
				},
				PublicURLKey: "APP_URL",
			},
		},
		Proxy: ProxyConfig{
			ConfigPath:        filepath.Join(base, "nginx", "features.conf"),
			Container:         "nginx-proxy",
			Reload:            "signal",
			PublicBaseURL:     "http://localhost",
			ListenPort:        80,
			ServerName:        "_",
			BackendPort:       80,
			FrontendPort:      80,
			ClientMaxBodySize: "64m",
			Resolver:          "127.0.0.11",
			ProxyReadTimeout:  "300s",
		},
		Compose: ComposeConfig{Command: []string{"docker", "compose"}},
		Git:     GitConfig{Remote: "origin"},
		Timeouts: TimeoutsConfig{
			Git:     timeouts.Git,
			Compose: timeouts.Compose,
			Reload:  timeouts.Reload,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
