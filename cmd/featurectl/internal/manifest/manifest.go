// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest renders the per-group compose file for one tier.
//
// Every service extends the project's shared base manifest and overrides
// only what makes it belong to the group: container name, hostname,
// network address and aliases, and the env file.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// =============================================================================
// Compose file model
// =============================================================================

// File is the subset of the compose file format featurectl writes.
type File struct {
	Services map[string]Service `yaml:"services"`
	Volumes  map[string]Volume  `yaml:"volumes,omitempty"`
	Networks map[string]Network `yaml:"networks"`
}

// Service overrides a base service.
type Service struct {
	Extends       Extends                   `yaml:"extends"`
	ContainerName string                    `yaml:"container_name"`
	Hostname      string                    `yaml:"hostname"`
	EnvFile       []string                  `yaml:"env_file,omitempty"`
	Profiles      []string                  `yaml:"profiles,omitempty"`
	Networks      map[string]ServiceNetwork `yaml:"networks"`
	Volumes       []string                  `yaml:"volumes,omitempty"`
}

// Extends points at the base manifest.
type Extends struct {
	File    string `yaml:"file"`
	Service string `yaml:"service"`
}

// ServiceNetwork pins a service's address and aliases.
type ServiceNetwork struct {
	Aliases     []string `yaml:"aliases"`
	IPv4Address string   `yaml:"ipv4_address"`
}

// Volume declares a named volume.
type Volume struct {
	Name     string `yaml:"name,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

// Network declares the shared network.
type Network struct {
	Name     string `yaml:"name"`
	External bool   `yaml:"external"`
}

// =============================================================================
// Rendering
// =============================================================================

// Params describes one tier of one group.
type Params struct {
	Group feature.Group
	Tier  feature.Tier

	// BaseFile is the shared manifest, relative to the project directory.
	BaseFile string

	// Services maps roles to base manifest service names. Roles without an
	// entry are not part of this project.
	Services map[feature.Role]string

	// Network is the external shared network.
	Network string

	// EnvFile is the overlay file name, relative to the project directory.
	EnvFile string

	// SharedVolumes are external volumes the base manifest mounts.
	SharedVolumes []string

	// DBVolumePrefix names the group's database volume: <prefix><id>.
	DBVolumePrefix string

	// DBDataPath is where the database keeps its data.
	DBDataPath string

	// AlwaysProfile is the profile the base manifest puts the database
	// under; it is applied explicitly so the service starts.
	AlwaysProfile string
}

// ErrNoServices is returned when a tier has no configured services.
var ErrNoServices = errors.New("no services configured for tier")

// DBVolumeName returns the group's database volume name.
func DBVolumeName(prefix, id string) string {
	return prefix + id
}

// Render builds the compose file for p.
func Render(p Params) (File, error) {
	if p.Network == "" {
		return File{}, errors.New("network name is required")
	}
	if p.BaseFile == "" {
		return File{}, errors.New("base manifest is required")
	}

	g := p.Group
	out := File{
		Services: make(map[string]Service),
		Networks: map[string]Network{p.Network: {Name: p.Network, External: true}},
	}

	for _, role := range g.RolesFor(p.Tier) {
		base, ok := p.Services[role]
		if !ok || base == "" {
			continue
		}

		hostname := feature.Hostname(base, g.ID)
		container := g.Container(role)
		svc := Service{
			Extends:       Extends{File: p.BaseFile, Service: base},
			ContainerName: container,
			Hostname:      hostname,
			Networks: map[string]ServiceNetwork{
				p.Network: {
					Aliases:     []string{container, hostname},
					IPv4Address: g.IP(role),
				},
			},
		}
		if p.EnvFile != "" {
			svc.EnvFile = []string{p.EnvFile}
		}
		if role == feature.RoleMariaDB {
			if p.AlwaysProfile != "" {
				svc.Profiles = []string{p.AlwaysProfile}
			}
			volume := DBVolumeName(p.DBVolumePrefix, g.ID)
			if p.DBDataPath != "" {
				svc.Volumes = []string{volume + ":" + p.DBDataPath}
			}
			if out.Volumes == nil {
				out.Volumes = make(map[string]Volume)
			}
			out.Volumes[volume] = Volume{Name: volume}
		}
		out.Services[base] = svc
	}

	if len(out.Services) == 0 {
		return File{}, fmt.Errorf("%w: %s", ErrNoServices, p.Tier)
	}

	for _, v := range p.SharedVolumes {
		if out.Volumes == nil {
			out.Volumes = make(map[string]Volume)
		}
		out.Volumes[v] = Volume{Name: v, External: true}
	}
	return out, nil
}

// Marshal encodes the file. Map keys are emitted sorted, so the output is
// deterministic.
func Marshal(f File) ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// Write renders p and atomically writes it to path.
func Write(path string, p Params) error {
	f, err := Render(p)
	if err != nil {
		return err
	}
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", filepath.Base(path), err)
	}
	return nil
}
