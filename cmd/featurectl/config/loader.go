// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads featurectl.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEATURECTL_"

// envOverrides maps environment variables to the fields they replace.
var envOverrides = map[string]func(*FeatureConfig, string){
	"STORE_DIR":        func(c *FeatureConfig, v string) { c.Store.Dir = v },
	"STORE_BACKEND":    func(c *FeatureConfig, v string) { c.Store.Backend = v },
	"BACKEND_PATH":     func(c *FeatureConfig, v string) { c.Projects.Backend.Path = v },
	"FRONTEND_PATH":    func(c *FeatureConfig, v string) { c.Projects.Frontend.Path = v },
	"PROXY_CONFIG":     func(c *FeatureConfig, v string) { c.Proxy.ConfigPath = v },
	"PROXY_CONTAINER":  func(c *FeatureConfig, v string) { c.Proxy.Container = v },
	"PUBLIC_BASE_URL":  func(c *FeatureConfig, v string) { c.Proxy.PublicBaseURL = v },
	"LOG_LEVEL":        func(c *FeatureConfig, v string) { c.Logging.Level = v },
	"METRICS_TEXTFILE": func(c *FeatureConfig, v string) { c.Metrics.Textfile = v },
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report yaml names so errors point at the file.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("role", validateRole)
	_ = validate.RegisterValidation("envkey", validateEnvKey)
}

func validateRole(fl validator.FieldLevel) bool {
	role := feature.Role(fl.Field().String())
	for _, r := range feature.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

func validateEnvKey(fl validator.FieldLevel) bool {
	return util.ValidateEnvKey(fl.Field().String()) == nil
}

// DefaultPath returns ~/.featurectl/featurectl.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".featurectl", "featurectl.yaml"), nil
}

// Load reads the config at path, creating it with defaults first if it
// does not exist.
//
// # Description
//
// Missing keys keep their default values. FEATURECTL_* environment
// variables are applied after the file, then "~/" prefixes are expanded
// and the result is validated.
//
// # Outputs
//
//   - *FeatureConfig: the validated configuration
//   - bool: true if the file was created by this call
//   - error: read, parse, or validation failure
func Load(path string) (*FeatureConfig, bool, error) {
	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, created, fmt.Errorf("failed to read the config file: %w", err)
	}

	// Service maps replace the defaults instead of merging into them.
	cfg := DefaultConfig()
	defaults := cfg.Projects
	cfg.Projects.Backend.Services = nil
	cfg.Projects.Frontend.Services = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, created, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Projects.Backend.Services == nil {
		cfg.Projects.Backend.Services = defaults.Backend.Services
	}
	if cfg.Projects.Frontend.Services == nil {
		cfg.Projects.Frontend.Services = defaults.Frontend.Services
	}

	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.expandPaths(); err != nil {
		return nil, created, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, created, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, created, nil
}

// Validate checks the configuration against its struct tags.
func (c *FeatureConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "FeatureConfig.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// LockDir returns the directory of the allocation lock.
func (c *FeatureConfig) LockDir() string {
	if c.Store.LockDir != "" {
		return c.Store.LockDir
	}
	return c.Store.Dir
}

func applyEnv(c *FeatureConfig, lookup func(string) (string, bool)) {
	for suffix, set := range envOverrides {
		if v, ok := lookup(EnvPrefix + suffix); ok && v != "" {
			set(c, v)
		}
	}
}

func (c *FeatureConfig) expandPaths() error {
	for _, p := range []*string{
		&c.Store.Dir,
		&c.Store.LockDir,
		&c.Projects.Backend.Path,
		&c.Projects.Frontend.Path,
		&c.Proxy.ConfigPath,
		&c.Logging.Dir,
		&c.Metrics.Textfile,
	} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o644)
}
