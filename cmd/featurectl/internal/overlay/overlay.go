// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overlay renders a group's environment file from a project's
// template.
//
// The template is read as KEY=VALUE pairs, a few keys are rewritten so the
// group's services find each other, and the result is written sorted by key
// so identical input always produces identical bytes.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// ErrTemplateMissing is returned when the template file does not exist.
var ErrTemplateMissing = errors.New("environment template missing")

// Params selects which keys are rewritten and to what.
type Params struct {
	// GroupID suffixes the cache and broker hostnames.
	GroupID string

	// DBHostKey names the database host variable. Default: "DB_HOST"
	DBHostKey string

	// DBHost replaces the database host. Empty leaves the template value.
	DBHost string

	// HostKeys are cache/broker host variables; their values become
	// "<value>-<id>".
	HostKeys []string

	// PublicURLKey names the frontend's public URL variable.
	PublicURLKey string

	// PublicURL is written to PublicURLKey when both are set.
	PublicURL string
}

// Render parses the template and applies the rewrites.
func Render(template io.Reader, p Params) (map[string]string, error) {
	env, err := godotenv.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	dbKey := p.DBHostKey
	if dbKey == "" {
		dbKey = "DB_HOST"
	}
	if p.DBHost != "" {
		env[dbKey] = p.DBHost
	}

	suffix := "-" + p.GroupID
	for _, key := range p.HostKeys {
		value, ok := env[key]
		if !ok || value == "" || p.GroupID == "" {
			continue
		}
		if !strings.HasSuffix(value, suffix) {
			env[key] = feature.Hostname(value, p.GroupID)
		}
	}

	if p.PublicURLKey != "" && p.PublicURL != "" {
		env[p.PublicURLKey] = p.PublicURL
	}

	for key := range env {
		if err := util.ValidateEnvKey(key); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
	}
	return env, nil
}

// Marshal returns the env file content: one line per key, sorted by key,
// with a trailing newline.
func Marshal(env map[string]string) ([]byte, error) {
	text, err := godotenv.Marshal(env)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return []byte(text + "\n"), nil
}

// Build renders templatePath and atomically writes the overlay to outPath.
//
// # Outputs
//
//   - error: wraps ErrTemplateMissing if templatePath does not exist
func Build(templatePath, outPath string, p Params) error {
	f, err := os.Open(templatePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrTemplateMissing, templatePath)
	}
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	env, err := Render(f, p)
	if err != nil {
		return fmt.Errorf("%s: %w", templatePath, err)
	}
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	return nil
}
