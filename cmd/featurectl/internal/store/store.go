// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists feature group records and issues group numbers.
//
// Two backends implement Backend: FileStore (one YAML file per group, the
// default) and BadgerStore (an embedded transactional key-value store).
// Registry wraps a Backend and owns the only write path for new groups.
package store

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
)

// =============================================================================
// Interfaces
// =============================================================================

// Repository is durable per-group metadata keyed by group id.
type Repository interface {
	// Get returns the record for id. An absent id is (Group{}, false, nil).
	Get(ctx context.Context, id string) (feature.Group, bool, error)

	// List returns every readable record sorted by (Number, ID).
	// Unreadable records are skipped with a warning.
	List(ctx context.Context) ([]feature.Group, error)

	// Put writes the full record, derived fields included.
	Put(ctx context.Context, g feature.Group) error

	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

// Sequencer persists the highest group number ever issued.
type Sequencer interface {
	LastIssued(ctx context.Context) (int, error)
	RecordIssued(ctx context.Context, n int) error
}

// Store is what allocation needs: records plus the high-water mark.
type Store interface {
	Repository
	Sequencer
}

// Backend is a Store that owns resources.
type Backend interface {
	Store
	Close() error
}

// Atomic is implemented by backends that can run a read-modify-write as a
// single transaction.
type Atomic interface {
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// =============================================================================
// Record encoding
// =============================================================================

func encodeGroup(g feature.Group) ([]byte, error) {
	data, err := yaml.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode group %s: %w", g.ID, err)
	}
	return data, nil
}

func decodeGroup(data []byte) (feature.Group, error) {
	var g feature.Group
	if err := yaml.Unmarshal(data, &g); err != nil {
		return feature.Group{}, err
	}
	return g, nil
}
