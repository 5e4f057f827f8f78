// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/process"
)

// Registry is the write path for new feature groups.
//
// # Description
//
// Create runs validate, existence check, number allocation, derivation,
// save, and high-water update as one critical section. The section is
// guarded by an in-process mutex and, when a Locker is configured, a
// cross-process flock. Backends implementing Atomic additionally run it in
// a single transaction.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	backend Backend
	locker  process.Locker
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLocker sets the cross-process lock taken around allocation.
func WithLocker(l process.Locker) RegistryOption {
	return func(r *Registry) { r.locker = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry wraps a backend.
func NewRegistry(backend Backend, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{backend: backend, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repository exposes the underlying records for reads and deletes.
func (r *Registry) Repository() Repository {
	return r.backend
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}

// Create validates spec, allocates the next group number, and saves the
// new record.
//
// # Outputs
//
//   - feature.Group: the saved record with its derived values
//   - error: wraps ErrInvalidGroupID, ErrInvalidBranch, ErrGroupExists,
//     ErrAddressSpaceExhausted, a lock error, or a storage error. Nothing
//     is written on error.
func (r *Registry) Create(ctx context.Context, spec feature.CreateSpec) (feature.Group, error) {
	if err := feature.ValidateSpec(spec); err != nil {
		return feature.Group{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locker != nil {
		if err := r.locker.AcquireContext(ctx); err != nil {
			return feature.Group{}, fmt.Errorf("lock records: %w", err)
		}
		defer func() {
			if err := r.locker.Release(); err != nil {
				r.logger.Warn("failed to release records lock", "error", err)
			}
		}()
	}

	var created feature.Group
	allocate := func(tx Store) error {
		_, exists, err := tx.Get(ctx, spec.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", feature.ErrGroupExists, spec.ID)
		}

		groups, err := tx.List(ctx)
		if err != nil {
			return err
		}
		highWater, err := tx.LastIssued(ctx)
		if err != nil {
			return err
		}
		number, err := feature.NextGroupNumber(groups, highWater)
		if err != nil {
			return err
		}

		g := feature.NewGroup(spec, number, r.now())
		if err := tx.Put(ctx, g); err != nil {
			return err
		}
		if err := tx.RecordIssued(ctx, number); err != nil {
			if delErr := tx.Delete(ctx, g.ID); delErr != nil {
				return errors.Join(err, fmt.Errorf("roll back %s: %w", g.ID, delErr))
			}
			return err
		}
		created = g
		return nil
	}

	var err error
	if atomic, ok := r.backend.(Atomic); ok {
		err = atomic.Atomically(ctx, allocate)
	} else {
		err = allocate(r.backend)
	}
	if err != nil {
		return feature.Group{}, err
	}

	r.logger.Info("feature group created",
		"group_id", created.ID,
		"group_number", created.Number,
		"subnet", feature.Subnet(created.Number),
	)
	return created, nil
}
