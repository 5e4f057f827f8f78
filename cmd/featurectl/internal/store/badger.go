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
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
)

const (
	groupKeyPrefix = "group/"
	sequenceKey    = "meta/sequence"
)

// =============================================================================
// Configuration
// =============================================================================

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory.
	Path string

	// InMemory keeps everything in RAM. For tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's own log lines. Nil silences them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a durable configuration for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore keeps records in an embedded Badger database.
//
// # Description
//
// Keys:
//
//	group/<id>       YAML-encoded feature.Group
//	meta/sequence    highest group number ever issued (decimal)
//
// Badger holds a directory lock for as long as the database is open, so
// only one featurectl process can use a given database at a time.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadgerStore opens (or creates) the database.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Get returns the record for id.
func (s *BadgerStore) Get(ctx context.Context, id string) (feature.Group, bool, error) {
	var (
		g  feature.Group
		ok bool
	)
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		g, ok, err = tx.Get(ctx, id)
		return err
	})
	return g, ok, err
}

// List returns every record sorted by (Number, ID).
func (s *BadgerStore) List(ctx context.Context) ([]feature.Group, error) {
	var groups []feature.Group
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		groups, err = tx.List(ctx)
		return err
	})
	return groups, err
}

// Put writes the record.
func (s *BadgerStore) Put(ctx context.Context, g feature.Group) error {
	return s.Atomically(ctx, func(tx Store) error { return tx.Put(ctx, g) })
}

// Delete removes the record.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.Atomically(ctx, func(tx Store) error { return tx.Delete(ctx, id) })
}

// LastIssued returns the high-water mark.
func (s *BadgerStore) LastIssued(ctx context.Context) (int, error) {
	var n int
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		n, err = tx.LastIssued(ctx)
		return err
	})
	return n, err
}

// RecordIssued raises the high-water mark to n.
func (s *BadgerStore) RecordIssued(ctx context.Context, n int) error {
	return s.Atomically(ctx, func(tx Store) error { return tx.RecordIssued(ctx, n) })
}

// Atomically runs fn inside one read-write transaction. Nothing fn writes
// is visible unless fn returns nil and the commit succeeds.
func (s *BadgerStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, logger: s.logger})
	})
}

// Close runs one value log GC pass and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		s.logger.Debug("badger value log GC skipped", "error", err)
	}
	return s.db.Close()
}

func (s *BadgerStore) view(ctx context.Context, fn func(tx *badgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, logger: s.logger})
	})
}

// =============================================================================
// Transaction view
// =============================================================================

// badgerTx is a Store bound to one Badger transaction.
type badgerTx struct {
	txn    *badger.Txn
	logger *slog.Logger
}

func groupKey(id string) []byte {
	return []byte(groupKeyPrefix + id)
}

func (t *badgerTx) Get(ctx context.Context, id string) (feature.Group, bool, error) {
	if err := feature.ValidateID(id); err != nil {
		return feature.Group{}, false, err
	}
	item, err := t.txn.Get(groupKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return feature.Group{}, false, nil
	}
	if err != nil {
		return feature.Group{}, false, fmt.Errorf("get %s: %w", id, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return feature.Group{}, false, fmt.Errorf("read %s: %w", id, err)
	}
	g, err := decodeGroup(data)
	if err != nil {
		return feature.Group{}, false, fmt.Errorf("decode %s: %w", id, err)
	}
	if g.ID == "" {
		g.ID = id
	}
	return g, true, nil
}

func (t *badgerTx) List(ctx context.Context) ([]feature.Group, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(groupKeyPrefix)
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var groups []feature.Group
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		data, err := item.ValueCopy(nil)
		if err != nil {
			t.logger.Warn("skipping unreadable record", "key", key, "error", err)
			continue
		}
		g, err := decodeGroup(data)
		if err != nil {
			t.logger.Warn("skipping malformed record", "key", key, "error", err)
			continue
		}
		if g.ID == "" {
			g.ID = key[len(groupKeyPrefix):]
		}
		groups = append(groups, g)
	}

	feature.SortGroups(groups)
	return groups, nil
}

func (t *badgerTx) Put(ctx context.Context, g feature.Group) error {
	if err := feature.ValidateID(g.ID); err != nil {
		return err
	}
	data, err := encodeGroup(g)
	if err != nil {
		return err
	}
	if err := t.txn.Set(groupKey(g.ID), data); err != nil {
		return fmt.Errorf("put %s: %w", g.ID, err)
	}
	return nil
}

func (t *badgerTx) Delete(ctx context.Context, id string) error {
	if err := feature.ValidateID(id); err != nil {
		return err
	}
	if err := t.txn.Delete(groupKey(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (t *badgerTx) LastIssued(ctx context.Context) (int, error) {
	item, err := t.txn.Get([]byte(sequenceKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		t.logger.Warn("ignoring malformed sequence value", "error", err)
		return 0, nil
	}
	return n, nil
}

func (t *badgerTx) RecordIssued(ctx context.Context, n int) error {
	last, err := t.LastIssued(ctx)
	if err != nil {
		return err
	}
	if n <= last {
		return nil
	}
	if err := t.txn.Set([]byte(sequenceKey), []byte(strconv.Itoa(n))); err != nil {
		return fmt.Errorf("set sequence: %w", err)
	}
	return nil
}

var (
	_ Backend = (*BadgerStore)(nil)
	_ Atomic  = (*BadgerStore)(nil)
	_ Store   = (*badgerTx)(nil)
)
