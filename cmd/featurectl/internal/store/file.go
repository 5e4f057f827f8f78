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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

const (
	recordExt    = ".yaml"
	sequenceFile = ".sequence"
)

// FileStore keeps one YAML file per group in a directory.
//
// # Description
//
// Layout:
//
//	<dir>/<id>.yaml    one record per group
//	<dir>/.sequence    highest group number ever issued
//
// Writes go through a temp file and rename so a crashed write never leaves a
// truncated record.
//
// # Thread Safety
//
// Individual calls are safe. Read-modify-write sequences need the
// Registry's lock.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates dir if needed and returns a store over it.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("records directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create records directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the records directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get reads <dir>/<id>.yaml.
func (s *FileStore) Get(ctx context.Context, id string) (feature.Group, bool, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return feature.Group{}, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return feature.Group{}, false, nil
	}
	if err != nil {
		return feature.Group{}, false, fmt.Errorf("read record %s: %w", path, err)
	}

	g, err := decodeGroup(data)
	if err != nil {
		return feature.Group{}, false, fmt.Errorf("decode record %s: %w", path, err)
	}
	if g.ID == "" {
		g.ID = id
	}
	return g, true, nil
}

// List reads every *.yaml file in the directory.
//
// Files that fail to parse are skipped with a warning. A record without an
// id takes its id from the file name.
func (s *FileStore) List(ctx context.Context) ([]feature.Group, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read records directory %s: %w", s.dir, err)
	}

	groups := make([]feature.Group, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(s.dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "path", path, "error", err)
			continue
		}
		g, err := decodeGroup(data)
		if err != nil {
			s.logger.Warn("skipping malformed record", "path", path, "error", err)
			continue
		}
		if g.ID == "" {
			g.ID = strings.TrimSuffix(name, recordExt)
		}
		groups = append(groups, g)
	}

	feature.SortGroups(groups)
	return groups, nil
}

// Put writes the record atomically.
func (s *FileStore) Put(ctx context.Context, g feature.Group) error {
	path, err := s.recordPath(g.ID)
	if err != nil {
		return err
	}
	data, err := encodeGroup(g)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", g.ID, err)
	}
	return nil
}

// Delete removes the record file.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.recordPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// LastIssued reads the high-water mark. A missing or garbled file reads as 0;
// the allocator still sees every number present in the records.
func (s *FileStore) LastIssued(ctx context.Context) (int, error) {
	path := filepath.Join(s.dir, sequenceFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		s.logger.Warn("ignoring malformed sequence file", "path", path, "error", err)
		return 0, nil
	}
	return n, nil
}

// RecordIssued raises the high-water mark to n. It never lowers it.
func (s *FileStore) RecordIssued(ctx context.Context, n int) error {
	last, err := s.LastIssued(ctx)
	if err != nil {
		return err
	}
	if n <= last {
		return nil
	}
	path := filepath.Join(s.dir, sequenceFile)
	if err := util.WriteFileAtomic(path, []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// recordPath validates id before it becomes a file name.
func (s *FileStore) recordPath(id string) (string, error) {
	if err := feature.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

var _ Backend = (*FileStore)(nil)
