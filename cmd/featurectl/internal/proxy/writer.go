// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/util"
)

// Writer replaces the proxy configuration file.
type Writer struct {
	path string
}

// NewWriter returns a Writer for path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the target file.
func (w *Writer) Path() string {
	return w.path
}

// Write atomically replaces the file with content.
//
// # Outputs
//
//   - bool: false when the file already held exactly content and was left
//     untouched
//   - error: write failure; the previous file is intact
func (w *Writer) Write(ctx context.Context, content string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if w.path == "" {
		return false, errors.New("proxy config path is not set")
	}

	current, err := os.ReadFile(w.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", w.path, err)
	}
	if err == nil && bytes.Equal(current, []byte(content)) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(w.path), err)
	}
	if err := util.WriteFileAtomic(w.path, []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
