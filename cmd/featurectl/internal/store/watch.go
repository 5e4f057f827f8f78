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
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the burst of events a single atomic
// write produces.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch calls onChange after records in the directory are created,
// rewritten, or deleted, until ctx is done.
//
// # Description
//
// Events are debounced: a burst of writes results in one call. Temp files
// and the sequence file are ignored. onChange runs on the watching
// goroutine, so events arriving during a call are coalesced into the next
// one.
//
// # Outputs
//
//   - error: nil when ctx ends, otherwise the watcher failure
func (s *FileStore) Watch(ctx context.Context, debounce time.Duration, onChange func(ctx context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.logger.Debug("watching records", "dir", s.dir)

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isRecordEvent(ev) {
				continue
			}
			s.logger.Debug("record changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", s.dir, err)

		case <-timer.C:
			onChange(ctx)
		}
	}
}

func isRecordEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	return strings.HasSuffix(name, recordExt) && !strings.HasPrefix(name, ".")
}
