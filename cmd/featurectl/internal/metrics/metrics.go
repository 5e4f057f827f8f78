// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics records featurectl activity as a node_exporter textfile.
//
// featurectl is a short-lived process, so everything is a gauge describing
// the state after the last invocation: the number of groups and the outcome
// of the last run of each operation.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives lifecycle measurements.
type Recorder interface {
	// SetGroups records the number of persisted groups.
	SetGroups(n int)

	// Observe records one finished operation.
	Observe(operation string, started time.Time, err error)

	// Flush persists the measurements.
	Flush() error
}

// New returns a textfile recorder, or Nop when path is empty.
func New(path string) Recorder {
	if path == "" {
		return Nop{}
	}
	return NewTextfile(path, time.Now)
}

// =============================================================================
// Textfile
// =============================================================================

// Textfile writes measurements to a file in the Prometheus text format.
type Textfile struct {
	path     string
	now      func() time.Time
	registry *prometheus.Registry

	groups    prometheus.Gauge
	success   *prometheus.GaugeVec
	duration  *prometheus.GaugeVec
	timestamp *prometheus.GaugeVec

	mu sync.Mutex
}

// NewTextfile creates a recorder writing to path.
func NewTextfile(path string, now func() time.Time) *Textfile {
	t := &Textfile{
		path:     path,
		now:      now,
		registry: prometheus.NewRegistry(),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "featurectl",
			Name:      "feature_groups",
			Help:      "Number of feature groups on record.",
		}),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "featurectl",
			Name:      "last_operation_success",
			Help:      "1 if the last run of the operation succeeded, 0 otherwise.",
		}, []string{"operation"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "featurectl",
			Name:      "last_operation_duration_seconds",
			Help:      "Wall time of the last run of the operation.",
		}, []string{"operation"}),
		timestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "featurectl",
			Name:      "last_operation_timestamp_seconds",
			Help:      "Unix time the last run of the operation finished.",
		}, []string{"operation"}),
	}
	t.registry.MustRegister(t.groups, t.success, t.duration, t.timestamp)
	return t
}

// SetGroups implements Recorder.
func (t *Textfile) SetGroups(n int) {
	t.groups.Set(float64(n))
}

// Observe implements Recorder.
func (t *Textfile) Observe(operation string, started time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.now()
	ok := 1.0
	if err != nil {
		ok = 0
	}
	t.success.WithLabelValues(operation).Set(ok)
	t.duration.WithLabelValues(operation).Set(end.Sub(started).Seconds())
	t.timestamp.WithLabelValues(operation).Set(float64(end.Unix()))
}

// Flush implements Recorder. The file is replaced atomically.
func (t *Textfile) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(t.path, t.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// =============================================================================
// Nop
// =============================================================================

// Nop discards everything.
type Nop struct{}

func (Nop) SetGroups(int)                    {}
func (Nop) Observe(string, time.Time, error) {}
func (Nop) Flush() error                     { return nil }

var (
	_ Recorder = (*Textfile)(nil)
	_ Recorder = Nop{}
)
