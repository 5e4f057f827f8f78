// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("%v.toSlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Console Output Tests
// =============================================================================

func TestNew_TextToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "featurectl", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("group created", "group", "feat-42", "number", 42)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	for _, want := range []string{"group created", "group=feat-42", "number=42", "service=featurectl"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestNew_JSONToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Output: &buf})

	logger.Warn("proxy not reloaded", "container", "nginx-proxy")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["msg"] != "proxy not reloaded" || rec["container"] != "nginx-proxy" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_QuietWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})

	logger.Error("boom")

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Info("nothing")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

// =============================================================================
// File Output Tests
// =============================================================================

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "featurectl", Quiet: true})

	logger.Info("deployed", "tier", "backend")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	path := filepath.Join(dir, "featurectl_"+time.Now().Format("2006-01-02")+".log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("log file is empty")
	}
	var rec map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v", err)
	}
	if rec["msg"] != "deployed" || rec["tier"] != "backend" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_UnwritableLogDirFallsBack(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(blocker, "logs")

	var buf bytes.Buffer
	logger := New(Config{LogDir: dir, Output: &buf})
	logger.Info("still works")

	if !strings.Contains(buf.String(), "still works") {
		t.Errorf("console output missing: %q", buf.String())
	}
	if FileError(dir) == nil {
		t.Error("expected FileError to report the failure")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

// =============================================================================
// Child Logger Tests
// =============================================================================

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	logger.With("group", "feat-42").Info("stopping")

	if !strings.Contains(buf.String(), "group=feat-42") {
		t.Errorf("child attrs missing: %q", buf.String())
	}
}

func TestForOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, JSON: true})

	opLog, id := logger.ForOperation("deploy")
	opLog.Info("started")

	if len(id) != 36 {
		t.Errorf("op_id %q is not a UUID", id)
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["op_id"] != id || rec["command"] != "deploy" {
		t.Errorf("unexpected record %v", rec)
	}

	_, other := logger.ForOperation("deploy")
	if other == id {
		t.Error("op_id must be unique per operation")
	}
}

func TestSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	logger.Slog().Info("via slog")

	if !strings.Contains(buf.String(), "via slog") {
		t.Errorf("slog output missing: %q", buf.String())
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h).With("k", "v").WithGroup("g")

	logger.Info("info only")
	logger.Error("both")

	if !strings.Contains(a.String(), "info only") || !strings.Contains(a.String(), "both") {
		t.Errorf("text handler output %q", a.String())
	}
	if strings.Contains(b.String(), "info only") || !strings.Contains(b.String(), "both") {
		t.Errorf("json handler output %q", b.String())
	}
}

func TestLogger_Concurrent(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger := New(Config{Output: &lockedWriter{mu: &mu, w: &buf}})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Info("tier", "n", i)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Count(buf.String(), "\n"); got != 20 {
		t.Errorf("expected 20 lines, got %d", got)
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.featurectl/logs"); got != filepath.Join(home, ".featurectl/logs") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
	if got := expandPath("~user/x"); got != "~user/x" {
		t.Errorf("expandPath(~user/x) = %q", got)
	}
}
