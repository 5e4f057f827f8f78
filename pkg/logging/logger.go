// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for featurectl.
//
// Logs are diagnostics for the operator. They go to stderr by default so
// that stdout stays reserved for command output (tables, generated proxy
// configuration) and can be piped.
//
//	┌──────────────────────────────────────────┐
//	│                 Logger                   │
//	│  ┌──────────────┐   ┌─────────────────┐  │
//	│  │    stderr    │   │    log file     │  │
//	│  │ (text/JSON)  │   │ (JSON, daily)   │  │
//	│  └──────────────┘   └─────────────────┘  │
//	└──────────────────────────────────────────┘
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.featurectl/logs",
//	    Service: "featurectl",
//	})
//	defer logger.Close()
//
//	opLog := logger.ForOperation("deploy")
//	opLog.Info("deploying group", "group", id)
//
// File logs are named `{service}_{date}.log` and are always JSON.
//
// # Operation IDs
//
// ForOperation tags every record with a fresh op_id so that the lines
// belonging to one invocation can be pulled out of a shared daily file.
//
// # Security Considerations
//
// Nothing is redacted. Overlay values (database passwords in particular)
// must never be passed as attributes.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for troubleshooting: every external command and its output.
	LevelDebug Level = iota

	// LevelInfo is for state changes: group created, tier deployed.
	LevelInfo

	// LevelWarn is for recoverable problems: proxy not reloaded.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a configuration string to a Level.
//
// # Inputs
//
//   - s: One of debug, info, warn, warning, error (case-insensitive).
//
// # Outputs
//
//   - Level: The parsed level, LevelInfo on error.
//   - error: Non-nil for unrecognised input.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Logger.
type Config struct {
	// Level is the minimum level written to any destination.
	Level Level

	// LogDir enables JSON file logging when non-empty. Supports ~.
	LogDir string

	// Service is attached to every record and names the log file.
	Service string

	// JSON switches the console destination from text to JSON.
	JSON bool

	// Quiet disables the console destination.
	Quiet bool

	// Output replaces stderr as the console destination.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger writes structured records to the console and an optional file.
//
// Safe for concurrent use. Child loggers created with With or
// ForOperation share the parent's file; only the root should be closed.
type Logger struct {
	slog   *slog.Logger
	config Config

	// file is nil when file logging is disabled or could not be opened
	file *os.File

	mu sync.Mutex
}

// New creates a Logger for config.
//
// # Description
//
// A file destination that cannot be created is skipped rather than
// failing: logging must never be the reason a command does not run.
// FileError reports what went wrong.
func New(config Config) *Logger {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	console := config.Output
	if console == nil {
		console = os.Stderr
	}
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(console, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, opts))
		}
	}

	logger := &Logger{config: config}

	if config.LogDir != "" {
		if file, err := openLogFile(config); err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		} else {
			fileErrors.Store(config.LogDir, err)
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

var fileErrors sync.Map

// FileError returns the error from the last failed attempt to open a log
// file in dir, or nil.
func FileError(dir string) error {
	if v, ok := fileErrors.Load(dir); ok {
		return v.(error)
	}
	return nil
}

func openLogFile(config Config) (*os.File, error) {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	service := config.Service
	if service == "" {
		service = "featurectl"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

// Default returns an Info-level text logger on stderr.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "featurectl"})
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return New(Config{Quiet: true})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// ForOperation returns a child logger tagged with the command name and a
// new op_id.
//
// # Outputs
//
//   - *Logger: Child logger; do not Close it.
//   - string: The generated op_id.
func (l *Logger) ForOperation(command string) (*Logger, string) {
	id := uuid.NewString()
	return l.With("op_id", id, "command", command), id
}

// Slog exposes the underlying *slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	var errs []error
	if err := l.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync log file: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	l.file = nil
	return errors.Join(errs...)
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out records to several handlers, letting the console
// and file use different formats.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
