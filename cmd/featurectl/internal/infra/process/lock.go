// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Interface
// =============================================================================

// Locker is the cross-process exclusion used around allocation.
type Locker interface {
	// AcquireContext waits for the lock until ctx is done.
	AcquireContext(ctx context.Context) error

	// Release releases the lock if held.
	// Safe to call multiple times or if the lock was never acquired.
	Release() error
}

// =============================================================================
// Configuration
// =============================================================================

// ProcessLockConfig configures a ProcessLock.
type ProcessLockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// LockName is the base name for lock files.
	// Default: "featurectl"
	LockName string

	// RetryInterval is how often AcquireContext retries a held lock.
	// Default: 50ms
	RetryInterval time.Duration
}

// DefaultProcessLockConfig returns a lock in the system temp directory.
func DefaultProcessLockConfig() ProcessLockConfig {
	return ProcessLockConfig{
		LockDir:       os.TempDir(),
		LockName:      "featurectl",
		RetryInterval: 50 * time.Millisecond,
	}
}

// =============================================================================
// ProcessLock
// =============================================================================

// ProcessLock is an advisory flock(2) lock on <LockDir>/<LockName>.lock.
//
// # Description
//
// The holder writes its PID next to the lock file so a blocked caller can
// say who is holding it. The lock file itself is left in place on release.
type ProcessLock struct {
	config   ProcessLockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewProcessLock creates a lock; nothing is touched on disk until Acquire.
func NewProcessLock(config ProcessLockConfig) *ProcessLock {
	defaults := DefaultProcessLockConfig()
	if config.LockDir == "" {
		config.LockDir = defaults.LockDir
	}
	if config.LockName == "" {
		config.LockName = defaults.LockName
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}

	return &ProcessLock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire makes a single non-blocking attempt.
//
// # Outputs
//
//   - error: *ErrLockHeld if another process holds the lock
func (p *ProcessLock) Acquire() error {
	if p.held {
		return nil
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// Non-fatal: the flock is what matters.
	_ = p.writePID()

	return nil
}

// AcquireContext retries Acquire until it succeeds or ctx is done.
func (p *ProcessLock) AcquireContext(ctx context.Context) error {
	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		err := p.Acquire()
		var held *ErrLockHeld
		if err == nil || !errors.As(err, &held) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", held, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release releases the lock if held.
func (p *ProcessLock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)

	err := unix.Flock(int(p.lockFile.Fd()), unix.LOCK_UN)

	// Close also drops the lock if the unlock failed.
	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (p *ProcessLock) IsHeld() bool {
	return p.held
}

// HolderPID returns the PID recorded by the current holder, or 0.
func (p *ProcessLock) HolderPID() int {
	return p.readHolderPID()
}

// LockPath returns the lock file path.
func (p *ProcessLock) LockPath() string {
	return p.lockPath
}

func (p *ProcessLock) writePID() error {
	return os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func (p *ProcessLock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// =============================================================================
// Errors
// =============================================================================

// ErrLockHeld is returned when another process holds the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another featurectl instance is allocating (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another featurectl instance is allocating (check: lsof %s)", e.LockPath)
}

var _ Locker = (*ProcessLock)(nil)
