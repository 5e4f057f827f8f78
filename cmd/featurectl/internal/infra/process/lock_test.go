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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessLock_Defaults(t *testing.T) {
	lock := NewProcessLock(ProcessLockConfig{})

	assert.Equal(t, filepath.Join(os.TempDir(), "featurectl.lock"), lock.LockPath())
	assert.False(t, lock.IsHeld())
}

func TestProcessLock_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc"})

	require.NoError(t, lock.Acquire())
	assert.True(t, lock.IsHeld())
	assert.Equal(t, os.Getpid(), lock.HolderPID())

	// Re-entrant for the same instance.
	require.NoError(t, lock.Acquire())

	require.NoError(t, lock.Release())
	assert.False(t, lock.IsHeld())
	assert.Zero(t, lock.HolderPID())

	// Releasing twice is harmless.
	require.NoError(t, lock.Release())
}

func TestProcessLock_SecondInstanceBlocked(t *testing.T) {
	dir := t.TempDir()
	first := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc"})
	second := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc"})

	require.NoError(t, first.Acquire())
	defer first.Release()

	err := second.Acquire()
	var held *ErrLockHeld
	require.ErrorAs(t, err, &held)
	assert.Equal(t, os.Getpid(), held.HolderPID)
	assert.Contains(t, err.Error(), "another featurectl instance")
}

func TestProcessLock_AcquireContextTimesOut(t *testing.T) {
	dir := t.TempDir()
	first := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc"})
	second := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc", RetryInterval: 5 * time.Millisecond})

	require.NoError(t, first.Acquire())
	defer first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := second.AcquireContext(ctx)
	var held *ErrLockHeld
	assert.ErrorAs(t, err, &held)
	assert.False(t, second.IsHeld())
}

func TestProcessLock_AcquireContextWaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	first := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc"})
	second := NewProcessLock(ProcessLockConfig{LockDir: dir, LockName: "alloc", RetryInterval: 5 * time.Millisecond})

	require.NoError(t, first.Acquire())
	go func() {
		time.Sleep(20 * time.Millisecond)
		first.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, second.AcquireContext(ctx))
	assert.True(t, second.IsHeld())
	require.NoError(t, second.Release())
}

func TestProcessLock_MissingDirectory(t *testing.T) {
	lock := NewProcessLock(ProcessLockConfig{LockDir: filepath.Join(t.TempDir(), "missing")})

	err := lock.Acquire()
	require.Error(t, err)
	var held *ErrLockHeld
	assert.NotErrorAs(t, err, &held)
}
