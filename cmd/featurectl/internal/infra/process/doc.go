// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: runs git and docker compose so callers can be tested without them
  - ProcessLock: flock(2) based lock serializing group number allocation

# Manager

All exec.Command calls in featurectl go through Manager. RunInDir returns the
captured stdout and stderr plus the exit code; a non-zero exit is reported
through the exit code, not the error.

	pm := process.NewDefaultManager()
	stdout, stderr, code, err := pm.RunInDir(ctx, "/srv/api", nil, "git", "fetch", "--prune", "origin")
	if err != nil {
	    return fmt.Errorf("git could not be started: %w", err)
	}
	if code != 0 {
	    return fmt.Errorf("git fetch exited %d: %s", code, stderr)
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	        return "", "", 0, nil
	    },
	}

# ProcessLock

	lock := process.NewProcessLock(process.ProcessLockConfig{LockDir: recordsDir, LockName: "allocate"})
	if err := lock.AcquireContext(ctx); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - ProcessLock is NOT safe for concurrent use from multiple goroutines

# Limitations

  - ProcessLock uses advisory locks; other processes can ignore it
  - ProcessLock requires OS support for flock(2)
*/
package process
