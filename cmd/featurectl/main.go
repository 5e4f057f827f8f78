// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command featurectl manages feature groups: isolated, per-branch copies
// of a backend and frontend stack running side by side on one Docker host
// behind a shared nginx reverse proxy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		open:   openSession,
	}
	code := run(ctx, c, os.Args[1:])
	stop()
	os.Exit(code)
}
