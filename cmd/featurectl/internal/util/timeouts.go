// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"context"
	"time"
)

const (
	// DefaultGitTimeout bounds a single git invocation.
	DefaultGitTimeout = 5 * time.Minute

	// DefaultComposeTimeout bounds a single compose invocation; image
	// builds are slow.
	DefaultComposeTimeout = 30 * time.Minute

	// DefaultReloadTimeout bounds a proxy reload.
	DefaultReloadTimeout = 30 * time.Second
)

// Timeouts holds the per-tool deadlines. Zero means no deadline.
type Timeouts struct {
	Git     time.Duration
	Compose time.Duration
	Reload  time.Duration
}

// DefaultTimeouts returns generous defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Git:     DefaultGitTimeout,
		Compose: DefaultComposeTimeout,
		Reload:  DefaultReloadTimeout,
	}
}

// WithOptionalTimeout derives a context with timeout d, or just a
// cancellable one when d is zero or negative.
func WithOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
