// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/infra/git"
	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/overlay"
)

// Sentinel errors for deployment prerequisites.
var (
	// ErrTemplateMissing means a tier's environment template does not exist.
	ErrTemplateMissing = overlay.ErrTemplateMissing

	// ErrProjectPathMissing means a tier's project directory does not exist
	// or is not configured.
	ErrProjectPathMissing = errors.New("project path missing")

	// ErrBranchNotFound means a branch exists neither on the remote nor locally.
	ErrBranchNotFound = git.ErrBranchNotFound
)

// Step names a stage of the per-tier pipeline.
type Step string

const (
	StepPreflight Step = "preflight"
	StepSource    Step = "source"
	StepOverlay   Step = "overlay"
	StepManifest  Step = "manifest"
	StepRestart   Step = "restart"
	StepStop      Step = "stop"
	StepCleanup   Step = "cleanup"
)

// TierError is a failure of one step for one tier.
type TierError struct {
	Tier feature.Tier
	Step Step
	Err  error
}

// Error implements the error interface.
func (e *TierError) Error() string {
	return fmt.Sprintf("%s tier: %s: %v", e.Tier, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *TierError) Unwrap() error {
	return e.Err
}

func tierErr(tier feature.Tier, step Step, err error) error {
	return &TierError{Tier: tier, Step: step, Err: err}
}
