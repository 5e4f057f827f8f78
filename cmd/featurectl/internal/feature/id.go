// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feature

import (
	"fmt"

	"github.com/AleutianAI/featurectl/pkg/validation"
)

// ValidateID checks a group id.
//
// Ids are lowercase letters, digits and hyphens, at most MaxIDLength long.
// The same id is used in file names, container names and URL paths, so
// nothing else is allowed.
func ValidateID(id string) error {
	if err := validation.ValidateSlug(id, MaxIDLength); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGroupID, err)
	}
	return nil
}

// ValidateBranch checks a branch name before it reaches git.
//
// The NoBranch sentinel and the empty string are accepted and mean the tier
// is skipped.
func ValidateBranch(branch string) error {
	if branch == "" || branch == NoBranch {
		return nil
	}
	if err := validation.ValidateGitRef(branch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBranch, err)
	}
	return nil
}

// ValidateSpec checks everything about a create request that can be checked
// without touching the store.
func ValidateSpec(spec CreateSpec) error {
	if err := ValidateID(spec.ID); err != nil {
		return err
	}
	if err := ValidateBranch(spec.BackendBranch); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := ValidateBranch(spec.FrontendBranch); err != nil {
		return fmt.Errorf("frontend: %w", err)
	}
	return nil
}
