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

import "errors"

var (
	// ErrInvalidGroupID is returned for empty, too long, or malformed ids.
	ErrInvalidGroupID = errors.New("invalid group id")

	// ErrGroupExists is returned when creating a group whose id is taken.
	ErrGroupExists = errors.New("feature group already exists")

	// ErrGroupNotFound is returned when an operation names an unknown group.
	ErrGroupNotFound = errors.New("feature group not found")

	// ErrInvalidBranch is returned for branch names git would misread.
	ErrInvalidBranch = errors.New("invalid branch name")

	// ErrAddressSpaceExhausted is returned when no group number is left.
	ErrAddressSpaceExhausted = errors.New("group number space exhausted")
)
