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
	"fmt"
	"regexp"
)

// envVarKeyPattern follows POSIX naming and keeps shell metacharacters out
// of anything handed to a child process or written to an env file.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment variable key is invalid.
var ErrInvalidEnvVarKey = fmt.Errorf("invalid environment variable key")

// ValidateEnvKey checks a variable name.
func ValidateEnvKey(key string) error {
	if !envVarKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidEnvVarKey, key)
	}
	return nil
}

// EnvVar is a single KEY=VALUE pair.
type EnvVar struct {
	Key   string
	Value string
}

// String returns KEY=VALUE, the form exec.Cmd.Env expects.
func (e EnvVar) String() string {
	return e.Key + "=" + e.Value
}

// EnvSlice validates every pair and returns them in exec.Cmd.Env form.
func EnvSlice(vars ...EnvVar) ([]string, error) {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		if err := ValidateEnvKey(v.Key); err != nil {
			return nil, err
		}
		out = append(out, v.String())
	}
	return out, nil
}
