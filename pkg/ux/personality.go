// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the verbosity and richness of CLI output
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons, boxes, and tables
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and basic formatting only
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain tab-separated text for scripting
	PersonalityMachine PersonalityLevel = "machine"
)

// EnvPersonality overrides the detected level.
const EnvPersonality = "FEATURECTL_PERSONALITY"

var (
	currentLevel  = PersonalityStandard
	personalityMu sync.RWMutex
)

// GetPersonality returns the current level
func GetPersonality() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the current level
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q", "plain":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the level from, in order: the explicit flag value,
// FEATURECTL_PERSONALITY, and whether stdout is a terminal.
func InitPersonality(flag string) {
	if flag != "" {
		SetPersonalityLevel(ParsePersonalityLevel(flag))
		return
	}
	if env := os.Getenv(EnvPersonality); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityStandard)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if prompts can be shown: stdin and stdout are
// terminals and the output is not meant for a machine.
func IsInteractive() bool {
	return GetPersonality() != PersonalityMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}
