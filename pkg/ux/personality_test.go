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
	"testing"
)

func withPersonality(t *testing.T, level PersonalityLevel) {
	t.Helper()
	orig := GetPersonality()
	SetPersonalityLevel(level)
	t.Cleanup(func() { SetPersonalityLevel(orig) })
}

// =============================================================================
// ParsePersonalityLevel Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"standard", PersonalityStandard},
		{"", PersonalityStandard},
		{"unknown", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"MIN", PersonalityMinimal},
		{" m ", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"plain", PersonalityMachine},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.input); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// InitPersonality Tests
// =============================================================================

func TestInitPersonality_FlagWins(t *testing.T) {
	withPersonality(t, PersonalityStandard)
	t.Setenv(EnvPersonality, "machine")

	InitPersonality("minimal")

	if GetPersonality() != PersonalityMinimal {
		t.Errorf("expected minimal, got %v", GetPersonality())
	}
}

func TestInitPersonality_Env(t *testing.T) {
	withPersonality(t, PersonalityStandard)
	t.Setenv(EnvPersonality, "machine")

	InitPersonality("")

	if GetPersonality() != PersonalityMachine {
		t.Errorf("expected machine, got %v", GetPersonality())
	}
}

func TestIsTerminal_Nil(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("nil file is not a terminal")
	}
}

func TestIsInteractive_MachineNeverPrompts(t *testing.T) {
	withPersonality(t, PersonalityMachine)

	if IsInteractive() {
		t.Error("machine personality must not be interactive")
	}
}
