// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders featurectl's user-facing output.
//
// Logs go to stderr through pkg/logging; everything the operator is meant
// to read goes through here and respects the personality level.
package ux

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette
var (
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorBright  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Key       lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	Header     lipgloss.Style
	Cell       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBright).Bold(true),
	Key:       lipgloss.NewStyle().Foreground(ColorPrimary).Width(18),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon provides status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Destinations
// =============================================================================

var (
	stdout  io.Writer = os.Stdout
	stderr  io.Writer = os.Stderr
	writeMu sync.Mutex
)

// SetOutput redirects output. Nil keeps the current writer.
func SetOutput(out, errOut io.Writer) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

func printOut(format string, args ...any) {
	writeMu.Lock()
	defer writeMu.Unlock()
	fmt.Fprintf(stdout, format, args...)
}

func printErr(format string, args ...any) {
	writeMu.Lock()
	defer writeMu.Unlock()
	fmt.Fprintf(stderr, format, args...)
}

// =============================================================================
// Print helpers that respect personality level
// =============================================================================

// Title prints a styled title
func Title(text string) {
	if GetPersonality() == PersonalityMachine {
		return
	}
	printOut("%s\n", Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		printOut("OK: %s\n", text)
	case PersonalityMinimal:
		printOut("%s %s\n", IconSuccess.Render(), text)
	default:
		printOut("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		printErr("WARN: %s\n", text)
	case PersonalityMinimal:
		printOut("%s %s\n", IconWarning.Render(), text)
	default:
		printOut("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message to stderr
func Error(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		printErr("ERROR: %s\n", text)
	case PersonalityMinimal:
		printErr("%s %s\n", IconError.Render(), text)
	default:
		printErr("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if GetPersonality() == PersonalityMachine {
		printOut("%s\n", text)
		return
	}
	printOut("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text; suppressed for machines
func Muted(text string) {
	if GetPersonality() == PersonalityMachine {
		return
	}
	printOut("%s\n", Styles.Muted.Render(text))
}

// Plain prints text unchanged at every level, e.g. generated files
func Plain(text string) {
	printOut("%s", text)
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality() == PersonalityMachine {
		printOut("%s: %s\n", title, content)
		return
	}
	printOut("%s\n", Styles.Box.Width(64).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if GetPersonality() == PersonalityMachine {
		printErr("WARN %s: %s\n", title, content)
		return
	}
	printOut("%s\n", Styles.WarningBox.Width(64).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// KeyValue is one row of a KeyValues block.
type KeyValue struct {
	Key   string
	Value string
}

// KeyValues prints aligned key/value pairs. Machine output is key=value.
func KeyValues(pairs []KeyValue) {
	var b strings.Builder
	for _, kv := range pairs {
		if GetPersonality() == PersonalityMachine {
			fmt.Fprintf(&b, "%s=%s\n", kv.Key, kv.Value)
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", Styles.Key.Render(kv.Key), kv.Value)
	}
	printOut("%s", b.String())
}

// Table prints rows under headers. Machine output is tab-separated without
// a header.
func Table(headers []string, rows [][]string) {
	if GetPersonality() == PersonalityMachine {
		var b strings.Builder
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		printOut("%s", b.String())
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		})
	printOut("%s\n", t.Render())
}

// StateIcon maps a container state to an icon.
func StateIcon(state, health string) Icon {
	switch {
	case health == "unhealthy":
		return IconError
	case state == "running":
		return IconSuccess
	case state == "" || state == "created":
		return IconPending
	default:
		return IconWarning
	}
}

// SortedKeys returns the keys of m in order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
