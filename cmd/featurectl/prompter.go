// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNonInteractive is returned when input is needed but no terminal is
// available to ask for it.
var ErrNonInteractive = errors.New("input required but not running interactively")

// ErrAborted is returned when the operator cancels a prompt.
var ErrAborted = errors.New("aborted")

// UserPrompter asks the operator for input.
type UserPrompter interface {
	// Confirm asks a yes/no question. The default answer is no.
	Confirm(ctx context.Context, question string) (bool, error)

	// Input asks for free text. validate may be nil.
	Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error)

	// Select asks for one of options.
	Select(ctx context.Context, title string, options []string) (string, error)

	// Interactive reports whether the prompter can ask anything at all.
	Interactive() bool
}

// -----------------------------------------------------------------------------
// huh
// -----------------------------------------------------------------------------

// FormPrompter uses huh forms on a terminal.
type FormPrompter struct{}

func (FormPrompter) Interactive() bool { return true }

func (FormPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := runForm(ctx, field); err != nil {
		return false, err
	}
	return ok, nil
}

func (FormPrompter) Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error) {
	var value string
	field := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value)
	if validate != nil {
		field = field.Validate(func(s string) error { return validate(strings.TrimSpace(s)) })
	}
	if err := runForm(ctx, field); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (FormPrompter) Select(ctx context.Context, title string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%s: nothing to choose from", title)
	}
	var choice string
	field := huh.NewSelect[string]().
		Title(title).
		Options(huh.NewOptions(options...)...).
		Height(min(len(options)+2, 15)).
		Value(&choice)
	if err := runForm(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

func runForm(ctx context.Context, field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).
		WithShowHelp(false).
		RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

// -----------------------------------------------------------------------------
// Line-based
// -----------------------------------------------------------------------------

// LinePrompter reads plain lines. Used with --output minimal and in
// terminals that cannot draw forms.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter reads from stdin and writes to stderr.
func NewLinePrompter() *LinePrompter {
	return NewLinePrompterWithIO(os.Stdin, os.Stderr)
}

// NewLinePrompterWithIO is NewLinePrompter over arbitrary streams.
func NewLinePrompterWithIO(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Interactive() bool { return true }

func (p *LinePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.readLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *LinePrompter) Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error) {
	for {
		if placeholder != "" {
			fmt.Fprintf(p.out, "%s (%s): ", title, placeholder)
		} else {
			fmt.Fprintf(p.out, "%s: ", title)
		}
		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrAborted
			}
			return "", err
		}
		if validate == nil {
			return line, nil
		}
		if verr := validate(line); verr != nil {
			fmt.Fprintf(p.out, "  %v\n", verr)
			continue
		}
		return line, nil
	}
}

func (p *LinePrompter) Select(ctx context.Context, title string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%s: nothing to choose from", title)
	}
	fmt.Fprintln(p.out, title)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}
	for {
		fmt.Fprintf(p.out, "Choice [1-%d]: ", len(options))
		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrAborted
			}
			return "", err
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, opt := range options {
			if opt == line {
				return opt, nil
			}
		}
		fmt.Fprintf(p.out, "  %q is not one of the choices\n", line)
	}
}

// readLine returns the next trimmed line. A final line without newline is
// returned as is; only an empty read at EOF yields io.EOF.
func (p *LinePrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// -----------------------------------------------------------------------------
// Non-interactive
// -----------------------------------------------------------------------------

// NonInteractivePrompter answers confirmations with AssumeYes and refuses
// everything else.
type NonInteractivePrompter struct {
	AssumeYes bool
}

func (p NonInteractivePrompter) Interactive() bool { return false }

func (p NonInteractivePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.AssumeYes {
		return true, nil
	}
	return false, fmt.Errorf("%s: %w (pass --yes)", question, ErrNonInteractive)
}

func (p NonInteractivePrompter) Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error) {
	return "", fmt.Errorf("%s: %w", strings.ToLower(title), ErrNonInteractive)
}

func (p NonInteractivePrompter) Select(ctx context.Context, title string, options []string) (string, error) {
	return "", fmt.Errorf("%s: %w", strings.ToLower(title), ErrNonInteractive)
}

// -----------------------------------------------------------------------------
// Selection
// -----------------------------------------------------------------------------

// choosePrompter picks forms on a full terminal, plain lines when the
// output level is minimal, and no prompting otherwise.
func choosePrompter(interactive bool, minimal bool, assumeYes bool) UserPrompter {
	switch {
	case !interactive:
		return NonInteractivePrompter{AssumeYes: assumeYes}
	case minimal:
		return NewLinePrompter()
	default:
		return FormPrompter{}
	}
}
