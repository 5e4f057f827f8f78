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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/lifecycle"
)

func TestRunMenu_RunsOperationsUntilExit(t *testing.T) {
	out, _ := captureUX(t)
	svc := &mockService{groups: sampleGroups()}
	p := &scriptedPrompter{
		interactive: true,
		selects:     []string{menuList, menuDeploy, "feat-42", menuExit},
	}

	require.NoError(t, newTestHandlers(svc, p).RunMenu(context.Background()))

	assert.Equal(t, []string{"list", "list", "deploy feat-42"}, svc.calls)
	assert.Contains(t, out.String(), "alpha\t20")
	assert.Contains(t, out.String(), "OK: backend tier of feat-42 is up")
}

func TestRunMenu_ContinuesAfterFailure(t *testing.T) {
	_, errOut := captureUX(t)
	svc := &mockService{
		groups: sampleGroups(),
		DeployFunc: func(id string) (lifecycle.DeployReport, error) {
			return lifecycle.DeployReport{}, errors.New("template missing")
		},
	}
	p := &scriptedPrompter{
		interactive: true,
		selects:     []string{menuDeploy, "alpha", menuStop, "alpha", menuExit},
	}

	require.NoError(t, newTestHandlers(svc, p).RunMenu(context.Background()))

	assert.Contains(t, errOut.String(), "ERROR: template missing")
	assert.Contains(t, svc.calls, "stop alpha")
}

func TestRunMenu_AbortedPromptReturnsToMenu(t *testing.T) {
	captureUX(t)
	svc := &mockService{groups: sampleGroups()}
	// Create asks for an id; the empty input queue aborts it.
	p := &scriptedPrompter{interactive: true, selects: []string{menuCreate, menuExit}}

	require.NoError(t, newTestHandlers(svc, p).RunMenu(context.Background()))
	assert.NotContains(t, svc.calls, "create")
}

func TestRunMenu_AbortExits(t *testing.T) {
	captureUX(t)
	p := &scriptedPrompter{interactive: true}

	assert.NoError(t, newTestHandlers(&mockService{}, p).RunMenu(context.Background()))
}

func TestRunMenu_NeedsTerminal(t *testing.T) {
	captureUX(t)

	err := newTestHandlers(&mockService{}, &scriptedPrompter{}).RunMenu(context.Background())
	assert.Equal(t, ExitUsage, exitCode(err))
}

func TestRunMenu_CancelledContext(t *testing.T) {
	captureUX(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestHandlers(&mockService{}, &scriptedPrompter{interactive: true}).RunMenu(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
