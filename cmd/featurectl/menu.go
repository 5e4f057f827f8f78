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
	"fmt"

	"github.com/AleutianAI/featurectl/pkg/ux"
)

const (
	menuList   = "List groups"
	menuShow   = "Show a group"
	menuCreate = "Create a group"
	menuDeploy = "Deploy a group"
	menuStop   = "Stop a group"
	menuRemove = "Remove a group"
	menuExit   = "Exit"
)

var menuItems = []string{menuList, menuShow, menuCreate, menuDeploy, menuStop, menuRemove, menuExit}

// RunMenu offers the operations until the operator exits. A failed
// operation is reported and the menu continues.
func (h *Handlers) RunMenu(ctx context.Context) error {
	if !h.prompter.Interactive() {
		return usageErrorf("the menu needs a terminal; run featurectl --help for commands")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		choice, err := h.prompter.Select(ctx, "featurectl", menuItems)
		if errors.Is(err, ErrAborted) || (err == nil && choice == menuExit) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := h.runMenuItem(ctx, choice); err != nil {
			if errors.Is(err, ErrAborted) {
				continue
			}
			if ctx.Err() != nil {
				return err
			}
			h.logger.Error("operation failed", "operation", choice, "error", err)
			ux.Error(err.Error())
		}
	}
}

func (h *Handlers) runMenuItem(ctx context.Context, choice string) error {
	switch choice {
	case menuList:
		return h.List(ctx)
	case menuShow:
		return h.Show(ctx, "")
	case menuCreate:
		return h.Create(ctx, CreateOptions{})
	case menuDeploy:
		return h.Deploy(ctx, "")
	case menuStop:
		return h.Stop(ctx, "")
	case menuRemove:
		return h.Remove(ctx, "", false)
	default:
		return fmt.Errorf("unknown menu item %q", choice)
	}
}
