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
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/featurectl/cmd/featurectl/config"
	"github.com/AleutianAI/featurectl/pkg/logging"
	"github.com/AleutianAI/featurectl/pkg/ux"
)

// cli holds the global flags and the session opened for the running
// command.
type cli struct {
	configPath string
	output     string
	verbose    bool

	stdout io.Writer
	stderr io.Writer

	// open builds the session once flags are parsed. Tests replace it.
	open func(ctx context.Context, c *cli, command string, assumeYes bool) (*session, error)

	session *session
}

// session is everything a command needs after configuration is loaded.
type session struct {
	handlers *Handlers
	watch    func(ctx context.Context, onChange func(ctx context.Context)) error
	logger   *logging.Logger
	close    func() error
}

func (c *cli) handlers(cmd *cobra.Command, assumeYes bool) (*Handlers, error) {
	if c.session == nil {
		s, err := c.open(cmd.Context(), c, cmd.Name(), assumeYes)
		if err != nil {
			return nil, err
		}
		c.session = s
	}
	return c.session.handlers, nil
}

func (c *cli) close() error {
	if c.session == nil || c.session.close == nil {
		return nil
	}
	err := c.session.close()
	c.session = nil
	return err
}

// openSession loads configuration and wires the application.
func openSession(ctx context.Context, c *cli, command string, assumeYes bool) (*session, error) {
	path := c.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, created, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	if c.verbose {
		level = logging.LevelDebug
	}
	root := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "featurectl",
		JSON:    cfg.Logging.Format == "json",
		Output:  c.stderr,
	})
	logger, _ := root.ForOperation(command)
	if created {
		logger.Info("wrote default configuration", "path", path)
		ux.Warning("Created " + path + " with defaults; set projects.backend.path and projects.frontend.path")
	}
	if err := logging.FileError(cfg.Logging.Dir); err != nil {
		logger.Warn("file logging disabled", "dir", cfg.Logging.Dir, "error", err)
	}

	opts := AppOptions{}
	if c.verbose {
		opts.Stream = c.stderr
	}
	app, err := NewApp(cfg, logger.Slog(), opts)
	if err != nil {
		_ = root.Close()
		return nil, err
	}

	prompter := choosePrompter(ux.IsInteractive(), ux.GetPersonality() == ux.PersonalityMinimal, assumeYes)
	return &session{
		handlers: NewHandlers(app.Service, prompter, logger.Slog()),
		watch:    app.WatchRecords,
		logger:   logger,
		close: func() error {
			return errors.Join(app.Close(), root.Close())
		},
	}, nil
}

// =============================================================================
// Command Tree
// =============================================================================

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "featurectl",
		Short: "Manage isolated feature environments on a shared Docker host",
		Long: `featurectl creates, deploys, and removes feature groups: per-branch copies
of the backend and frontend stacks, each on its own addresses and served
under its own path by the shared reverse proxy.

Run without arguments on a terminal to open the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ux.InitPersonality(c.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			if !h.prompter.Interactive() {
				return usageErrorf("no command given")
			}
			return h.RunMenu(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ~/.featurectl/featurectl.yaml)")
	flags.StringVarP(&c.output, "output", "o", "", "output style: standard, minimal, or machine")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging and live git/compose output")

	root.AddCommand(
		newListCmd(c),
		newShowCmd(c),
		newCreateCmd(c),
		newDeployCmd(c),
		newStopCmd(c),
		newRemoveCmd(c),
		newMenuCmd(c),
		newProxyCmd(c),
	)
	return root
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list [group-id]",
		Aliases: []string{"ls"},
		Short:   "List feature groups",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.List(cmd.Context(), args...)
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show [group-id]",
		Short: "Show a feature group and the state of its containers",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.Show(cmd.Context(), firstArg(args))
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var backend, frontend string
	var localDB bool

	cmd := &cobra.Command{
		Use:   "create [group-id]",
		Short: "Create a feature group and allocate its addresses",
		Long: `Create records a new feature group and allocates its group number.
Nothing is started; run deploy afterwards.

Branches not given as flags are picked interactively. Use "none" to leave a
tier out.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			opts := CreateOptions{ID: firstArg(args)}
			if cmd.Flags().Changed("backend-branch") {
				opts.BackendBranch = &backend
			}
			if cmd.Flags().Changed("frontend-branch") {
				opts.FrontendBranch = &frontend
			}
			if cmd.Flags().Changed("local-db") {
				opts.UseLocalDB = &localDB
			}
			return h.Create(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend-branch", "b", "", "backend branch, or none")
	cmd.Flags().StringVarP(&frontend, "frontend-branch", "f", "", "frontend branch, or none")
	cmd.Flags().BoolVar(&localDB, "local-db", false, "run a dedicated database for this group")
	return cmd
}

func newDeployCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [group-id]",
		Short: "Check out the group's branches, start its containers, and route it",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.Deploy(cmd.Context(), firstArg(args))
		},
	}
}

func newStopCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [group-id]",
		Short: "Stop the group's containers and keep the group",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.Stop(cmd.Context(), firstArg(args))
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "remove [group-id]",
		Aliases: []string{"rm"},
		Short:   "Delete a group, its containers, database volume, and proxy routes",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, yes)
			if err != nil {
				return err
			}
			return h.Remove(cmd.Context(), firstArg(args), yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newMenuCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Open the interactive menu",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.RunMenu(cmd.Context())
		},
	}
}

func newProxyCmd(c *cli) *cobra.Command {
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Inspect or regenerate the reverse proxy configuration",
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the proxy configuration for the current groups",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			return h.ProxyRender(cmd.Context())
		},
	}

	var force, watch bool
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Rewrite the proxy configuration and reload the proxy",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.handlers(cmd, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := h.ProxySync(ctx, force); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			ux.Info("Watching group records; press Ctrl-C to stop")
			return c.session.watch(ctx, func(ctx context.Context) {
				if err := h.ProxySync(ctx, false); err != nil {
					h.logger.Error("proxy sync failed", "error", err)
					ux.Error(err.Error())
				}
			})
		},
	}
	syncCmd.Flags().BoolVar(&force, "force", false, "reload even if the configuration did not change")
	syncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and resync when group records change")

	proxyCmd.AddCommand(renderCmd, syncCmd)
	return proxyCmd
}

// =============================================================================
// Helpers
// =============================================================================

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// run executes the command line and returns the exit code.
func run(ctx context.Context, c *cli, args []string) int {
	ux.SetOutput(c.stdout, c.stderr)

	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil && c.session != nil && c.session.logger != nil {
		c.session.logger.Error("command failed", "error", err)
	}
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil {
		return ExitOK
	}

	code := exitCode(err)
	if errors.Is(err, ErrAborted) {
		return code
	}
	ux.Error(err.Error())
	if code == ExitUsage && cmd != nil {
		fmt.Fprint(c.stderr, cmd.UsageString())
	}
	return code
}
