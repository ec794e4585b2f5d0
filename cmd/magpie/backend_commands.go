package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/preflight"
)

func newBackendCommand(ctx *commandContext) *cobra.Command {
	backendCmd := &cobra.Command{
		Use:     "backend",
		Aliases: []string{"backends", "server"},
		Short:   "Manage generation backends",
	}
	backendCmd.AddCommand(newBackendListCommand(ctx))
	backendCmd.AddCommand(newBackendAddCommand(ctx))
	backendCmd.AddCommand(newBackendRemoveCommand(ctx))
	backendCmd.AddCommand(newBackendCheckCommand(ctx))
	return backendCmd
}

func newBackendListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				backends, err := store.ListBackends(cmd.Context())
				if err != nil {
					return err
				}
				if len(backends) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No backends configured")
					return nil
				}
				rows := make([][]string, 0, len(backends))
				for _, b := range backends {
					depts := strings.Join(b.AllowedDepartments, ", ")
					if depts == "" {
						depts = "all"
					}
					rows = append(rows, []string{b.ID, b.Name, b.URL, yesNo(b.Enabled), depts})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "URL", "Enabled", "Departments"}, rows, nil))
				return nil
			})
		},
	}
}

func newBackendAddCommand(ctx *commandContext) *cobra.Command {
	var id string
	var departments []string
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add or update a backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				saved, err := store.SaveBackend(cmd.Context(), catalog.Backend{
					ID:                 id,
					Name:               args[0],
					URL:                args[1],
					AllowedDepartments: departments,
					Enabled:            !disabled,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved backend %s (%s)\n", saved.ID, saved.URL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Backend id (generated when empty; an existing id is updated)")
	cmd.Flags().StringSliceVar(&departments, "department", nil, "Restrict to departments (repeatable)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the backend switched off")
	return cmd
}

func newBackendRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a backend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				if err := store.DeleteBackend(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed backend %s\n", args[0])
				return nil
			})
		},
	}
}

func newBackendCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [id]",
		Short: "Probe backend reachability",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				backends, err := store.ListBackends(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 1 {
					backends = filterBackends(backends, args[0])
					if len(backends) == 0 {
						return fmt.Errorf("%w: backend %q", catalog.ErrNotFound, args[0])
					}
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				failed := 0
				for _, b := range backends {
					result := preflight.CheckBackend(cmd.Context(), cfg, b)
					kind := statusOK
					if !result.Passed {
						kind = statusError
						failed++
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d backend(s) unreachable", failed, len(backends))
				}
				return nil
			})
		},
	}
}

func filterBackends(backends []catalog.Backend, id string) []catalog.Backend {
	for _, b := range backends {
		if b.ID == id {
			return []catalog.Backend{b}
		}
	}
	return nil
}
