package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/preflight"
)

type statusReport struct {
	Daemon *api.DaemonStatus  `json:"daemon,omitempty"`
	Checks []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and run preflight checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report statusReport
			var daemonErr error

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			statusCtx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			status, err := client.Status(statusCtx)
			cancel()
			if err == nil {
				report.Daemon = &status
			} else {
				daemonErr = err
			}

			err = ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				backends, err := store.ListBackends(cmd.Context())
				if err != nil {
					return err
				}
				report.Checks = preflight.RunAll(cmd.Context(), cfg, backends)
				return nil
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, report)
			}
			cfg, _ := ctx.ensureConfig()
			printStatus(cmd, report, daemonErr, ctx.apiAddr(cfg))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, report statusReport, daemonErr error, addr string) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	lines := renderSectionHeader("Daemon", colorize)
	if report.Daemon == nil {
		lines = append(lines, renderStatusLine("Daemon", statusInfo, daemonDetail(daemonErr, addr), colorize))
	} else {
		d := report.Daemon
		lines = append(lines,
			renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", d.PID), colorize),
			renderStatusLine("API", statusInfo, d.APIAddress, colorize),
			renderStatusLine("Database", statusInfo, d.DatabasePath, colorize),
			renderStatusLine("History", statusInfo, fmt.Sprintf("%s, %d records", d.HistoryBackend, d.Counts.History), colorize),
			renderStatusLine("Catalog", statusInfo, fmt.Sprintf("%d workflows, %d pages, %d backends",
				d.Counts.Workflows, d.Counts.Pages, d.Counts.Backends), colorize),
		)
		if d.ImportDir != "" {
			lines = append(lines, renderStatusLine("Import folder", statusInfo, d.ImportDir, colorize))
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	for _, r := range report.Checks {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func daemonDetail(err error, addr string) string {
	if err == nil {
		return "Not running"
	}
	if api.IsUnauthorized(err) {
		return "Running, but the API token was rejected"
	}
	return fmt.Sprintf("Not running (no answer on %s)", addr)
}
