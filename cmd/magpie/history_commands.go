package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRecorder(cmd.Context(), func(_ *config.Config, _ *catalog.Store, recorder history.Recorder) error {
				records, err := recorder.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No generations recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistoryTable(records, time.Now()))
				return nil
			})
		},
	}
	historyCmd.Flags().BoolVar(&jsonOut, "json", false, "Output history as JSON")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRecorder(cmd.Context(), func(_ *config.Config, _ *catalog.Store, recorder history.Recorder) error {
				if err := recorder.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			})
		},
	})
	return historyCmd
}

func renderHistoryTable(records []history.Record, now time.Time) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		size := ""
		if r.Width > 0 && r.Height > 0 {
			size = strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
		}
		rows = append(rows, []string{
			r.ID,
			r.MenuID,
			truncate(r.Prompt, 40),
			size,
			humanize.RelTime(r.Timestamp, now, "ago", "from now"),
		})
	}
	return renderTable([]string{"ID", "Page", "Prompt", "Size", "When"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
