package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"magpie/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "magpie.log")
			out := cmd.OutOrStdout()
			emit := func(batch []string) {
				for _, line := range batch {
					if raw {
						fmt.Fprintln(out, line)
						continue
					}
					entry, _ := logs.ParseEntry(line)
					if filter.Match(entry) {
						fmt.Fprintln(out, entry.Format())
					}
				}
			}

			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			emit(result.Lines)
			offset := result.Offset
			for follow {
				result, err = logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				emit(result.Lines)
				offset = result.Offset
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	flags.BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	flags.BoolVar(&raw, "raw", false, "Print JSON lines unmodified")
	flags.StringVar(&filter.Level, "level", "", "Minimum level (debug, info, warn, error)")
	flags.StringVar(&filter.Component, "component", "", "Only show one component")
	flags.StringVar(&filter.PageID, "page", "", "Only show one page")
	flags.StringVar(&filter.PromptID, "prompt-id", "", "Only show one job")
	flags.StringVar(&filter.Search, "search", "", "Case-insensitive message substring")
	return cmd
}
