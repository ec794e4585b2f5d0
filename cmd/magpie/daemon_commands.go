package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"magpie/internal/daemonctl"
)

const (
	startWaitTimeout = 15 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
	}
}

func (c *commandContext) launchOptions() daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if c.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*c.configFlag)
	}
	if c.addrFlag != nil {
		opts.Addr = strings.TrimSpace(*c.addrFlag)
	}
	return opts
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			res, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, ctx.launchOptions(), startWaitTimeout)
			if err != nil {
				return err
			}
			if res.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (pid %d)\n", res.PID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", res.PID)
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			res, err := daemonctl.StopAndTerminate(cmd.Context(), client, cfg, stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon did not exit in %s; killed pid %d\n", stopGracePeriod, res.PID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon stopped (pid %d)\n", res.PID)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			res, err := daemonctl.Restart(cmd.Context(), client, cfg, exe, ctx.launchOptions(), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			if !res.WasRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon was not running")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", res.Start.PID)
			return nil
		},
	}
}
