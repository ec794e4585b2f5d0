package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

// configNextSteps is printed after `config init`, one line per section that
// usually needs attention before the first generation.
var configNextSteps = []string{
	"[paths]         set workflow_import_dir to have magpied import exported workflow JSON",
	"[paths]         set api_token (or MAGPIE_API_TOKEN) before binding the API beyond loopback",
	"[gemini]        set api_key (or GEMINI_API_KEY) to enable image analysis and hosted generation",
	"[history]       switch backend to \"redis\" and set redis_url to share history between hosts",
	"[notifications] set ntfy_topic to receive generation and import notifications",
	"then register a backend with `magpie backend add <name> <url>`",
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n\nNext steps:\n", target)
			for _, step := range configNextSteps {
				fmt.Fprintf(out, "  %s\n", step)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func resolveConfigTarget(flagValue string) (string, error) {
	target := strings.TrimSpace(flagValue)
	if target == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration and summarize effective settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, configSummary(cfg), nil))
			for _, note := range configAdvisories(cfg) {
				fmt.Fprintf(out, "note: %s\n", note)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func configSummary(cfg *config.Config) [][]string {
	importDir := cfg.Paths.WorkflowImportDir
	if importDir == "" {
		importDir = "-"
	}
	history := cfg.History.Backend
	if history == "redis" {
		history += " (" + cfg.History.RedisKey + ")"
	}
	return [][]string{
		{"database", cfg.DatabasePath()},
		{"log dir", cfg.Paths.LogDir},
		{"import dir", importDir},
		{"api bind", cfg.Paths.APIBind},
		{"api token", yesNo(cfg.Paths.APIToken != "")},
		{"poll budget", fmt.Sprintf("%d x %ds, %d errors", cfg.Generation.MaxPollTicks, cfg.Generation.PollIntervalSeconds, cfg.Generation.MaxPollErrors)},
		{"strict mappings", yesNo(cfg.Generation.StrictMappings)},
		{"gemini", yesNo(cfg.Gemini.APIKey != "")},
		{"history", history + ", limit " + strconv.Itoa(cfg.History.Limit)},
		{"ntfy topic", yesNo(cfg.Notifications.NtfyTopic != "")},
		{"logging", cfg.Logging.Format + "/" + cfg.Logging.Level},
	}
}

// configAdvisories lists valid but probably unintended settings.
func configAdvisories(cfg *config.Config) []string {
	var notes []string
	if cfg.Gemini.APIKey == "" {
		notes = append(notes, "gemini.api_key is empty; analyze and hosted image endpoints are disabled")
	}
	if cfg.Paths.APIToken == "" && !isLoopbackBind(cfg.Paths.APIBind) {
		notes = append(notes, fmt.Sprintf("paths.api_token is empty while the API binds %s", cfg.Paths.APIBind))
	}
	if cfg.Paths.WorkflowImportDir == "" {
		notes = append(notes, "paths.workflow_import_dir is unset; import workflows with `magpie workflow import`")
	}
	return notes
}

func isLoopbackBind(bind string) bool {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
