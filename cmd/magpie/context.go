package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/history"
	"magpie/internal/logging"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddr(cfg *config.Config) string {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag)
	}
	return cfg.Paths.APIBind
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(c.apiAddr(cfg), cfg.Paths.APIToken), nil
}

// withStore opens the catalog database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// withRecorder opens the catalog database and the configured history backend.
func (c *commandContext) withRecorder(ctx context.Context, fn func(*config.Config, *catalog.Store, history.Recorder) error) error {
	return c.withStore(func(cfg *config.Config, store *catalog.Store) error {
		recorder, closeRecorder, err := history.Open(ctx, cfg, store.DB())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer closeRecorder()
		return fn(cfg, store, recorder)
	})
}

// cliLogger logs warnings and above to stderr so command output stays clean.
func cliLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func wrapDaemonError(err error, addr string) error {
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `magpie serve`", addr)
	case api.IsUnauthorized(err):
		return fmt.Errorf("connect to daemon: token rejected; check paths.api_token or MAGPIE_API_TOKEN")
	case errors.As(err, &opErr):
		return fmt.Errorf("connect to daemon at %s: %w", addr, err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
