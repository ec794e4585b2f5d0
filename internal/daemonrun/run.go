package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/daemon"
	"magpie/internal/gemini"
	"magpie/internal/history"
	"magpie/internal/logging"
	"magpie/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the magpie daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		JSONFile:    filepath.Join(cfg.Paths.LogDir, "magpie.log"),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer store.Close()

	recorder, closeRecorder, err := history.Open(signalCtx, cfg, store.DB())
	if err != nil {
		logger.Error("open history recorder", logging.Error(err))
		return err
	}
	defer closeRecorder()

	var daemonOpts []daemon.Option
	if imager, err := newImager(signalCtx, cfg, logger); err == nil {
		daemonOpts = append(daemonOpts, daemon.WithImager(imager))
	} else {
		logging.WarnWithContext(logger, "hosted model disabled", "gemini_disabled",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set gemini.api_key or GEMINI_API_KEY"),
			logging.String(logging.FieldImpact, "analysis, image generation and outfit endpoints return 400"),
		)
	}

	logStartupSnapshot(signalCtx, logger, cfg, store)

	d, err := daemon.New(cfg, store, recorder, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped with error", logging.Error(err))
		return err
	}
	logger.Info("magpie daemon shut down")
	return nil
}

func newImager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gemini.Client, error) {
	return gemini.NewClient(ctx, gemini.ConfigFrom(cfg), logger)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartupSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *catalog.Store) {
	backends, err := store.ListBackends(ctx)
	if err != nil {
		logger.Warn("list backends for startup snapshot", logging.Error(err))
		return
	}
	results := preflight.RunAll(ctx, cfg, backends)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run magpie status for details"),
			logging.String(logging.FieldImpact, "affected features will fail until fixed"),
		)
	}
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("database", store.Path()),
		logging.String("history_backend", cfg.History.Backend),
		logging.Bool("gemini_key_present", strings.TrimSpace(cfg.Gemini.APIKey) != ""),
		logging.Int("backends", len(backends)),
		logging.Bool("preflight_ok", !preflight.Failed(results)),
	)
}
