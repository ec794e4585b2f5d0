package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/gemini"
	"magpie/internal/generation"
	"magpie/internal/history"
	"magpie/internal/importer"
	"magpie/internal/logging"
	"magpie/internal/notifications"
	"magpie/internal/preflight"
)

// Imager is the hosted model surface served under /api/analyze and /api/images.
type Imager interface {
	AnalyzeImage(ctx context.Context, img gemini.Image) (gemini.Analysis, error)
	GenerateImage(ctx context.Context, prompt string, variant gemini.Variant, aspectRatio string) (gemini.Image, error)
	ChangeOutfit(ctx context.Context, person, garment gemini.Image, prompt string, variant gemini.Variant) (gemini.Image, error)
}

// Daemon serves the studio API and watches the workflow import directory.
// A file lock enforces a single instance per data directory.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *catalog.Store
	recorder  history.Recorder
	generator *generation.Service
	imager    Imager
	importer  *importer.Importer
	notifier  notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	mu      sync.Mutex
	addr    string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithImager enables the hosted model endpoints.
func WithImager(imager Imager) Option {
	return func(d *Daemon) {
		d.imager = imager
	}
}

// WithGenerator replaces the generation service built from configuration.
func WithGenerator(svc *generation.Service) Option {
	return func(d *Daemon) {
		if svc != nil {
			d.generator = svc
		}
	}
}

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, recorder history.Recorder, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || recorder == nil {
		return nil, errors.New("daemon requires config, store and history recorder")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		recorder: recorder,
		notifier: notifications.NewService(cfg),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.generator == nil {
		d.generator = generation.NewService(cfg, store, recorder, logger, generation.WithNotifier(d.notifier))
	}
	if dir := strings.TrimSpace(cfg.Paths.WorkflowImportDir); dir != "" {
		d.importer = importer.New(dir, store, logger, importer.WithNotifier(d.notifier))
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Run acquires the lock, then serves the API and the importer until ctx is
// cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another magpie daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	listener, err := d.api.listen()
	if err != nil {
		return err
	}
	d.setAddr(listener.Addr().String())
	defer d.setAddr("")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.api.serve(gctx, listener)
	})
	if d.importer != nil {
		g.Go(func() error {
			if err := d.importer.Start(gctx); err != nil {
				return fmt.Errorf("start workflow importer: %w", err)
			}
			<-gctx.Done()
			d.importer.Stop()
			return nil
		})
	}

	d.logger.Info("magpie daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", listener.Addr().String()),
	)
	err = g.Wait()
	d.logger.Info("magpie daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler exposes the API routes, including authentication.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Addr returns the API listen address while running.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

func (d *Daemon) setAddr(addr string) {
	d.mu.Lock()
	d.addr = addr
	d.mu.Unlock()
}

// Status returns the current daemon status. Preflight checks run only when
// withChecks is set since they contact every backend.
func (d *Daemon) Status(ctx context.Context, withChecks bool) (api.DaemonStatus, error) {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.store.Path(),
		LockFilePath:   d.lockPath,
		APIAddress:     d.Addr(),
		ImportDir:      d.cfg.Paths.WorkflowImportDir,
		HistoryBackend: d.cfg.History.Backend,
	}
	versions, err := d.store.SchemaVersions(ctx)
	if err != nil {
		return status, err
	}
	status.SchemaVersions = versions

	workflows, err := d.store.ListWorkflows(ctx)
	if err != nil {
		return status, err
	}
	pages, err := d.store.ListPages(ctx)
	if err != nil {
		return status, err
	}
	backends, err := d.store.ListBackends(ctx)
	if err != nil {
		return status, err
	}
	records, err := d.recorder.List(ctx)
	if err != nil {
		return status, err
	}
	status.Counts = api.Counts{
		Workflows: len(workflows),
		Pages:     len(pages),
		Backends:  len(backends),
		History:   len(records),
	}
	if withChecks {
		status.Checks = preflight.RunAll(ctx, d.cfg, backends)
	}
	return status, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
