package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"

	"magpie/internal/catalog"
	"magpie/internal/logging"
	"magpie/internal/notifications"
)

const defaultDebounce = 500 * time.Millisecond

// Store is the part of the catalog the importer writes to.
type Store interface {
	GetWorkflow(ctx context.Context, id string) (catalog.Workflow, error)
	SaveWorkflow(ctx context.Context, in catalog.WorkflowInput) (catalog.Workflow, error)
	UpdateWorkflow(ctx context.Context, in catalog.WorkflowInput) (catalog.Workflow, error)
}

// Importer turns *.json files dropped into a directory into workflows.
type Importer struct {
	dir      string
	store    Store
	notifier notifications.Service
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option customizes an Importer.
type Option func(*Importer)

// WithDebounce sets how long a file must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(im *Importer) {
		if d > 0 {
			im.debounce = d
		}
	}
}

// WithNotifier publishes import results.
func WithNotifier(n notifications.Service) Option {
	return func(im *Importer) {
		if n != nil {
			im.notifier = n
		}
	}
}

// New builds an importer for dir.
func New(dir string, store Store, logger *slog.Logger, opts ...Option) *Importer {
	im := &Importer{
		dir:      dir,
		store:    store,
		notifier: notifications.Noop(),
		logger:   logging.NewComponentLogger(logger, "importer"),
		debounce: defaultDebounce,
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// WorkflowID derives the stable workflow id for an import file.
func WorkflowID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return "wf_file_" + b.String()
}

func isImportFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}

// ImportFile saves path as a workflow named after the file stem. A file that
// was imported before replaces the stored graph.
func (im *Importer) ImportFile(ctx context.Context, path string) (catalog.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Workflow{}, fmt.Errorf("read %s: %w", path, err)
	}
	base := filepath.Base(path)
	in := catalog.WorkflowInput{
		ID:          WorkflowID(path),
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Description: "Imported from " + base,
		Graph:       data,
	}

	_, err = im.store.GetWorkflow(ctx, in.ID)
	switch {
	case err == nil:
		return im.store.UpdateWorkflow(ctx, in)
	case errors.Is(err, catalog.ErrNotFound):
		return im.store.SaveWorkflow(ctx, in)
	default:
		return catalog.Workflow{}, err
	}
}

// Scan imports every *.json file already present. Invalid files are logged
// and skipped; the count of imported files is returned.
func (im *Importer) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return 0, fmt.Errorf("scan import dir: %w", err)
	}
	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !isImportFile(entry.Name()) {
			continue
		}
		if im.process(ctx, filepath.Join(im.dir, entry.Name())) {
			imported++
		}
	}
	return imported, nil
}

func (im *Importer) process(ctx context.Context, path string) bool {
	wf, err := im.ImportFile(ctx, path)
	if err != nil {
		logging.WarnWithContext(im.logger, "workflow import skipped", "import_failed",
			logging.String("file", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "export the workflow with \"Save (API Format)\""),
			logging.String(logging.FieldImpact, "file ignored until rewritten"),
		)
		im.publish(ctx, notifications.EventImportFailed, notifications.Payload{
			"file":  filepath.Base(path),
			"error": err.Error(),
		})
		return false
	}
	im.logger.Info("workflow imported",
		logging.String("workflow_id", wf.ID),
		logging.String("name", wf.Name),
		logging.Int("nodes", len(wf.Graph)),
	)
	im.publish(ctx, notifications.EventWorkflowImported, notifications.Payload{
		"name":  wf.Name,
		"nodes": strconv.Itoa(len(wf.Graph)),
	})
	return true
}

func (im *Importer) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := im.notifier.Publish(ctx, event, payload); err != nil {
		im.logger.Debug("import notification failed", logging.Error(err))
	}
}

// Start scans the directory and then watches it until Stop or ctx ends.
func (im *Importer) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return nil
	}
	if err := os.MkdirAll(im.dir, 0o755); err != nil {
		return fmt.Errorf("create import dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(im.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", im.dir, err)
	}
	if _, err := im.Scan(ctx); err != nil {
		_ = watcher.Close()
		return err
	}

	im.watcher = watcher
	im.stopCh = make(chan struct{})
	im.doneCh = make(chan struct{})
	im.running = true
	im.logger.Info("watching workflow import directory", logging.String("dir", im.dir))
	go im.run(ctx, watcher, im.stopCh, im.doneCh)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (im *Importer) Stop() {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return
	}
	im.running = false
	stopCh, doneCh, watcher := im.stopCh, im.doneCh, im.watcher
	im.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := watcher.Close(); err != nil {
		im.logger.Warn("close watcher", logging.Error(err))
	}
}

func (im *Importer) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(min(im.debounce, 100*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			im.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			im.logger.Warn("import watcher error", logging.Error(err))
		case <-ticker.C:
			im.flush(ctx)
		}
	}
}

func (im *Importer) handleEvent(event fsnotify.Event) {
	if !isImportFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	im.mu.Lock()
	im.pending[event.Name] = time.Now()
	im.mu.Unlock()
}

func (im *Importer) flush(ctx context.Context) {
	now := time.Now()
	var ready []string
	im.mu.Lock()
	for path, seen := range im.pending {
		if now.Sub(seen) >= im.debounce {
			ready = append(ready, path)
			delete(im.pending, path)
		}
	}
	im.mu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		im.process(ctx, path)
	}
}
