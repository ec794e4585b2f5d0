package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"magpie/internal/catalog"
	"magpie/internal/comfy"
	"magpie/internal/config"
	"magpie/internal/history"
	"magpie/internal/logging"
	"magpie/internal/notifications"
	"magpie/internal/services"
	"magpie/internal/workflow"
)

// Catalog is the read side of the catalog store used for generation.
type Catalog interface {
	GetPage(ctx context.Context, id string) (catalog.Page, error)
	GetWorkflow(ctx context.Context, id string) (catalog.Workflow, error)
	ListBackends(ctx context.Context) ([]catalog.Backend, error)
}

// Request is one user-initiated generation.
type Request struct {
	PageID string
	// Department restricts backend selection to servers that allow it.
	Department string
	Values     workflow.Values
	// Image is uploaded when the page maps the imageUpload module.
	Image     io.Reader
	ImageName string
}

// Job is one submission to a backend.
type Job struct {
	ID         string         `json:"clientId"`
	PromptID   string         `json:"promptId"`
	BackendURL string         `json:"backendUrl"`
	Graph      workflow.Graph `json:"-"`
}

// Result is a finished generation.
type Result struct {
	Job     Job            `json:"job"`
	Outputs comfy.Outputs  `json:"outputs"`
	Record  history.Record `json:"record"`
	Ticks   int            `json:"ticks"`
}

// Option customizes the service.
type Option func(*Service)

// WithBackendFactory overrides how backend clients are built.
func WithBackendFactory(factory BackendFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newBackend = factory
		}
	}
}

// WithPoller overrides the polling session settings.
func WithPoller(p *Poller) Option {
	return func(s *Service) {
		if p != nil {
			s.poller = p
		}
	}
}

// WithNotifier publishes generation results.
func WithNotifier(n notifications.Service) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithInjector overrides the parameter injector.
func WithInjector(i *workflow.Injector) Option {
	return func(s *Service) {
		if i != nil {
			s.injector = i
		}
	}
}

// WithRandom overrides backend selection randomness.
func WithRandom(intn func(int) int) Option {
	return func(s *Service) {
		s.intn = intn
	}
}

// Service orchestrates upload, injection, submission, polling and history.
type Service struct {
	catalog    Catalog
	recorder   history.Recorder
	newBackend BackendFactory
	injector   *workflow.Injector
	poller     *Poller
	notifier   notifications.Service
	intn       func(int) int
	logger     *slog.Logger
}

// NewService wires a generation service from configuration.
func NewService(cfg *config.Config, cat Catalog, recorder history.Recorder, logger *slog.Logger, opts ...Option) *Service {
	logger = logging.NewComponentLogger(logger, "generation")
	s := &Service{
		catalog:    cat,
		recorder:   recorder,
		newBackend: ComfyFactory(comfy.ConfigFrom(cfg, ""), nil),
		injector: workflow.NewInjector(cfg.Generation.SeedKeys,
			workflow.WithStrictMappings(cfg.Generation.StrictMappings)),
		poller: NewPoller(PollerConfig{
			Interval:  cfg.PollInterval(),
			MaxTicks:  cfg.Generation.MaxPollTicks,
			MaxErrors: cfg.Generation.MaxPollErrors,
		}, logger),
		notifier: notifications.NewService(cfg),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one generation to completion. Configuration problems are
// reported before any network call.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	ctx = services.WithPageID(ctx, req.PageID)
	result, err := s.generate(ctx, req)
	if err != nil {
		logger := logging.WithContext(ctx, s.logger)
		logging.WarnWithContext(logger, "generation failed", "generation_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, Hint(err)),
			logging.String(logging.FieldImpact, "no image was produced"),
		)
		s.publish(ctx, notifications.EventGenerationFailed, notifications.Payload{"page": req.PageID, "error": err})
		return Result{}, err
	}
	s.publish(ctx, notifications.EventGenerationCompleted, notifications.Payload{
		"page":     req.PageID,
		"prompt":   result.Record.Prompt,
		"imageUrl": result.Outputs.ImageURL(),
	})
	return result, nil
}

func (s *Service) generate(ctx context.Context, req Request) (Result, error) {
	page, err := s.catalog.GetPage(ctx, req.PageID)
	if err != nil {
		return Result{}, err
	}
	if !page.Enabled || page.WorkflowID == "" {
		return Result{}, fmt.Errorf("%w: page %q has no workflow bound; bind one under admin → pages", ErrPageNotReady, page.ID)
	}
	wf, err := s.catalog.GetWorkflow(ctx, page.WorkflowID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: workflow %q bound to page %q is missing", ErrPageNotReady, page.WorkflowID, page.ID)
	}
	if err != nil {
		return Result{}, err
	}
	backends, err := s.catalog.ListBackends(ctx)
	if err != nil {
		return Result{}, err
	}
	chosen, err := SelectBackend(backends, req.Department, s.intn)
	if err != nil {
		return Result{}, err
	}

	backend := s.newBackend(chosen.URL)
	logger := logging.WithContext(ctx, s.logger).With(logging.String("backend", chosen.URL))
	values := req.Values

	if req.Image != nil && !page.InputMappings[workflow.ModuleImageUpload].IsZero() {
		stageCtx := services.WithStage(ctx, "upload")
		name, err := backend.UploadImage(stageCtx, req.ImageName, req.Image)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("generation cancelled: %w", ctxErr)
			}
			return Result{}, fmt.Errorf("%w: %w", ErrUpload, err)
		}
		values.UploadedImage = name
		logger.Debug("reference image uploaded", logging.String("filename", name))
	}

	var enabled map[workflow.Module]bool
	if len(page.Layout.Modules) > 0 {
		enabled = page.Layout.EnabledModules()
		if values.UploadedImage != "" {
			enabled[workflow.ModuleImageUpload] = true
		}
	}
	graph, err := s.injector.Inject(wf.Graph, page.InputMappings, values, enabled)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPageNotReady, err)
	}

	job := Job{ID: "client_" + uuid.NewString(), BackendURL: chosen.URL, Graph: graph}
	queued, err := backend.QueuePrompt(services.WithStage(ctx, "submit"), job.ID, graph)
	if err != nil {
		return Result{}, classifySubmitError(err)
	}
	job.PromptID = queued.PromptID
	ctx = services.WithPromptID(ctx, job.PromptID)
	logger.Info("job submitted",
		logging.String(logging.FieldPromptID, job.PromptID),
		logging.String("client_id", job.ID),
		logging.String("workflow_id", wf.ID),
	)

	outcome, err := s.poller.Poll(services.WithStage(ctx, "poll"), backend, job.PromptID,
		page.OutputNodeID, page.InputMappings[workflow.ModuleTextOutput].NodeID)
	if err != nil {
		return Result{}, err
	}

	record := history.Record{
		ID:         job.PromptID,
		ImageURL:   outcome.Outputs.ImageURL(),
		TextOutput: outcome.Outputs.Text,
		Prompt:     strings.TrimSpace(req.Values.Prompt),
		Timestamp:  time.Now().UTC(),
		Width:      req.Values.Width,
		Height:     req.Values.Height,
		MenuID:     page.ID,
	}
	if record.Prompt == "" {
		record.Prompt = history.DefaultPrompt
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, record); err != nil {
			logging.WarnWithContext(logger, "history append failed", "history_append_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history backend"),
				logging.String(logging.FieldImpact, "result is returned but missing from history"),
			)
		}
	}
	logger.Info("generation complete",
		logging.String(logging.FieldPromptID, job.PromptID),
		logging.Int("images", len(outcome.Outputs.ImageURLs)),
		logging.Int("polls", outcome.Ticks),
	)
	return Result{Job: job, Outputs: outcome.Outputs, Record: record, Ticks: outcome.Ticks}, nil
}

func (s *Service) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		s.logger.Debug("notification failed", logging.Error(err))
	}
}

// Hint suggests the next step for a generation failure.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrNoBackend):
		return "add or enable a backend under admin → servers"
	case errors.Is(err, ErrPageNotReady):
		return "bind a workflow and check the page mappings"
	case errors.Is(err, ErrNetwork):
		return comfy.Remediation
	case errors.Is(err, ErrPollingExhausted):
		return "inspect the backend queue for stuck or failed jobs"
	case errors.Is(err, ErrRepeatedPollFailure):
		return "check that the backend is still running"
	default:
		return "check logs for details"
	}
}
