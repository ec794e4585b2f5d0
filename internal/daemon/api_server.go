package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/generation"
	"magpie/internal/imaging"
	"magpie/internal/logging"
	"magpie/internal/services"
)

const maxBodyBytes = 32 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	store   *catalog.Store
	handler http.Handler
	server  *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		store:  d.store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)

	mux.HandleFunc("GET /api/pages", s.handleListPages)
	mux.HandleFunc("PUT /api/pages", s.handleReplacePages)
	mux.HandleFunc("GET /api/pages/{id}", s.handleGetPage)
	mux.HandleFunc("PUT /api/pages/{id}", s.handleSavePage)
	mux.HandleFunc("DELETE /api/pages/{id}", s.handleDeletePage)
	mux.HandleFunc("POST /api/pages/{id}/generate", s.handleGenerate)

	mux.HandleFunc("GET /api/backends", s.handleListBackends)
	mux.HandleFunc("PUT /api/backends", s.handleReplaceBackends)
	mux.HandleFunc("GET /api/backends/{id}/check", s.handleCheckBackend)

	mux.HandleFunc("GET /api/history", s.handleListHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/images/generate", s.handleImageGenerate)
	mux.HandleFunc("POST /api/images/outfit", s.handleOutfit)
	mux.HandleFunc("POST /api/images/process", s.handleProcessImage)

	mux.HandleFunc("GET /api/comments", s.handleListComments)
	mux.HandleFunc("POST /api/comments", s.handleAddComment)
	mux.HandleFunc("POST /api/comments/{id}/replies", s.handleReply)
	mux.HandleFunc("POST /api/comments/{id}/like", s.handleLike)
	mux.HandleFunc("DELETE /api/comments/{id}", s.handleDeleteComment)

	mux.HandleFunc("POST /api/users", s.handleRegister)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("PATCH /api/users/{phone}", s.handleUpdateProfile)
	mux.HandleFunc("PUT /api/users/{phone}/role", s.handleSetRole)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	s.handler = s.withRequestID(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), mux))
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) listen() (net.Listener, error) {
	if s.bind == "" {
		return nil, errors.New("paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return nil, fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return listener, nil
}

// serve blocks until ctx ends. Handler contexts derive from ctx so streaming
// responses end with the server.
func (s *apiServer) serve(ctx context.Context, listener net.Listener) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	withChecks := r.URL.Query().Get("checks") == "1" || strings.EqualFold(r.URL.Query().Get("checks"), "true")
	status, err := s.daemon.Status(r.Context(), withChecks)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("%s: %w", message, services.Wrap(services.ErrExternalService, "notifications", "test", "", err)))
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", services.ErrValidation)
		}
		return fmt.Errorf("%w: decode request body: %w", services.ErrValidation, err)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, catalog.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation),
		errors.Is(err, imaging.ErrUnsupportedFormat), errors.Is(err, imaging.ErrInvalidOptions),
		errors.Is(err, imaging.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, catalog.ErrInvalidCredentials):
		return "unauthorized"
	case errors.Is(err, catalog.ErrForbidden):
		return "forbidden"
	case errors.Is(err, catalog.ErrConflict):
		return "conflict"
	case errors.Is(err, imaging.ErrUnsupportedFormat), errors.Is(err, imaging.ErrInvalidOptions),
		errors.Is(err, imaging.ErrDecode):
		return "validation"
	}
	return services.Kind(err)
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := api.ErrorResponse{Error: err.Error(), Kind: kindFor(err)}
	if strings.HasPrefix(r.URL.Path, "/api/pages/") && strings.HasSuffix(r.URL.Path, "/generate") {
		resp.Hint = generation.Hint(err)
	}
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the daemon log for the failing component"),
			logging.String(logging.FieldImpact, "client received an error response"),
		)
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
