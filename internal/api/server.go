// Package api serves the read-only status API: worker health, recent
// executions and a live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/knock/internal/dispatch"
	"github.com/mattjoyce/knock/internal/events"
	"github.com/mattjoyce/knock/internal/history"
)

// HistoryReader is the read side of the execution history.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Count(ctx context.Context) (int64, error)
}

// WorkerStatus reports on the dispatch worker.
type WorkerStatus interface {
	State() dispatch.State
	Processed() int64
}

// QueueDepth reports how many messages are waiting for the worker.
type QueueDepth interface {
	Len() int
}

// EventSource is the subscribe side of an events.Hub.
type EventSource interface {
	Subscribe() (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token, when set, must be presented as a bearer token on every route
	// but /healthz.
	Token   string
	Version string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	worker    WorkerStatus
	queue     QueueDepth
	history   HistoryReader
	events    EventSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history may be nil when history
// is disabled.
func New(config Config, worker WorkerStatus, queue QueueDepth, history HistoryReader, events EventSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		worker:    worker,
		queue:     queue,
		history:   history,
		events:    events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves on config.Listen until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: /events streams indefinitely.
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/executions", s.handleExecutions)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
