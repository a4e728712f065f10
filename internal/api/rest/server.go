package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/infrastructure/config"
)

// Server owns the HTTP listener and the route table.
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     *zap.Logger
}

// NewServer builds the route table around the handler. wsHandler, when
// non-nil, serves the live alert stream; nil disables the endpoint.
func NewServer(cfg config.ServerConfig, h *Handler, wsHandler http.Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/events", h.handleIngestEvent)
	mux.HandleFunc("GET /api/v1/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/v1/alerts/{id}", h.handleGetAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", h.handleAcknowledgeAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/close", h.handleCloseAlert)
	mux.HandleFunc("POST /api/v1/feedback", h.handleFeedback)

	if wsHandler != nil {
		mux.Handle("GET /api/v1/ws", wsHandler)
	}

	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := chainMiddleware(mux,
		recoveryMiddleware(logger),
		requestIDMiddleware,
		tracingMiddleware,
		loggingMiddleware(logger),
		metricsMiddleware,
		rateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the assembled handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
