// Package server provides the embedapi HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/config"
	"github.com/hyperjump/embedapi/internal/dispatch"
	"github.com/hyperjump/embedapi/internal/observe"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 32 << 20

// ArchiveStats is the read side of the embedding archive shown in status.
type ArchiveStats interface {
	Count(ctx context.Context) (int64, error)
	Path() string
	DiskUsageBytes() (int64, error)
}

// Server is the HTTP server for the embedding API.
type Server struct {
	dispatcher     *dispatch.Dispatcher
	archive        ArchiveStats
	metrics        *observe.Metrics
	metricsHandler http.Handler
	config         *config.ServerConfig
	logger         *zap.Logger
	server         *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithArchive reports archive state in /api/v1/status.
func WithArchive(a ArchiveStats) Option {
	return func(s *Server) { s.archive = a }
}

// WithMetrics records request durations into m and serves handler on /metrics.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(d *dispatch.Dispatcher, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher: d,
		config:     cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.Compress(5))
		r.Post("/api/v1/embeddings", s.handleEmbed)
		r.Post("/submit", s.handleEmbed)
		r.Get("/api/v1/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request at debug level, or at warn level
// for server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}
