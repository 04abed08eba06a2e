// Package server exposes the reconciler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/metrics"
)

// Reconciler is the subset of reconcile.Reconciler the handlers use.
type Reconciler interface {
	Identify(ctx context.Context, f contact.Fragment) (contact.Consolidated, error)
	Cluster(ctx context.Context, id int64) (contact.Consolidated, error)
	AddContact(ctx context.Context, nc contact.NewContact) (int64, error)
	DeleteContact(ctx context.Context, id int64) error
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server settings and dependencies.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration

	// Metrics, when set, records request metrics. Gatherer, when also set,
	// is served on GET /metrics.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// RequestID generates request IDs. Defaults to UUIDv7.
	RequestID func() string

	Logger zerolog.Logger
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	reconciler Reconciler
	store      Pinger
	config     Config
	logger     zerolog.Logger
	handler    http.Handler
}

// New creates a server. store is used for readiness checks only.
func New(r Reconciler, store Pinger, cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		reconciler: r,
		store:      store,
		config:     cfg,
		logger:     cfg.Logger,
	}
	s.handler = s.setupRouter()
	return s
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Dur("timeout", s.config.ShutdownTimeout).Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
