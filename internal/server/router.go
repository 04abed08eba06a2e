package server

import (
	"net/http"

	"github.com/roach88/idrecon/internal/metrics"
	"github.com/roach88/idrecon/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /{$}", s.handleRoot)
	s.handle(mux, "GET /health", s.handleHealth)
	s.handle(mux, "GET /ready", s.handleReady)

	s.handle(mux, "POST /identify", s.handleIdentify)
	s.handle(mux, "POST /add-contact", s.handleAddContact)
	s.handle(mux, "GET /contact/{id}", s.handleGetContact)
	s.handle(mux, "DELETE /contact/{id}", s.handleDeleteContact)

	if s.config.Gatherer != nil {
		metricsHandler := metrics.Handler(s.config.Gatherer)
		s.handle(mux, "GET /metrics", metricsHandler.ServeHTTP)
	}
}

// handle registers h under pattern and labels requests with the pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRoute(r, pattern)
		h(w, r)
	})
}

// applyMiddleware wraps the mux: Recovery, RequestID, Logger, then Metrics.
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID(s.logger, s.config.RequestID),
		middleware.Logger(),
	}
	if s.config.Metrics != nil {
		chain = append(chain, middleware.Metrics(s.config.Metrics))
	}
	return middleware.Chain(chain...)(h)
}
