// Package server exposes the HTTP surface: batch ingestion plus the
// read-only query endpoints over the aggregate store.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nvoss/lagmark/internal/ingest"
	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/query"
)

// Server hosts the ingestion and query endpoints.
type Server struct {
	gateway *ingest.Gateway
	query   *query.Service

	http *http.Server
	log  *slog.Logger
}

// New builds the server with its routes and middleware chain. listen is
// the bind address, e.g. ":8080".
func New(listen string, gateway *ingest.Gateway, querySvc *query.Service) *Server {
	s := &Server{
		gateway: gateway,
		query:   querySvc,
		log:     logging.Component("server"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/metrics/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/metrics/latency-histogram", s.handleLatencyHistogram).Methods(http.MethodGet)
	r.HandleFunc("/metrics/daily-rollup", s.handleDailyRollup).Methods(http.MethodGet)

	r.Use(requestIDMiddleware, loggingMiddleware, recoverMiddleware)

	s.http = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the configured HTTP handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the HTTP server until Shutdown is called. It returns nil
// on clean shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
