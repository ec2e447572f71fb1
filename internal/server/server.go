package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/handlers"
	"github.com/akolanti/docsync/internal/middleware"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operational HTTP surface: health, metrics and task status.
type Server struct {
	http   *http.Server
	logger *logger_i.Logger
}

func NewServer(listenAddr string, authToken string, handler *handlers.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:         listenAddr,
			Handler:      NewRouter(authToken, handler),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logger_i.NewLogger("Server"),
	}
}

// NewRouter registers the routes. Only task lookups sit behind the bearer token.
func NewRouter(authToken string, handler *handlers.Handler) http.Handler {
	open := middleware.New("")
	secured := middleware.New(authToken)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", open.Wrap(handler.HealthHandler))
	r.Get("/tasks/{id}", secured.Wrap(handler.GetStatusHandler))
	return r
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("Server is listening at", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Server crashed", "error", err, "addr", s.http.Addr)
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Could not shutdown gracefully", "error", err)
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}
