package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusFunc produces a JSON-serializable status snapshot for a
// diagnostics endpoint.
type StatusFunc func() any

// DiagnosticsConfig configures the diagnostics HTTP server.
type DiagnosticsConfig struct {
	Port int
	Path string

	// Status snapshot sources; nil entries disable their endpoint.
	Provider    StatusFunc
	Retry       StatusFunc
	Corrections StatusFunc
}

// DiagnosticsServer serves Prometheus metrics and engine status snapshots.
type DiagnosticsServer struct {
	cfg     DiagnosticsConfig
	manager *Manager
	server  *http.Server
}

// NewDiagnosticsServer creates a diagnostics server backed by the given
// metrics manager.
func NewDiagnosticsServer(cfg DiagnosticsConfig, manager *Manager) *DiagnosticsServer {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	s := &DiagnosticsServer{cfg: cfg, manager: manager}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle(cfg.Path, manager.Handler())
	r.Route("/status", func(r chi.Router) {
		r.Get("/provider", statusHandler(cfg.Provider))
		r.Get("/retry", statusHandler(cfg.Retry))
		r.Get("/corrections", statusHandler(cfg.Corrections))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	return s
}

// Handler returns the server's router, mainly for tests.
func (s *DiagnosticsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *DiagnosticsServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func statusHandler(source StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(source()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
