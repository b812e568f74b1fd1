package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nithya4005/app/internal/config"
	"github.com/nithya4005/app/internal/metrics"
	"github.com/nithya4005/app/internal/provider"
	"github.com/nithya4005/app/internal/relay"
)

//go:embed static
var staticFiles embed.FS

// Server is the browser-facing HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server. gen may be nil when no API key is configured;
// every /api route then reports the not-configured error instead of
// attempting an outbound call.
func New(cfg *config.Config, gen provider.Generator, rm metrics.RequestMetrics, gm metrics.GenerationMetrics) *Server {
	h := &handlers{
		cfg: cfg,
		gen: gen,
		relay: relay.New(gen, relay.Config{
			Candidates:  cfg.Models,
			MaxAttempts: cfg.MaxAttempts,
			RetryDelay:  cfg.RetryDelay,
		}, gm, nil),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/generate", h.Generate).Methods(http.MethodPost)
	r.HandleFunc("/api/list-models", h.ListModels).Methods(http.MethodGet)
	r.HandleFunc("/api/test-key", h.TestKey).Methods(http.MethodGet)
	r.HandleFunc("/api/models", h.Models).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(staticHandler()).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = metricsMiddleware(rm, handler)
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	// No WriteTimeout: a generate request may legitimately sit through several
	// quota retries, and any deadline belongs to the provider side.
	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
	}
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServerFS(sub)
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
