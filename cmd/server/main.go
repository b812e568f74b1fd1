package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nithya4005/app/internal/config"
	"github.com/nithya4005/app/internal/metrics"
	"github.com/nithya4005/app/internal/provider"
	"github.com/nithya4005/app/internal/provider/gemini"
	"github.com/nithya4005/app/internal/web"
)

func main() {
	cfg := config.Load()

	slog.Info("starting image relay",
		"listen", cfg.ListenAddr,
		"models", cfg.Models,
		"key_loaded", cfg.KeyLoaded(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing key degrades the /api routes to a not-configured response
	// instead of refusing to start.
	var gen provider.Generator
	if cfg.KeyLoaded() {
		client, err := gemini.New(ctx, cfg.APIKey, float32(cfg.Temperature))
		if err != nil {
			slog.Error("failed to create Gemini client", "error", err)
			os.Exit(1)
		}
		gen = client
	} else {
		slog.Warn("GEMINI_API_KEY is not set; /api routes will report not configured")
	}

	prom := metrics.NewProm("imagerelay")
	srv := web.New(cfg, gen, prom, prom)

	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	case err := <-srvErr:
		// Listen failures (port already in use) land here and are fatal.
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
