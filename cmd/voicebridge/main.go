package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/antoniostano/voicebridge/internal/app"
	"github.com/antoniostano/voicebridge/internal/config"
	"github.com/antoniostano/voicebridge/internal/observability"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.TracingEnabled {
		shutdownTracer, err := observability.InitTracer(os.Stdout)
		if err != nil {
			log.Fatalf("tracer init failed: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", slog.Any("err", err))
			}
		}()
	}

	ctx := context.Background()
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn("cleanup failed", slog.Any("err", err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Handler(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, cfg.SessionJanitorInterval)

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.BindAddr), slog.String("realtime_url", cfg.RealtimeURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	// Hijacked websockets are not tracked by Shutdown; close them first.
	built.Sessions.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("err", err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
