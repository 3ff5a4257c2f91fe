package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emailfilter/internal/app"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
	"emailfilter/internal/interfaces/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireClassifier(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	zlog := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer zlog.Sync()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatalw("Failed to initialize app", "error", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			zlog.Warnw("Failed to close app", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webhook.NewMux(application.Dispatcher, zlog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Infow("Webhook server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Errorw("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Infow("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("Shutdown error", "error", err)
	}
}
