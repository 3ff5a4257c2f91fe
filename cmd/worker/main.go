package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"emailfilter/internal/app"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
	"emailfilter/internal/infrastructure/pubsub"
	pubsubHandler "emailfilter/internal/interfaces/pubsub"
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
	if cfg.GoogleCloudProject == "" {
		log.Fatalf("GOOGLE_CLOUD_PROJECT is required")
	}

	zlog := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer zlog.Sync()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatalw("Failed to initialize app", "error", err)
	}
	defer application.Close()

	subscriber, err := pubsub.NewSubscriber(ctx, cfg.GoogleCloudProject, cfg.SubscriptionID, zlog)
	if err != nil {
		zlog.Fatalw("Failed to create subscriber", "error", err)
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			zlog.Warnw("Failed to close subscriber", "error", err)
		}
	}()

	handler := pubsubHandler.NewHandler(application.Dispatcher, zlog)

	if err := subscriber.Listen(ctx, handler.HandleNotification); err != nil && ctx.Err() == nil {
		zlog.Fatalw("Pub/Sub listener error", "error", err)
	}
	zlog.Infow("Shutting down gracefully...")
}
