package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"emailfilter/internal/app"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
	"emailfilter/internal/interfaces/webhook"
)

func main() {
	ctx := context.Background()

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
	defer application.Close()

	lambda.Start(webhook.LambdaHandler(application.Dispatcher))
}
