package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"emailfilter/internal/app"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
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

	// Failures are reported in the response, not as a Lambda error.
	poll := func(ctx context.Context) (response, error) {
		summary, err := application.Pipeline.Run(ctx, cfg.FetchLimit, cfg.ClassifyLimit)
		if err != nil {
			zlog.Errorw("Poll failed", "error", err)
		} else {
			zlog.Infow("Poll finished", "summary", summary.String(), "folder_not_found", summary.FolderNotFound)
		}
		return toResponse(summary, err), nil
	}

	if config.InLambda() {
		lambda.Start(poll)
		return
	}

	resp, _ := poll(ctx)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
