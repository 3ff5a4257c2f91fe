package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"emailfilter/internal/app"
	"emailfilter/internal/application/triage"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
)

const usage = `usage:
  subscription create [-url https://...]
  subscription renew`

type result struct {
	Message        string `json:"message"`
	SubscriptionID string `json:"subscriptionId"`
	ExpiresAt      string `json:"expiresAt"`
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer zlog.Sync()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatalw("Failed to initialize app", "error", err)
	}
	defer application.Close()

	subs := application.Subscriptions
	if subs == nil {
		zlog.Fatalw("Mail provider does not support push notifications", "provider", cfg.MailProvider)
	}

	// Scheduled renewals run in Lambda.
	if config.InLambda() {
		lambda.Start(func(ctx context.Context) (result, error) {
			sub, err := subs.Renew(ctx)
			if err != nil {
				return result{}, err
			}
			return toResult("renewed", sub), nil
		})
		return
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var sub triage.Subscription
	switch os.Args[1] {
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		url := fs.String("url", "", "https notification URL (defaults to NOTIFICATION_URL)")
		_ = fs.Parse(os.Args[2:])
		sub, err = subs.Create(ctx, *url)
	case "renew":
		sub, err = subs.Renew(ctx)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		zlog.Fatalw("Subscription command failed", "command", os.Args[1], "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(toResult(strings.TrimSuffix(os.Args[1], "e")+"ed", sub))
}

func toResult(action string, sub triage.Subscription) result {
	return result{
		Message:        "Subscription " + action,
		SubscriptionID: sub.ID,
		ExpiresAt:      sub.ExpiresAt.Format(time.RFC3339),
	}
}
