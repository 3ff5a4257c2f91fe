package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"emailfilter/internal/app"
	"emailfilter/internal/application/triage"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/kv"
	"emailfilter/internal/infrastructure/logger"
	"emailfilter/internal/infrastructure/seen"
)

// Runs one triage pass against the real mailbox with a throwaway seen-set.
// Nothing is deleted unless -delete is given.
func main() {
	n := flag.Int("n", 10, "number of junk messages to fetch and classify")
	doDelete := flag.Bool("delete", false, "really delete the messages the classifier flags")
	flag.Parse()

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

	var (
		source triage.MailSource = application.Source
		dryRun *dryRunSource
	)
	if !*doDelete {
		dryRun = newDryRunSource(application.Source, zlog)
		source = dryRun
		// No alerts for deletes that did not happen.
		application.Notifier = nil
	}

	pipeline := application.NewPipeline(seen.NewStore(kv.NewMemoryStore(), seen.DefaultKey), source)
	summary, err := pipeline.Run(ctx, *n, *n)
	if err != nil {
		zlog.Fatalw("Run failed", "error", err)
	}

	fmt.Println(summary.String())
	if dryRun != nil {
		for _, m := range dryRun.Flagged() {
			fmt.Printf("  would delete: %-40.40s  %s\n", m.Sender, m.Subject)
		}
	}
}
