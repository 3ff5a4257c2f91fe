package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"emailfilter/internal/app"
	"emailfilter/internal/infrastructure/config"
	"emailfilter/internal/infrastructure/logger"
)

// Interactive login that seeds the token cache used by every other command.
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

	switch {
	case application.MSAL != nil:
		account, err := application.MSAL.LoginDeviceCode(ctx, os.Stdout)
		if err != nil {
			zlog.Fatalw("Device code login failed", "error", err)
		}
		fmt.Printf("\nSigned in as %s. Token cache saved to the %s store.\n", account, cfg.StoreBackend)
	case application.Google != nil:
		if err := application.Google.LoginWithCode(ctx, os.Stdin, os.Stdout); err != nil {
			zlog.Fatalw("Google login failed", "error", err)
		}
		fmt.Printf("\nToken saved to the %s store.\n", cfg.StoreBackend)
	default:
		fmt.Println("IMAP uses IMAP_PASSWORD directly; nothing to set up.")
		return
	}

	if _, err := application.Creds.Token(ctx); err != nil {
		zlog.Fatalw("Stored token could not be read back", "error", err)
	}
}
