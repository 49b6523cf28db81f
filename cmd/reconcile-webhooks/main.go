package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/invenhost/inventree-shopify/internal/app"
)

func main() {
	hostFlag := flag.String("host", "", "Public host deliveries should reach (defaults to WEBHOOK_SELF_HOST)")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	host := *hostFlag
	if host == "" {
		host = cfg.Webhooks.SelfHost
	}
	if host == "" {
		fmt.Fprintln(os.Stderr, "Usage: go run cmd/reconcile-webhooks/main.go --host inventory.example.com")
		fmt.Fprintln(os.Stderr, "  or set WEBHOOK_SELF_HOST")
		os.Exit(1)
	}

	hooks, err := a.Services.Scheduler.ReconcileNow(ctx, host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Webhooks for %s (%d):\n", cfg.Shopify.ShopDomain, len(hooks))
	for _, h := range hooks {
		fmt.Printf("  %-10d %-28s %s\n", h.ID, h.Topic, h.Address)
	}
}
