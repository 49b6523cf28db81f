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
	timeout := flag.Duration("timeout", 10*time.Minute, "Abort the pull after this long")
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	fmt.Printf("Pulling catalog and inventory levels from %s...\n", cfg.Shopify.ShopDomain)
	res, err := a.Services.Puller.Pull(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Pull failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Pull completed")
	fmt.Printf("  Products:         %d\n", res.Products)
	fmt.Printf("  Variants created: %d\n", res.VariantsCreated)
	fmt.Printf("  Levels updated:   %d\n", res.Levels)
	fmt.Printf("  Levels skipped:   %d\n", res.LevelsSkipped)
}
