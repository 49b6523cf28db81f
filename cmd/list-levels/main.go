package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/invenhost/inventree-shopify/internal/app"
)

func main() {
	locationFlag := flag.Int64("location", 0, "Only show levels at this Shopify location id")
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

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	var locationID *int64
	if *locationFlag != 0 {
		locationID = locationFlag
	}

	levels, err := a.Repos.InventoryLevel.List(ctx, locationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list levels: %v\n", err)
		os.Exit(1)
	}

	if len(levels) == 0 {
		fmt.Println("No inventory levels mirrored yet. Run cmd/pull first.")
		return
	}

	fmt.Printf("%-36s  %-14s  %-14s  %9s  %s\n", "LEVEL", "LOCATION", "ITEM", "AVAILABLE", "STOCK ITEM")
	for _, l := range levels {
		stock := "-"
		if l.StockItemID != nil {
			stock = l.StockItemID.String()
		}
		fmt.Printf("%-36s  %-14d  %-14d  %9d  %s\n", l.ID, l.LocationID, l.InventoryItemID, l.Available, stock)
	}
	fmt.Printf("\nTotal: %d\n", len(levels))
}
