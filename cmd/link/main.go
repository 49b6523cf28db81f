package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invenhost/inventree-shopify/internal/app"
	"github.com/invenhost/inventree-shopify/internal/domain"
)

func main() {
	itemFlag := flag.Int64("item", 0, "Shopify inventory item id")
	locationFlag := flag.Int64("location", 0, "Shopify location id (links the level at this location to a stock item)")
	partFlag := flag.String("part", "", "Local part id to link to the variant")
	stockFlag := flag.String("stock", "", "Local stock item id to link to the level, or \"new\" to create one from the level")
	unlink := flag.Bool("unlink", false, "Remove the link instead of setting it")
	flag.Parse()

	if *itemFlag == 0 || (*partFlag == "" && *stockFlag == "" && !*unlink) {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/link/main.go --item 808950810 --part <part-uuid>")
		fmt.Println("  go run cmd/link/main.go --item 808950810 --location 655441491 --stock <stock-item-uuid|new>")
		fmt.Println("  go run cmd/link/main.go --item 808950810 --location 655441491 --unlink")
		os.Exit(1)
	}

	if *stockFlag != "" && *locationFlag == 0 {
		fmt.Fprintln(os.Stderr, "--stock needs --location")
		os.Exit(1)
	}

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

	if *partFlag != "" || (*unlink && *locationFlag == 0) {
		var partID *uuid.UUID
		if !*unlink {
			id, err := uuid.Parse(*partFlag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid part id: %v\n", err)
				os.Exit(1)
			}
			partID = &id
		}
		if err := a.Repos.Variant.LinkPart(ctx, *itemFlag, partID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to link part: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ Variant %d part link updated\n", *itemFlag)
		if *stockFlag == "" && !*unlink {
			return
		}
	}

	if *locationFlag == 0 {
		return
	}

	levels, err := a.Repos.InventoryLevel.FindByItemAndLocation(ctx, *itemFlag, *locationFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find level: %v\n", err)
		os.Exit(1)
	}
	if len(levels) != 1 {
		fmt.Fprintf(os.Stderr, "Expected one level for item %d at location %d, found %d. Run cmd/pull first.\n",
			*itemFlag, *locationFlag, len(levels))
		os.Exit(1)
	}
	level := levels[0]

	var stockID *uuid.UUID
	switch {
	case *unlink:
	case *stockFlag == "new":
		item := &domain.StockItem{Quantity: decimal.NewFromInt(level.Available)}
		if err := a.Repos.StockItem.Create(ctx, item); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create stock item: %v\n", err)
			os.Exit(1)
		}
		stockID = &item.ID
		fmt.Printf("Created stock item %s with quantity %d\n", item.ID, level.Available)
	default:
		id, err := uuid.Parse(*stockFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid stock item id: %v\n", err)
			os.Exit(1)
		}
		if _, err := a.Repos.StockItem.GetByID(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Stock item not found: %v\n", err)
			os.Exit(1)
		}
		stockID = &id
	}

	if err := a.Repos.InventoryLevel.LinkStockItem(ctx, level.ID, stockID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to link stock item: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Level %s stock link updated\n", level.ID)
}
