package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/invenhost/inventree-shopify/internal/app"
)

func main() {
	search := flag.String("search", "", "Only show products whose title, variant title or SKU contains this term")
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

	products, err := a.Repos.Product.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list products: %v\n", err)
		os.Exit(1)
	}

	matched := 0
	for _, p := range products {
		variants, err := a.Repos.Variant.ListByProduct(ctx, p.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list variants of product %d: %v\n", p.ID, err)
			os.Exit(1)
		}

		productMatches := containsIgnoreCase(p.Title, *search)
		show := productMatches
		for _, v := range variants {
			if containsIgnoreCase(v.Title, *search) || containsIgnoreCase(v.SKU, *search) {
				show = true
			}
		}
		if !show {
			continue
		}
		matched++

		fmt.Printf("Product: %s (id %d)\n", p.Title, p.ID)
		for _, v := range variants {
			fmt.Printf("  - %s\n", v.Title)
			fmt.Printf("    Inventory item: %d\n", v.InventoryItemID)
			if v.SKU != "" {
				fmt.Printf("    SKU: %s\n", v.SKU)
			} else {
				fmt.Printf("    SKU: (not set)\n")
			}
			fmt.Printf("    Price: %s\n", v.Price.StringFixed(2))
			if v.PartID != nil {
				fmt.Printf("    Part: %s\n", v.PartID)
			} else {
				fmt.Printf("    Part: (not linked)  go run cmd/link/main.go --item %d --part <uuid>\n", v.InventoryItemID)
			}
		}
		fmt.Println()
	}

	if len(products) == 0 {
		fmt.Println("⚠️  No products mirrored yet. Run cmd/pull first.")
		return
	}
	fmt.Printf("✅ %d of %d products shown\n", matched, len(products))
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
