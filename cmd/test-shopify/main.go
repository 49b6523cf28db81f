package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/invenhost/inventree-shopify/internal/app"
	"github.com/invenhost/inventree-shopify/internal/shopify"
)

func main() {
	// Load configuration
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Shopify connection...\n\n")
	fmt.Printf("Shop Domain: %s\n", cfg.Shopify.ShopDomain)
	fmt.Printf("API Version: %s\n", cfg.Shopify.APIVersion)
	fmt.Printf("Access Token: %s...%s\n",
		cfg.Shopify.AccessToken[:min(10, len(cfg.Shopify.AccessToken))],
		cfg.Shopify.AccessToken[max(0, len(cfg.Shopify.AccessToken)-4):])
	fmt.Println()

	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := shopify.NewClient(cfg.Shopify, logger)

	resp, err := client.Call(context.Background(), http.MethodGet, shopify.EndpointShop, nil, nil)
	if err == nil && resp.HasErrors() {
		err = fmt.Errorf("status %d: %s", resp.Status, string(resp.Body))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Connection failed: %v\n\n", err)
		fmt.Println("Please check:")
		fmt.Println("  1. SHOPIFY_SHOP_DOMAIN format: should be 'store-name.myshopify.com' (no https://)")
		fmt.Println("  2. SHOPIFY_ACCESS_TOKEN: should start with 'shpat_' and be the full token")
		fmt.Println("  3. Token permissions: needs 'read_products', 'read_inventory' and 'write_inventory' scopes")
		os.Exit(1)
	}

	var env shopify.ShopEnvelope
	if err := resp.Decode(&env); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Unexpected response: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Connection successful!")
	fmt.Printf("Shop: %s (%s)\n", env.Shop.Name, env.Shop.MyshopifyDomain)
}
