package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/invenhost/inventree-shopify/internal/app"
	"github.com/invenhost/inventree-shopify/internal/shopify"
)

func main() {
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := shopify.NewClient(cfg.Shopify, logger)

	fmt.Println("Checking API permissions...")

	fmt.Println("1. Testing 'read_products' permission...")
	var products shopify.ProductsEnvelope
	if err := checkAccess(ctx, client, shopify.EndpointProducts, url.Values{"limit": {"1"}}, &products); err != nil {
		fmt.Printf("   ❌ Failed: %v\n", err)
		fmt.Println("   → You need to add 'read_products' scope to your app")
		os.Exit(1)
	}
	var itemID int64
	if len(products.Products) > 0 && len(products.Products[0].Variants) > 0 {
		itemID = products.Products[0].Variants[0].InventoryItemID
		fmt.Printf("   ✅ Success! Found product: %s\n", products.Products[0].Title)
	} else {
		fmt.Println("   ✅ Permission works, but no products found")
	}

	fmt.Println("\n2. Testing 'read_inventory' permission...")
	if itemID == 0 {
		fmt.Println("   ⚠️  Skipped: no inventory item to query")
	} else {
		var levels shopify.InventoryLevelsEnvelope
		params := url.Values{"inventory_item_ids": {strconv.FormatInt(itemID, 10)}}
		if err := checkAccess(ctx, client, shopify.EndpointInventoryLevels, params, &levels); err != nil {
			fmt.Printf("   ❌ Failed: %v\n", err)
			fmt.Println("   → You need to add 'read_inventory' scope to your app")
		} else {
			fmt.Printf("   ✅ Success! Item %d is stocked at %d location(s)\n", itemID, len(levels.InventoryLevels))
		}
	}

	fmt.Println("\n3. Testing webhook access...")
	var hooks shopify.WebhooksEnvelope
	if err := checkAccess(ctx, client, shopify.EndpointWebhooks, nil, &hooks); err != nil {
		fmt.Printf("   ❌ Failed: %v\n", err)
	} else {
		fmt.Printf("   ✅ Success! %d webhook subscription(s) installed\n", len(hooks.Webhooks))
	}

	fmt.Println("\n📋 Required scopes for inventory sync:")
	fmt.Println("   - read_products (to mirror products and variants)")
	fmt.Println("   - read_inventory (to mirror inventory levels and receive level webhooks)")
	fmt.Println("   - write_inventory (to push local stock changes; not checked, it would modify stock)")
	fmt.Println("\nTo add scopes:")
	fmt.Println("   1. Go to Shopify Admin → Settings → Apps and sales channels")
	fmt.Println("   2. Click 'Develop apps' → Your app")
	fmt.Println("   3. Click 'Configure Admin API scopes'")
	fmt.Println("   4. Add the required scopes")
	fmt.Println("   5. Click 'Save' then 'Install app' (or reinstall)")
}

func checkAccess(ctx context.Context, client *shopify.Client, endpoint string, params url.Values, out any) error {
	resp, err := client.Call(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return err
	}
	if resp.HasErrors() {
		return fmt.Errorf("status %d: %s", resp.Status, string(resp.Body))
	}
	return resp.Decode(out)
}
