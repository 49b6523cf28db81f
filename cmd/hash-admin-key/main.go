package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/invenhost/inventree-shopify/internal/api/middleware"
)

func main() {
	apiKeyFlag := flag.String("api-key", "", "Admin API key (save it; it cannot be retrieved later)")
	flag.Parse()

	apiKey := *apiKeyFlag
	if apiKey == "" && flag.NArg() >= 1 {
		apiKey = flag.Arg(0)
	}
	// Trim so the stored hash matches what the server receives (AdminAuth trims the Bearer token)
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/hash-admin-key/main.go --api-key \"your-admin-key\"")
		os.Exit(1)
	}

	hash, err := middleware.HashAPIKey(apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Add this to your environment:")
	fmt.Printf("ADMIN_API_KEY_HASH='%s'\n", hash)
}
