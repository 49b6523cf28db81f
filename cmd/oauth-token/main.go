package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Scopes requested by the sync app
const Scopes = "read_products,read_inventory,write_inventory"

func main() {
	shop := flag.String("shop", "", "Shop domain, e.g. store-name.myshopify.com")
	clientID := flag.String("client-id", "", "App client id")
	clientSecret := flag.String("client-secret", "", "App client secret")
	code := flag.String("code", "", "Authorization code from the redirect; omit to print the authorization URL")
	flag.Parse()

	if *shop == "" || *clientID == "" || *clientSecret == "" {
		fmt.Println("Usage: go run cmd/oauth-token/main.go --shop <domain> --client-id <id> --client-secret <secret> [--code <code>]")
		fmt.Println("\n1. Run without --code to get an authorization URL")
		fmt.Println("2. Visit the URL in your browser and authorize")
		fmt.Println("3. Copy the 'code' from the redirect URL")
		fmt.Println("4. Run again with --code")
		os.Exit(1)
	}

	domain := strings.TrimPrefix(strings.TrimPrefix(*shop, "https://"), "http://")

	if *code == "" {
		q := url.Values{
			"client_id":    {*clientID},
			"scope":        {Scopes},
			"redirect_uri": {"urn:ietf:wg:oauth:2.0:oob"},
		}
		fmt.Printf("Step 1: Authorize the app\n\n")
		fmt.Printf("Visit this URL in your browser:\n")
		fmt.Printf("https://%s/admin/oauth/authorize?%s\n\n", domain, q.Encode())
		fmt.Printf("Then run again with --code <code>\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := exchangeCode(ctx, domain, *clientID, *clientSecret, *code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get access token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Access Token obtained!\n\n")
	fmt.Printf("Add this to your .env file:\n")
	fmt.Printf("SHOPIFY_ACCESS_TOKEN=%s\n", token)
}

// exchangeCode posts to the unversioned oauth endpoint
func exchangeCode(ctx context.Context, domain, clientID, clientSecret, code string) (string, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/admin/oauth/access_token", domain), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Scope != "" && result.Scope != Scopes {
		fmt.Printf("⚠️  Granted scopes: %s\n", result.Scope)
	}
	return result.AccessToken, nil
}
