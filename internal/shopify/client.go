package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

type Client struct {
	baseURL     string
	accessToken string
	apiVersion  string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a new Shopify REST Admin API client
func NewClient(cfg config.ShopifyConfig, logger *zap.Logger) *Client {
	// Normalize shop domain - remove https://, http://, and trailing slashes
	shopDomain := cfg.ShopDomain
	shopDomain = strings.TrimPrefix(shopDomain, "https://")
	shopDomain = strings.TrimPrefix(shopDomain, "http://")
	shopDomain = strings.TrimSuffix(shopDomain, "/")

	baseURL := "https://" + shopDomain
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		apiVersion:  cfg.APIVersion,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Response is a decoded REST response. Non-2xx statuses are returned here, not as errors.
type Response struct {
	Status       int
	Body         json.RawMessage
	NextPageInfo string // page_info cursor of rel="next", empty on the last page
}

// HasErrors reports whether the response is an error envelope
func (r *Response) HasErrors() bool {
	if r.Status < 200 || r.Status >= 300 {
		return true
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return false
	}
	_, ok := envelope["errors"]
	return ok
}

// Has reports whether the top-level JSON object carries key
func (r *Response) Has(key string) bool {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return false
	}
	v, ok := envelope[key]
	return ok && string(v) != "null"
}

// Decode unmarshals the body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(r.Body))
	}
	return nil
}

// Call performs one REST request against /admin/api/{version}/{endpoint}.
// Transport failures and timeouts come back as *errors.ErrRemoteCall.
func (c *Client) Call(ctx context.Context, method, endpoint string, params url.Values, body any) (*Response, error) {
	u := fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.apiVersion, strings.TrimPrefix(endpoint, "/"))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.ErrRemoteCall{Method: method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ErrRemoteCall{Method: method, Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode >= 300 {
		c.logger.Warn("Shopify API returned error status",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	return &Response{
		Status:       resp.StatusCode,
		Body:         raw,
		NextPageInfo: nextPageInfo(resp.Header.Get("Link")),
	}, nil
}

var linkPartRe = regexp.MustCompile(`<([^>]+)>;\s*rel="?([a-z]+)"?`)

// nextPageInfo extracts page_info from the rel="next" entry of a Link header
func nextPageInfo(link string) string {
	if link == "" {
		return ""
	}
	for _, m := range linkPartRe.FindAllStringSubmatch(link, -1) {
		if m[2] != "next" {
			continue
		}
		parsed, err := url.Parse(m[1])
		if err != nil {
			return ""
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}
