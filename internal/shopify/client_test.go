package shopify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ShopifyConfig{
		ShopDomain:  "example.myshopify.com",
		AccessToken: "shpat_secret",
		APIVersion:  "2023-04",
		Timeout:     timeout,
		BaseURL:     srv.URL,
	}, zap.NewNop())
}

func TestCall_SendsHeadersAndParsesLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2023-04/products.json", r.URL.Path)
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		assert.Equal(t, "shpat_secret", r.Header.Get("X-Shopify-Access-Token"))
		w.Header().Set("Link", `<https://example.myshopify.com/admin/api/2023-04/products.json?limit=250&page_info=prev123>; rel="previous", <https://example.myshopify.com/admin/api/2023-04/products.json?limit=250&page_info=next456>; rel="next"`)
		_, _ = w.Write([]byte(`{"products":[]}`))
	}, time.Second)

	resp, err := client.Call(context.Background(), http.MethodGet, EndpointProducts, url.Values{"limit": {"250"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "next456", resp.NextPageInfo)
	assert.False(t, resp.HasErrors())
}

func TestCall_PostsJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req InventoryLevelSetRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, InventoryLevelSetRequest{LocationID: 1, InventoryItemID: 2, Available: 3}, req)
		_, _ = w.Write([]byte(`{"inventory_level":{"inventory_item_id":2,"location_id":1,"available":3}}`))
	}, time.Second)

	resp, err := client.Call(context.Background(), http.MethodPost, EndpointInventoryLevelSet, nil,
		InventoryLevelSetRequest{LocationID: 1, InventoryItemID: 2, Available: 3})
	require.NoError(t, err)
	assert.True(t, resp.Has("inventory_level"))
}

func TestCall_ErrorEnvelopeIsNotTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"address":["for this topic has already been taken"]}}`))
	}, time.Second)

	resp, err := client.Call(context.Background(), http.MethodPost, EndpointWebhooks, nil, map[string]string{})
	require.NoError(t, err)
	assert.True(t, resp.HasErrors())
	assert.False(t, resp.Has("webhook"))
}

func TestCall_ErrorsKeyWith200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
	}, time.Second)

	resp, err := client.Call(context.Background(), http.MethodGet, EndpointProducts, nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.HasErrors())
}

func TestCall_TimeoutIsRemoteCallError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.Call(context.Background(), http.MethodGet, EndpointShop, nil, nil)
	require.Error(t, err)

	var rc *errors.ErrRemoteCall
	assert.True(t, stderrors.As(err, &rc))
	assert.True(t, errors.IsRetryable(err))
}

func TestNextPageInfo(t *testing.T) {
	assert.Equal(t, "", nextPageInfo(""))
	assert.Equal(t, "", nextPageInfo(`<https://x/products.json?page_info=abc>; rel="previous"`))
	assert.Equal(t, "abc", nextPageInfo(`<https://x/products.json?page_info=abc>; rel="next"`))
}
