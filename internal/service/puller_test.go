package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invenhost/inventree-shopify/internal/shopify"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

func int64Ptr(v int64) *int64 { return &v }

func productsPage(t *testing.T, next string, products ...shopify.ProductPayload) *shopify.Response {
	resp := jsonResponse(t, http.StatusOK, shopify.ProductsEnvelope{Products: products})
	resp.NextPageInfo = next
	return resp
}

func product(id int64, title string, itemIDs ...int64) shopify.ProductPayload {
	p := shopify.ProductPayload{ID: id, Title: title, Handle: strings.ToLower(title)}
	for i, item := range itemIDs {
		p.Variants = append(p.Variants, shopify.VariantPayload{
			ID:              id*100 + int64(i),
			ProductID:       id,
			InventoryItemID: item,
			SKU:             fmt.Sprintf("SKU-%d", item),
		})
	}
	return p
}

func TestPuller_Pull(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(c call) (*shopify.Response, error) {
		if c.Params.Get("page_info") == "" {
			assert.Equal(t, "250", c.Params.Get("limit"))
			return productsPage(t, "cursor-2", product(1, "Bolt", 11, 12)), nil
		}
		assert.Equal(t, "cursor-2", c.Params.Get("page_info"))
		return productsPage(t, "", product(2, "Nut", 21)), nil
	})
	env.remote.on(http.MethodGet, shopify.EndpointInventoryLevels, func(c call) (*shopify.Response, error) {
		assert.Equal(t, "11,12,21", c.Params.Get("inventory_item_ids"))
		return jsonResponse(t, http.StatusOK, shopify.InventoryLevelsEnvelope{InventoryLevels: []shopify.InventoryLevelPayload{
			{InventoryItemID: 11, LocationID: 7, Available: int64Ptr(5)},
			{InventoryItemID: 12, LocationID: 7, Available: int64Ptr(0)},
			{InventoryItemID: 21, LocationID: 7, Available: nil},
			{InventoryItemID: 99, LocationID: 7, Available: int64Ptr(3)},
		}}), nil
	})

	puller := NewPuller(env.remote, env.repos, env.metrics, env.logger)
	res, err := puller.Pull(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Products)
	assert.Equal(t, 3, res.VariantsCreated)
	assert.Equal(t, 2, res.Levels)
	assert.Equal(t, 2, res.LevelsSkipped)

	products, err := env.repos.Product.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Bolt", products[0].Title)

	levels, err := env.repos.InventoryLevel.FindByItemAndLocation(ctx, 11, 7)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, int64(5), levels[0].Available)

	levels, err = env.repos.InventoryLevel.FindByItemAndLocation(ctx, 21, 7)
	require.NoError(t, err)
	assert.Empty(t, levels)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.PullRuns.WithLabelValues("ok")))
}

func TestPuller_PullIsRepeatable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	available := int64(5)
	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		return productsPage(t, "", product(1, "Bolt", 11)), nil
	})
	env.remote.on(http.MethodGet, shopify.EndpointInventoryLevels, func(call) (*shopify.Response, error) {
		return jsonResponse(t, http.StatusOK, shopify.InventoryLevelsEnvelope{InventoryLevels: []shopify.InventoryLevelPayload{
			{InventoryItemID: 11, LocationID: 7, Available: int64Ptr(available)},
		}}), nil
	})

	puller := NewPuller(env.remote, env.repos, env.metrics, env.logger)
	_, err := puller.Pull(ctx)
	require.NoError(t, err)

	available = 9
	res, err := puller.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VariantsCreated)

	ids, err := env.repos.Variant.ListInventoryItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, ids)

	all, err := env.repos.InventoryLevel.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(9), all[0].Available)
}

func TestPuller_PartLinkSurvivesPulls(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	title, price := "M4", "1.25"
	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		p := product(1, "Bolt", 11)
		p.Variants[0].Title = title
		p.Variants[0].Price = decimal.RequireFromString(price)
		return productsPage(t, "", p), nil
	})
	env.remote.on(http.MethodGet, shopify.EndpointInventoryLevels, func(call) (*shopify.Response, error) {
		return jsonResponse(t, http.StatusOK, shopify.InventoryLevelsEnvelope{InventoryLevels: []shopify.InventoryLevelPayload{
			{InventoryItemID: 11, LocationID: 7, Available: int64Ptr(5)},
		}}), nil
	})

	puller := NewPuller(env.remote, env.repos, env.metrics, env.logger)
	_, err := puller.Pull(ctx)
	require.NoError(t, err)

	part := uuid.New()
	require.NoError(t, env.repos.Variant.LinkPart(ctx, 11, &part))

	title, price = "M4 zinc", "2.50"
	for i := 0; i < 2; i++ {
		res, err := puller.Pull(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, res.VariantsCreated)
	}

	v, err := env.repos.Variant.GetByInventoryItemID(ctx, 11)
	require.NoError(t, err)
	require.NotNil(t, v.PartID)
	assert.Equal(t, part, *v.PartID)
	assert.Equal(t, "M4", v.Title)
	assert.True(t, decimal.RequireFromString("1.25").Equal(v.Price))
}

func TestPuller_CatalogErrorWritesNothing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		return rawResponse(http.StatusUnauthorized, `{"errors":"[API] Invalid API key or access token"}`), nil
	})

	_, err := NewPuller(env.remote, env.repos, env.metrics, env.logger).Pull(ctx)
	var catalogErr *errors.ErrRemoteCatalog
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, http.StatusUnauthorized, catalogErr.Status)

	products, err := env.repos.Product.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Empty(t, env.remote.callsTo(http.MethodGet, shopify.EndpointInventoryLevels))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.PullRuns.WithLabelValues("error")))
}

func TestPuller_LevelsErrorKeepsCatalog(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		return productsPage(t, "", product(1, "Bolt", 11)), nil
	})
	env.remote.on(http.MethodGet, shopify.EndpointInventoryLevels, func(call) (*shopify.Response, error) {
		return rawResponse(http.StatusOK, `{"errors":{"inventory_item_ids":["is invalid"]}}`), nil
	})

	_, err := NewPuller(env.remote, env.repos, env.metrics, env.logger).Pull(ctx)
	var levelsErr *errors.ErrRemoteLevels
	require.ErrorAs(t, err, &levelsErr)

	products, err := env.repos.Product.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestPuller_TransportErrorIsRetryable(t *testing.T) {
	env := newTestEnv()

	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(c call) (*shopify.Response, error) {
		return nil, &errors.ErrRemoteCall{Method: c.Method, Endpoint: c.Endpoint, Err: context.DeadlineExceeded}
	})

	_, err := NewPuller(env.remote, env.repos, env.metrics, env.logger).Pull(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestPuller_LevelsAreChunked(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	items := make([]int64, 0, 120)
	for i := int64(1); i <= 120; i++ {
		items = append(items, 1000+i)
	}
	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		return productsPage(t, "", product(1, "Washer", items...)), nil
	})
	env.remote.on(http.MethodGet, shopify.EndpointInventoryLevels, func(c call) (*shopify.Response, error) {
		n := len(strings.Split(c.Params.Get("inventory_item_ids"), ","))
		assert.LessOrEqual(t, n, shopify.LevelsChunkSize)
		return jsonResponse(t, http.StatusOK, shopify.InventoryLevelsEnvelope{}), nil
	})

	_, err := NewPuller(env.remote, env.repos, env.metrics, env.logger).Pull(ctx)
	require.NoError(t, err)
	assert.Len(t, env.remote.callsTo(http.MethodGet, shopify.EndpointInventoryLevels), 3)
}

func TestPuller_NoVariantsSkipsLevels(t *testing.T) {
	env := newTestEnv()

	env.remote.on(http.MethodGet, shopify.EndpointProducts, func(call) (*shopify.Response, error) {
		return productsPage(t, "", product(1, "Gift card")), nil
	})

	res, err := NewPuller(env.remote, env.repos, env.metrics, env.logger).Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Products)
	assert.Empty(t, env.remote.callsTo(http.MethodGet, shopify.EndpointInventoryLevels))
}
