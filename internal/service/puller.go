package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/shopify"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// PullResult summarizes one pull
type PullResult struct {
	Products        int `json:"products"`
	VariantsCreated int `json:"variants_created"`
	Levels          int `json:"levels"`
	LevelsSkipped   int `json:"levels_skipped"`
}

// Puller mirrors the remote catalog and inventory levels into the local store
type Puller struct {
	remote  RemoteClient
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPuller creates a new puller
func NewPuller(remote RemoteClient, repos *repository.Repositories, m *metrics.Metrics, logger *zap.Logger) *Puller {
	return &Puller{
		remote:  remote,
		repos:   repos,
		metrics: m,
		logger:  logger,
	}
}

// Pull fetches every product page, upserts products, creates unknown variants,
// then refreshes the inventory levels of all locally known variants.
// A catalog error aborts before anything is written. A levels error leaves
// the products and variants committed.
func (p *Puller) Pull(ctx context.Context) (*PullResult, error) {
	start := time.Now()
	res, err := p.pull(ctx)
	p.metrics.PullDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.PullRuns.WithLabelValues("error").Inc()
		return res, err
	}
	p.metrics.PullRuns.WithLabelValues("ok").Inc()
	return res, nil
}

func (p *Puller) pull(ctx context.Context) (*PullResult, error) {
	res := &PullResult{}

	products, err := p.fetchProducts(ctx)
	if err != nil {
		return res, err
	}

	for _, payload := range products {
		if err := p.repos.Product.Upsert(ctx, payload.ToDomain()); err != nil {
			return res, fmt.Errorf("failed to upsert product %d: %w", payload.ID, err)
		}
		res.Products++

		for _, vp := range payload.Variants {
			created, err := p.repos.Variant.CreateIfAbsent(ctx, vp.ToDomain(payload.ID))
			if err != nil {
				return res, fmt.Errorf("failed to create variant for inventory item %d: %w", vp.InventoryItemID, err)
			}
			if created {
				res.VariantsCreated++
			}
		}
	}

	p.logger.Info("Catalog pulled",
		zap.Int("products", res.Products),
		zap.Int("variants_created", res.VariantsCreated),
	)

	ids, err := p.repos.Variant.ListInventoryItemIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list inventory item ids: %w", err)
	}
	if len(ids) == 0 {
		p.logger.Debug("No variants known locally, skipping inventory levels")
		return res, nil
	}

	levels, err := p.fetchLevels(ctx, ids)
	if err != nil {
		return res, err
	}

	variants, err := p.repos.Variant.ListByInventoryItemIDs(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("failed to resolve variants: %w", err)
	}
	byItem := make(map[int64]*domain.Variant, len(variants))
	for _, v := range variants {
		byItem[v.InventoryItemID] = v
	}

	for _, lp := range levels {
		if lp.Available == nil {
			p.logger.Debug("Level is not tracked, skipping",
				zap.Int64("inventory_item_id", lp.InventoryItemID),
				zap.Int64("location_id", lp.LocationID),
			)
			res.LevelsSkipped++
			continue
		}
		variant, ok := byItem[lp.InventoryItemID]
		if !ok {
			p.logger.Warn("Level references an unknown inventory item, skipping",
				zap.Int64("inventory_item_id", lp.InventoryItemID),
				zap.Int64("location_id", lp.LocationID),
			)
			res.LevelsSkipped++
			continue
		}
		if _, err := p.repos.InventoryLevel.UpsertFromRemote(ctx, variant.ID, lp.LocationID, *lp.Available, lp.UpdatedAt); err != nil {
			return res, fmt.Errorf("failed to upsert level for inventory item %d at location %d: %w",
				lp.InventoryItemID, lp.LocationID, err)
		}
		res.Levels++
	}

	p.logger.Info("Inventory levels pulled",
		zap.Int("levels", res.Levels),
		zap.Int("skipped", res.LevelsSkipped),
	)

	return res, nil
}

// fetchProducts walks products.json using the Link header cursor
func (p *Puller) fetchProducts(ctx context.Context) ([]shopify.ProductPayload, error) {
	var all []shopify.ProductPayload
	params := url.Values{"limit": {strconv.Itoa(shopify.ProductsPageLimit)}}

	for {
		resp, err := p.remote.Call(ctx, http.MethodGet, shopify.EndpointProducts, params, nil)
		if err != nil {
			return nil, err
		}
		if resp.HasErrors() {
			return nil, &errors.ErrRemoteCatalog{Status: resp.Status, Body: string(resp.Body)}
		}

		var page shopify.ProductsEnvelope
		if err := resp.Decode(&page); err != nil {
			return nil, &errors.ErrRemoteCatalog{Status: resp.Status, Body: err.Error()}
		}
		all = append(all, page.Products...)

		if resp.NextPageInfo == "" {
			return all, nil
		}
		params = url.Values{
			"limit":     {strconv.Itoa(shopify.ProductsPageLimit)},
			"page_info": {resp.NextPageInfo},
		}
	}
}

// fetchLevels requests levels for ids in chunks, following cursors within a chunk
func (p *Puller) fetchLevels(ctx context.Context, ids []int64) ([]shopify.InventoryLevelPayload, error) {
	var all []shopify.InventoryLevelPayload

	for start := 0; start < len(ids); start += shopify.LevelsChunkSize {
		end := min(start+shopify.LevelsChunkSize, len(ids))

		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		params := url.Values{
			"inventory_item_ids": {strings.Join(parts, ",")},
			"limit":              {strconv.Itoa(shopify.ProductsPageLimit)},
		}

		for {
			resp, err := p.remote.Call(ctx, http.MethodGet, shopify.EndpointInventoryLevels, params, nil)
			if err != nil {
				return nil, err
			}
			if resp.HasErrors() {
				return nil, &errors.ErrRemoteLevels{Status: resp.Status, Body: string(resp.Body)}
			}

			var page shopify.InventoryLevelsEnvelope
			if err := resp.Decode(&page); err != nil {
				return nil, &errors.ErrRemoteLevels{Status: resp.Status, Body: err.Error()}
			}
			all = append(all, page.InventoryLevels...)

			if resp.NextPageInfo == "" {
				break
			}
			params = url.Values{
				"limit":     {strconv.Itoa(shopify.ProductsPageLimit)},
				"page_info": {resp.NextPageInfo},
			}
		}
	}

	return all, nil
}
