package service

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/shopify"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// Pusher propagates local stock quantities to Shopify inventory levels
type Pusher struct {
	remote  RemoteClient
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPusher creates a new pusher
func NewPusher(remote RemoteClient, repos *repository.Repositories, m *metrics.Metrics, logger *zap.Logger) *Pusher {
	return &Pusher{
		remote:  remote,
		repos:   repos,
		metrics: m,
		logger:  logger,
	}
}

// OnStockChanged pushes the quantity of stockItemID to every level linked to it
// whose mirrored value differs. Failures are logged; nothing is returned.
func (p *Pusher) OnStockChanged(ctx context.Context, stockItemID uuid.UUID) {
	item, err := p.repos.StockItem.GetByID(ctx, stockItemID)
	if errors.IsNotFound(err) {
		p.logger.Debug("Stock item no longer exists, nothing to push", zap.String("stock_item_id", stockItemID.String()))
		return
	}
	if err != nil {
		p.logger.Error("Failed to load stock item", zap.String("stock_item_id", stockItemID.String()), zap.Error(err))
		return
	}

	levels, err := p.repos.InventoryLevel.ListByStockItem(ctx, stockItemID)
	if err != nil {
		p.logger.Error("Failed to load linked inventory levels", zap.String("stock_item_id", stockItemID.String()), zap.Error(err))
		return
	}

	for _, level := range levels {
		if level.Available == item.Quantity.IntPart() {
			p.metrics.PushAttempts.WithLabelValues("skipped").Inc()
			continue
		}
		p.push(ctx, level, item.Quantity)
	}
}

func (p *Pusher) push(ctx context.Context, level *domain.InventoryLevel, quantity decimal.Decimal) {
	available := quantity.IntPart()
	fields := []zap.Field{
		zap.Int64("inventory_item_id", level.InventoryItemID),
		zap.Int64("location_id", level.LocationID),
		zap.Int64("available", available),
	}

	confirmed, updatedAt, err := SetRemoteLevel(ctx, p.remote, level.LocationID, level.InventoryItemID, available)
	if err != nil {
		p.metrics.PushAttempts.WithLabelValues("error").Inc()
		p.logger.Warn("Failed to push inventory level", append(fields, zap.Error(err))...)
		return
	}
	if !confirmed {
		p.metrics.PushAttempts.WithLabelValues("rejected").Inc()
		p.logger.Warn("Inventory level write was not confirmed", fields...)
		return
	}

	if err := p.repos.InventoryLevel.SetAvailable(ctx, level.ID, available, updatedAt); err != nil {
		p.logger.Error("Pushed inventory level but failed to update mirror", append(fields, zap.Error(err))...)
		return
	}
	p.metrics.PushAttempts.WithLabelValues("ok").Inc()
	p.logger.Info("Pushed inventory level", fields...)
}

// SetRemoteLevel writes an absolute level. It reports whether the response
// confirmed the write, with the remote timestamp when one was returned.
func SetRemoteLevel(ctx context.Context, remote RemoteClient, locationID, inventoryItemID, available int64) (bool, *time.Time, error) {
	resp, err := remote.Call(ctx, http.MethodPost, shopify.EndpointInventoryLevelSet, nil, shopify.InventoryLevelSetRequest{
		LocationID:      locationID,
		InventoryItemID: inventoryItemID,
		Available:       available,
	})
	if err != nil {
		return false, nil, err
	}
	if resp.HasErrors() || !resp.Has("inventory_level") {
		return false, nil, nil
	}

	var env shopify.InventoryLevelEnvelope
	if err := resp.Decode(&env); err != nil || env.InventoryLevel == nil {
		return true, nil, nil
	}
	return true, env.InventoryLevel.UpdatedAt, nil
}
