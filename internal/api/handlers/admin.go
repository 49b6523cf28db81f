package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/service"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// SyncRunner is satisfied by *service.Scheduler
type SyncRunner interface {
	PullNow(ctx context.Context) (*service.PullResult, error)
	ReconcileNow(ctx context.Context, host string) ([]domain.WebhookDescriptor, error)
}

// HandleAdminIndex handles GET /admin/shopify/.
// It pulls synchronously, then lists products with their variants and levels.
// A failed pull redirects to the settings page, and so does a pull still
// running after pullTimeout.
func HandleAdminIndex(runner SyncRunner, repos *repository.Repositories, settingsURL string, pullTimeout time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		pullCtx := ctx
		if pullTimeout > 0 {
			var cancel context.CancelFunc
			pullCtx, cancel = context.WithTimeout(ctx, pullTimeout)
			defer cancel()
		}
		res, err := runner.PullNow(pullCtx)
		if err != nil {
			logger.Warn("Pull from admin index failed, redirecting to settings", zap.Error(err))
			c.Redirect(http.StatusFound, settingsURL)
			return
		}

		products, err := repos.Product.List(ctx)
		if err != nil {
			logger.Error("Failed to list products", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		variants := make(map[int64][]*domain.Variant, len(products))
		for _, p := range products {
			vs, err := repos.Variant.ListByProduct(ctx, p.ID)
			if err != nil {
				logger.Error("Failed to list variants", zap.Int64("product_id", p.ID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			variants[p.ID] = vs
		}

		levels, err := repos.InventoryLevel.List(ctx, nil)
		if err != nil {
			logger.Error("Failed to list inventory levels", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, service.NewCatalogOverview(res, products, variants, levels))
	}
}

// HandleSetLevel handles POST /admin/shopify/levels/:location/:item
func HandleSetLevel(remote service.RemoteClient, repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		locationID, err := strconv.ParseInt(c.Param("location"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
			return
		}
		itemID, err := strconv.ParseInt(c.Param("item"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inventory item id"})
			return
		}

		var req service.SetLevelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}
		amount := *req.Amount

		ctx := c.Request.Context()
		confirmed, updatedAt, err := service.SetRemoteLevel(ctx, remote, locationID, itemID, amount)
		if err != nil {
			logger.Warn("Manual level set failed", zap.Int64("inventory_item_id", itemID), zap.Int64("location_id", locationID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "API call was not successful"})
			return
		}
		if !confirmed {
			c.JSON(http.StatusBadGateway, gin.H{"error": "API call was not successful"})
			return
		}

		levels, err := repos.InventoryLevel.FindByItemAndLocation(ctx, itemID, locationID)
		if err == nil && len(levels) == 1 {
			err = repos.InventoryLevel.SetAvailable(ctx, levels[0].ID, amount, updatedAt)
		}
		if err != nil {
			logger.Error("Level set remotely but mirror update failed", zap.Int64("inventory_item_id", itemID), zap.Error(err))
		}

		logger.Info("Inventory level set manually",
			zap.Int64("inventory_item_id", itemID),
			zap.Int64("location_id", locationID),
			zap.Int64("available", amount),
		)
		c.JSON(http.StatusOK, gin.H{
			"location_id":       locationID,
			"inventory_item_id": itemID,
			"available":         amount,
		})
	}
}

// HandleWebhookCheck handles GET /admin/shopify/webhooks. It reconciles against
// the configured host, or the host the request came in on.
func HandleWebhookCheck(runner SyncRunner, selfHost string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := selfHost
		if host == "" {
			host = c.Request.Host
		}

		hooks, err := runner.ReconcileNow(c.Request.Context(), host)
		if err != nil {
			if _, ok := err.(*errors.ErrValidation); ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logger.Error("Webhook reconciliation failed", zap.String("host", host), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "webhook reconciliation failed", "details": err.Error()})
			return
		}

		if hooks == nil {
			hooks = []domain.WebhookDescriptor{}
		}
		c.JSON(http.StatusOK, gin.H{"host": host, "webhooks": hooks})
	}
}

// HandleListLevels handles GET /admin/shopify/levels?location_id=
func HandleListLevels(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var locationID *int64
		if raw := c.Query("location_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
				return
			}
			locationID = &id
		}

		levels, err := repos.InventoryLevel.List(c.Request.Context(), locationID)
		if err != nil {
			logger.Error("Failed to list inventory levels", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"levels": service.NewLevelResponses(levels),
			"count":  len(levels),
		})
	}
}
