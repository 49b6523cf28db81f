package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/api/middleware"
	"github.com/invenhost/inventree-shopify/internal/events"
	"github.com/invenhost/inventree-shopify/internal/metrics"
)

// HandleStockChanged handles POST /internal/events/stock-changed.
// The push runs after the response; the request only names the stock item.
func HandleStockChanged(pusher events.StockChangeHandler, m *metrics.Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := middleware.GetRawBody(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "request body not captured"})
			return
		}

		id, relevant, err := events.DecodeStockEvent(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stock event", "details": err.Error()})
			return
		}
		if !relevant {
			c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
			return
		}

		m.StockEvents.WithLabelValues("http").Inc()
		ctx := context.WithoutCancel(c.Request.Context())
		go pusher.OnStockChanged(ctx, id)

		logger.Debug("Stock change accepted", zap.String("stock_item_id", id.String()))
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "stock_item_id": id})
	}
}
