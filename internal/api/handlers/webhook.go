package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/api/middleware"
	"github.com/invenhost/inventree-shopify/internal/domain"
	"github.com/invenhost/inventree-shopify/internal/service"
	"github.com/invenhost/inventree-shopify/pkg/errors"
)

// DeliveryReceiver is satisfied by *service.Receiver
type DeliveryReceiver interface {
	Receive(ctx context.Context, d *service.Delivery) (domain.DeliveryOutcome, error)
}

// HandleShopifyWebhook handles POST /api/webhook/:token/.
// 2xx acknowledges the delivery (duplicates and unhandled topics included),
// 401 rejects it and 5xx asks Shopify to redeliver.
func HandleShopifyWebhook(receiver DeliveryReceiver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := middleware.GetRawBody(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "request body not captured"})
			return
		}

		header := make(map[string]string, len(c.Request.Header))
		for k := range c.Request.Header {
			header[k] = c.Request.Header.Get(k)
		}

		outcome, err := receiver.Receive(c.Request.Context(), &service.Delivery{
			Token:     c.Param("token"),
			Topic:     c.GetHeader(domain.HeaderTopic),
			MessageID: c.GetHeader(domain.HeaderWebhookID),
			Signature: c.GetHeader(domain.HeaderHmacSHA256),
			Header:    header,
			Body:      body,
		})

		if outcome.Acknowledged() {
			c.JSON(http.StatusOK, gin.H{"ok": true, "status": outcome})
			return
		}

		switch err.(type) {
		case *errors.ErrSignatureRejected:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		case *errors.ErrValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Webhook delivery failed, leaving it for redelivery", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		}
	}
}
