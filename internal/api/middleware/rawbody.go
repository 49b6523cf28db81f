package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rawBodyKey = "raw_body"

// MaxWebhookBody caps inbound webhook payloads
const MaxWebhookBody = 1 << 20

// CaptureRawBody reads the request body once and keeps the exact bytes in the
// context. Signatures are computed over the raw payload.
func CaptureRawBody(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				c.Abort()
				return
			}
			logger.Error("Failed to read request body", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			c.Abort()
			return
		}

		// Restore body for handler
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		c.Set(rawBodyKey, body)
		c.Next()
	}
}

// GetRawBody returns the bytes captured by CaptureRawBody
func GetRawBody(c *gin.Context) ([]byte, bool) {
	v, exists := c.Get(rawBodyKey)
	if !exists {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}
