package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/api/handlers"
	"github.com/invenhost/inventree-shopify/internal/api/middleware"
	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, svc *service.Services, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(customRecovery(logger))
	router.Use(loggingMiddleware(logger))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "Shopify inventory sync",
			"endpoints": []string{
				"GET /health",
				"GET /metrics",
				"POST /api/webhook/:token/",
				"POST /internal/events/stock-changed",
				"GET /admin/shopify/",
				"GET /admin/shopify/levels",
				"POST /admin/shopify/levels/:location/:item",
				"GET /admin/shopify/webhooks",
			},
		})
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Shopify deliveries: the signature covers the raw body
	router.POST(service.WebhookPath+":token/", middleware.CaptureRawBody(logger),
		handlers.HandleShopifyWebhook(svc.Receiver, logger.Named("webhook")))

	// Local stock changes from the inventory system
	router.POST("/internal/events/stock-changed", middleware.CaptureRawBody(logger),
		handlers.HandleStockChanged(svc.Pusher, m, logger))

	if cfg.Admin.APIKeyHash == "" {
		logger.Warn("ADMIN_API_KEY_HASH not set, admin routes disabled")
		return router
	}

	admin := router.Group("/admin/shopify")
	admin.Use(middleware.AdminAuth(cfg.Admin.APIKeyHash, logger))
	{
		admin.GET("/", handlers.HandleAdminIndex(svc.Scheduler, repos, cfg.Admin.SettingsURL, cfg.Admin.PullTimeout, logger))
		admin.GET("/levels", handlers.HandleListLevels(repos, logger))
		admin.POST("/levels/:location/:item", handlers.HandleSetLevel(svc.Remote, repos, logger))
		admin.GET("/webhooks", handlers.HandleWebhookCheck(svc.Scheduler, cfg.Webhooks.SelfHost, logger))
	}

	return router
}

// customRecovery is a custom recovery middleware that logs panics
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal server error",
			"details": fmt.Sprintf("%v", recovered),
		})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// route template, so endpoint tokens stay out of the logs
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}
