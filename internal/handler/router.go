package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qrauth/codehub/internal/config"
	"qrauth/codehub/internal/handler/middleware"
	jwtpkg "qrauth/codehub/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	gatherer prometheus.Gatherer,
	qrCodeHandler *QRCodeHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager))
	{
		codes := protected.Group("/qr-codes")
		codes.POST("/generate", qrCodeHandler.Generate)
		codes.POST("/upload", qrCodeHandler.Upload)
		codes.POST("/bulk-delete", qrCodeHandler.BulkDelete)
		codes.POST("/bulk-enable", qrCodeHandler.BulkEnable)
		codes.POST("/print", qrCodeHandler.Print)
		codes.GET("", qrCodeHandler.List)
		codes.GET("/:id", qrCodeHandler.Get)
		codes.PUT("/:id", qrCodeHandler.Update)
		codes.DELETE("/:id", qrCodeHandler.Delete)
		codes.POST("/:id/toggle", qrCodeHandler.Toggle)
		codes.GET("/:id/image", qrCodeHandler.Image)
		codes.GET("/:id/product", qrCodeHandler.Product)

		protected.GET("/usage", qrCodeHandler.Usage)
	}

	// Admin routes (JWT + admin check)
	if adminHandler != nil {
		admin := r.Group("/api/v1/admin")
		admin.Use(middleware.JWTAuth(jwtManager))
		admin.Use(middleware.AdminAuth(cfg.Admin.AccountIDs))
		{
			admin.GET("/accounts/:account_id/usage", adminHandler.GetAccountUsage)
			admin.PUT("/accounts/:account_id/limits", adminHandler.SetAccountLimits)
		}
	}

	return r
}
