package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/orris-inc/paygate/docs"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
	"github.com/orris-inc/paygate/internal/interfaces/http/routes"
)

// SetupRoutes registers middleware and every route group on the engine.
func (c *Container) SetupRoutes() {
	engine := c.engine

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing())
	engine.Use(middleware.Logger(c.log))
	engine.Use(middleware.Recovery(c.log))
	engine.Use(middleware.ErrorHandler(c.log))
	engine.Use(middleware.CORS(c.cfg.Server.AllowedOrigins))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.Metrics(c.metrics))

	engine.GET("/health", c.hdlrs.healthHandler.HealthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupCallbackRoutes(engine, &routes.CallbackRouteConfig{
		CallbackHandler: c.hdlrs.callbackHandler,
		RateLimiter:     c.callbackLimiter,
	})

	api := engine.Group("/api/v1")
	routes.SetupPaymentRoutes(api, &routes.PaymentRouteConfig{
		PaymentHandler: c.hdlrs.paymentHandler,
		AuthMiddleware: c.authMiddleware,
	})
	routes.SetupAdminRoutes(api, &routes.AdminRouteConfig{
		PaymentReviewHandler: c.hdlrs.paymentReviewHandler,
		AuthMiddleware:       c.authMiddleware,
		PermissionMiddleware: c.permissionMiddleware,
	})
}
