package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/interfaces/http/handlers"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
)

// PaymentRouteConfig holds dependencies for payment routes.
type PaymentRouteConfig struct {
	PaymentHandler *handlers.PaymentHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// SetupPaymentRoutes configures the authenticated payment API.
func SetupPaymentRoutes(api *gin.RouterGroup, cfg *PaymentRouteConfig) {
	payments := api.Group("/payments")
	payments.Use(cfg.AuthMiddleware.RequireAuth())
	{
		payments.POST("", cfg.PaymentHandler.CreatePayment)
		payments.GET("/:transaction_id", cfg.PaymentHandler.GetPayment)
		payments.POST("/:transaction_id/capture", cfg.PaymentHandler.CapturePayment)
	}
}
