package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/infrastructure/permission"
	adminHandlers "github.com/orris-inc/paygate/internal/interfaces/http/handlers/admin"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
)

// AdminRouteConfig holds dependencies for operator routes.
type AdminRouteConfig struct {
	PaymentReviewHandler *adminHandlers.PaymentReviewHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

// SetupAdminRoutes configures operator endpoints guarded by casbin policies.
func SetupAdminRoutes(api *gin.RouterGroup, cfg *AdminRouteConfig) {
	admin := api.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAuth())

	transactions := admin.Group("/transactions")
	transactions.Use(cfg.PermissionMiddleware.RequirePermission(permission.ResourceTransactions, permission.ActionRead))
	{
		transactions.GET("/review", cfg.PaymentReviewHandler.ListReviewQueue)
		transactions.GET("/:transaction_id/events", cfg.PaymentReviewHandler.GetTransactionEvents)
	}

	recovery := admin.Group("/recovery")
	recovery.Use(cfg.PermissionMiddleware.RequirePermission(permission.ResourceRecovery, permission.ActionRun))
	{
		recovery.POST("/sweep", cfg.PaymentReviewHandler.RunRecoverySweep)
	}
}
