package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/interfaces/http/handlers"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
)

// CallbackRouteConfig holds dependencies for provider callback routes.
type CallbackRouteConfig struct {
	CallbackHandler *handlers.CallbackHandler
	// RateLimiter is optional; callbacks are unlimited when it is nil.
	RateLimiter *middleware.RateLimiter
}

// SetupCallbackRoutes registers the public callback endpoint. Providers use
// GET for browser redirects and POST for server notifications.
func SetupCallbackRoutes(engine *gin.Engine, cfg *CallbackRouteConfig) {
	callbacks := engine.Group("/callbacks")
	if cfg.RateLimiter != nil {
		callbacks.Use(cfg.RateLimiter.Limit())
	}
	{
		callbacks.GET("/:gateway", cfg.CallbackHandler.HandleCallback)
		callbacks.POST("/:gateway", cfg.CallbackHandler.HandleCallback)
	}
}
