package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/version"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the service cannot work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
	logger logger.Interface
}

func NewHealthHandler(checks map[string]Pinger, logger logger.Interface) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck handles GET /health
//
// @Summary		Health check
// @Tags			system
// @Produce		json
// @Success		200	{object}	map[string]interface{}	"Healthy"
// @Failure		503	{object}	map[string]interface{}	"A dependency is down"
// @Router			/health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warnw("health check failed", "dependency", name, "error", err)
			results[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "paygate",
		"version":      version.String(),
		"dependencies": results,
	})
}
