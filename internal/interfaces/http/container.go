package http

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/infrastructure/auth"
	"github.com/orris-inc/paygate/internal/infrastructure/config"
	"github.com/orris-inc/paygate/internal/infrastructure/metrics"
	"github.com/orris-inc/paygate/internal/infrastructure/paymentstack"
	"github.com/orris-inc/paygate/internal/infrastructure/permission"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// Container holds the infrastructure, the payment stack, handlers and
// middlewares of the HTTP server, and releases them in Shutdown.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	// Observability
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Payment core
	stack    *paymentstack.Stack
	enforcer *permission.Enforcer

	// Handlers
	hdlrs *allHandlers

	// Middlewares
	authMiddleware       *middleware.AuthMiddleware
	permissionMiddleware *middleware.PermissionMiddleware
	callbackLimiter      *middleware.RateLimiter
}

// NewContainer wires every component the server needs.
func NewContainer(db *gorm.DB, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}
	if err := c.initPayments(); err != nil {
		c.Shutdown()
		return nil, err
	}
	c.hdlrs = newHandlers(c)

	return c, nil
}

// initInfrastructure connects Redis and builds metrics and auth.
func (c *Container) initInfrastructure() error {
	cfg := c.cfg
	log := c.log

	redisClient, err := paymentstack.ConnectRedis(context.Background(), cfg)
	switch {
	case err == nil:
		c.redis = redisClient
		log.Infow("redis connection established", "addr", cfg.Redis.GetAddr())
	case paymentstack.NeedsRedis(cfg):
		return err
	default:
		log.Warnw("redis unavailable, callback rate limiting disabled", "error", err)
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.New(c.registry)

	jwtSvc := auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.AccessExpMinutes)
	c.authMiddleware = middleware.NewAuthMiddleware(jwtSvc, log)

	if c.redis != nil && cfg.Payment.CallbackRateLimit > 0 {
		c.callbackLimiter = middleware.NewRateLimiter(c.redis, "callbacks", cfg.Payment.CallbackRateLimit, time.Minute, log)
	}
	return nil
}

// initPayments builds the payment stack and the admin permission model.
func (c *Container) initPayments() error {
	stack, err := paymentstack.Build(c.cfg, c.db, c.redis, c.metrics, c.log)
	if err != nil {
		return err
	}
	c.stack = stack

	enforcer, err := permission.NewEnforcer(c.db, c.log.Named("permission"))
	if err != nil {
		return err
	}
	if err := enforcer.SeedDefaults(); err != nil {
		return err
	}
	c.enforcer = enforcer
	c.permissionMiddleware = middleware.NewPermissionMiddleware(enforcer, c.log)
	return nil
}

// Engine returns the gin engine with routes registered by SetupRoutes.
func (c *Container) Engine() *gin.Engine {
	return c.engine
}

// Shutdown flushes publishers and closes Redis.
func (c *Container) Shutdown() {
	var errs []error
	if c.stack != nil {
		errs = append(errs, c.stack.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Warnw("container shutdown finished with errors", "error", err)
		return
	}
	c.log.Infow("container shut down")
}
