package http

import (
	"context"

	"github.com/orris-inc/paygate/internal/interfaces/http/handlers"
	adminHandlers "github.com/orris-inc/paygate/internal/interfaces/http/handlers/admin"
)

// allHandlers holds all HTTP handler instances used by the application.
type allHandlers struct {
	paymentHandler  *handlers.PaymentHandler
	callbackHandler *handlers.CallbackHandler
	healthHandler   *handlers.HealthHandler

	paymentReviewHandler *adminHandlers.PaymentReviewHandler
}

func newHandlers(c *Container) *allHandlers {
	s := c.stack

	checks := map[string]handlers.Pinger{
		"database": handlers.PingFunc(func(ctx context.Context) error {
			sqlDB, err := c.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if c.redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		})
	}

	review := adminHandlers.NewPaymentReviewHandler(s.ReviewQueue, s.Audit, s.RecoverySweep, c.log)
	review.SetSweepObserver(c.metrics)

	return &allHandlers{
		paymentHandler:       handlers.NewPaymentHandler(s.CreatePayment, s.GetPayment, s.CapturePayment, c.log),
		callbackHandler:      handlers.NewCallbackHandler(s.HandleCallback, c.log),
		healthHandler:        handlers.NewHealthHandler(checks, c.log),
		paymentReviewHandler: review,
	}
}
