package pubsub

import (
	"context"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// LogPublisher only logs captured events.
type LogPublisher struct {
	logger logger.Interface
}

func NewLogPublisher(logger logger.Interface) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishCaptured(_ context.Context, event *payment.PaymentCapturedEvent) error {
	p.logger.Infow("payment captured",
		"transaction_id", event.TransactionID,
		"gateway", event.Gateway,
		"user_id", event.UserID,
		"order_ids", event.OrderIDs,
		"amount", event.Amount.String(),
		"currency", event.Currency,
	)
	return nil
}
