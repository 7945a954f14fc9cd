// Package pubsub tells downstream systems that payments settled. Redis Pub/Sub
// and Kafka carry the same JSON body; the log publisher is for development.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const DefaultCapturedChannel = "paygate:payment:captured"

// CapturedEventHandler handles one decoded payment captured event.
type CapturedEventHandler func(ctx context.Context, event payment.PaymentCapturedEvent)

func encodeCaptured(event *payment.PaymentCapturedEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// RedisPaymentEventBus publishes and subscribes to payment captured events
// over Redis Pub/Sub.
type RedisPaymentEventBus struct {
	client  *redis.Client
	channel string
	logger  logger.Interface
}

var _ usecases.FulfillmentPublisher = (*RedisPaymentEventBus)(nil)

func NewRedisPaymentEventBus(client *redis.Client, channel string, logger logger.Interface) *RedisPaymentEventBus {
	if channel == "" {
		channel = DefaultCapturedChannel
	}
	return &RedisPaymentEventBus{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (b *RedisPaymentEventBus) PublishCaptured(ctx context.Context, event *payment.PaymentCapturedEvent) error {
	data, err := encodeCaptured(event)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish payment captured event",
			"transaction_id", event.TransactionID,
			"channel", b.channel,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("payment captured event published",
		"transaction_id", event.TransactionID,
		"channel", b.channel,
	)
	return nil
}

// Subscribe calls handler for each event until ctx ends.
func (b *RedisPaymentEventBus) Subscribe(ctx context.Context, handler CapturedEventHandler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to payment captured events", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("payment event channel closed")
				return nil
			}

			var event payment.PaymentCapturedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal payment captured event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}
			handler(ctx, event)
		}
	}
}
