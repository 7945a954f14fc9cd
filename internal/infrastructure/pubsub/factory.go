package pubsub

import (
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/shared/config"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewFulfillmentPublisher builds the publisher cfg.Driver selects. The
// returned closer flushes the Kafka writer on shutdown.
func NewFulfillmentPublisher(cfg config.FulfillmentConfig, redisClient *redis.Client, log logger.Interface) (usecases.FulfillmentPublisher, io.Closer, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(log), nopCloser{}, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("fulfillment driver redis requires a redis client")
		}
		return NewRedisPaymentEventBus(redisClient, cfg.RedisChannel, log), nopCloser{}, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, fmt.Errorf("fulfillment driver kafka requires fulfillment.kafka_brokers")
		}
		p := NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log)
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unsupported fulfillment driver %q", cfg.Driver)
	}
}
