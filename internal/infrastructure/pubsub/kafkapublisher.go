package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const DefaultCapturedTopic = "payment.captured"

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes captured events keyed by transaction id so every
// event of one transaction lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger logger.Interface
}

var _ usecases.FulfillmentPublisher = (*KafkaPublisher)(nil)

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultCapturedTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
}

func NewKafkaPublisher(writer MessageWriter, logger logger.Interface) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) PublishCaptured(ctx context.Context, event *payment.PaymentCapturedEvent) error {
	data, err := encodeCaptured(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("payment.captured")},
			{Key: "gateway", Value: []byte(event.Gateway)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorw("failed to write payment captured event",
			"transaction_id", event.TransactionID,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
