package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/domain"
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// OrderPublisher emits an event for every order written to the relational
// store. Messages are keyed by user so one user's orders stay ordered.
type OrderPublisher struct {
	writer Writer
	logger *zap.Logger
}

func NewOrderPublisher(w Writer, logger *zap.Logger) *OrderPublisher {
	return &OrderPublisher{writer: w, logger: logger}
}

func (p *OrderPublisher) PublishOrderCreated(ctx context.Context, order domain.VoucherOrder) error {
	value, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %d: %w", order.ID, err)
	}
	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(order.UserID, 10)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte("order.created")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order %d: %w", order.ID, err)
	}
	p.logger.Debug("Order event published", zap.Int64("order_id", order.ID))
	return nil
}

func (p *OrderPublisher) Close() error { return p.writer.Close() }
