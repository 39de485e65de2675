package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/pkg/retry"
)

//go:generate mockgen -source=handler.go -destination=handler_mock_test.go -package=handler

var (
	ErrBadJSON     = errors.New("bad json")
	ErrInvalidate  = errors.New("invalidate failed")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

type Service interface {
	Invalidate(ctx context.Context, shopID int64) error
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

// Handler applies shop change events from Kafka to the cache.
type Handler struct {
	service     Service
	breaker     brk
	logger      *zap.Logger
	retryPolicy config.Retry
}

func NewHandler(service Service, breaker brk, retryPolicy config.Retry, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		breaker:     breaker,
		logger:      logger,
		retryPolicy: retryPolicy,
	}
}

// Handle is called by the consumer for one message. The consumer commits
// the offset only after Handle returns nil.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) error {
	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	var ev domain.ShopChanged
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return ErrBadJSON
	}
	if ev.ShopID <= 0 {
		h.logger.Error("missing shopId",
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return ErrBadJSON
	}

	if err := retry.Do(ctx, h.retryPolicy, func() error {
		return h.service.Invalidate(ctx, ev.ShopID)
	}); err != nil {
		h.logger.Error("invalidate failed after retries",
			zap.Int64("shop_id", ev.ShopID),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return ErrInvalidate
	}

	h.breaker.Success()
	h.logger.Info("shop cache invalidated",
		zap.Int64("shop_id", ev.ShopID),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
	)
	return nil
}
