package service

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/config"
)

// NewStorageBreaker guards the relational loaders behind the cache. It opens
// after Threshold consecutive store failures.
func NewStorageBreaker(cfg config.Breaker, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 1
	}
	maxHalfOpen := cfg.MaxHalfOpen
	if maxHalfOpen == 0 {
		maxHalfOpen = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "shop-storage",
		MaxRequests: maxHalfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: storageHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
}

// storageHealthy: a missing row or a caller that gave up says nothing about
// the store.
func storageHealthy(err error) bool {
	return err == nil ||
		isNotFound(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsUnavailable reports whether err is the storage breaker refusing a load.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
