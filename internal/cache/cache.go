// Package cache implements cache-aside reads over Redis.
//
// Three read protocols share one key layout, prefix + id:
//
//   - ReadThrough caches misses as an empty-string marker with a short TTL
//     so ids missing from the source of truth stop reaching it.
//   - ReadLogicalExpire serves pre-warmed hot entries that never expire in
//     Redis; staleness is decided from an expiry stored in the payload and
//     refreshed in the background, at most one rebuild per key at a time.
//   - ReadWithMutex lets one caller per key rebuild a missing entry while the
//     others back off and read again.
//
// Writes to the source of truth are not propagated: callers invalidate with
// Delete.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/lock"
	"github.com/TemirB/dianping-seckill/internal/observability"
)

const (
	nullMarker    = ""
	lockKeyPrefix = "lock:"
)

var ErrBusy = errors.New("cache rebuild lock busy")

// Loader reads one entity from the source of truth. A nil entity or
// domain.ErrNotFound both mean the entity does not exist.
type Loader[T any, ID any] func(ctx context.Context, id ID) (*T, error)

type Submitter interface {
	Submit(func()) bool
}

type Options struct {
	NullTTL   time.Duration
	LockLease time.Duration

	// LoadTimeout bounds a shared pass-through load.
	LoadTimeout time.Duration

	// Retry bounds how long ReadWithMutex waits for another rebuilder.
	Retry config.Retry
}

type Store struct {
	rdb     redis.Cmdable
	locker  *lock.Locker
	pool    Submitter
	logger  *zap.Logger
	metrics observability.Metrics
	sf      singleflight.Group
	opts    Options
	now     func() time.Time
}

func New(rdb redis.Cmdable, locker *lock.Locker, pool Submitter, opts Options, logger *zap.Logger, metrics observability.Metrics) *Store {
	if opts.NullTTL <= 0 {
		opts.NullTTL = 2 * time.Minute
	}
	if opts.LockLease <= 0 {
		opts.LockLease = 10 * time.Second
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = opts.LockLease
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Store{
		rdb:     rdb,
		locker:  locker,
		pool:    pool,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
}

// Key is the Redis key for id under prefix.
func Key[ID any](prefix string, id ID) string {
	return prefix + fmt.Sprint(id)
}

// LockKey is the key of the rebuild lock guarding cache key.
func LockKey(key string) string {
	return lockKeyPrefix + key
}

func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, raw, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Store) setNull(ctx context.Context, key string) {
	if err := s.rdb.Set(ctx, key, nullMarker, s.opts.NullTTL).Err(); err != nil {
		s.logger.Warn("Error while caching absent marker",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// lookup reports found=true for a live entry (v set) and for the absent
// marker (v nil), and records the hit or miss.
func lookup[T any](ctx context.Context, s *Store, key string) (*T, bool, error) {
	v, found, err := peek[T](ctx, s, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		s.metrics.IncCacheHit()
	} else {
		s.metrics.IncCacheMiss()
	}
	return v, found, nil
}

// peek is lookup without metrics, for re-checks after a caller already
// counted its miss. An undecodable entry counts as a miss so it gets
// rewritten.
func peek[T any](ctx context.Context, s *Store, key string) (*T, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == nullMarker {
		return nil, true, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("Undecodable cache entry, reloading",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false, nil
	}
	return &v, true, nil
}

func load[T any, ID any](ctx context.Context, loader Loader[T, ID], id ID) (*T, error) {
	v, err := loader(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) release(ctx context.Context, h *lock.Handle) {
	if err := s.locker.Release(context.WithoutCancel(ctx), h); err != nil {
		s.logger.Warn("Error while releasing rebuild lock",
			zap.String("lock", h.Key),
			zap.Error(err),
		)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
