package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/domain"
)

type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expireTime"`
}

// SetWithLogicalExpire stores value without a Redis TTL; readers treat it
// as stale once ttl has passed.
func (s *Store) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Data: data, ExpireAt: s.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, raw, 0).Err()
}

// Prewarm loads value into the logical-expiration layout.
func Prewarm[T any, ID any](ctx context.Context, s *Store, prefix string, id ID, value *T, ttl time.Duration) error {
	return s.SetWithLogicalExpire(ctx, Key(prefix, id), value, ttl)
}

func (s *Store) readEnvelope(ctx context.Context, key string) (*envelope, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && raw == nullMarker) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &env, nil
}

// ReadLogicalExpire never blocks on the source of truth. Keys that were not
// pre-warmed are domain.ErrNotFound. An expired entry is still returned;
// the first reader to take the rebuild lock also schedules a refresh on the
// store's worker pool.
func ReadLogicalExpire[T any, ID any](ctx context.Context, s *Store, prefix string, id ID, loader Loader[T, ID], ttl time.Duration) (*T, error) {
	key := Key(prefix, id)

	env, err := s.readEnvelope(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		s.metrics.IncCacheMiss()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.ExpireAt.After(s.now()) {
		s.metrics.IncCacheHit()
		return &v, nil
	}

	s.metrics.IncCacheStale()
	s.scheduleRebuild(ctx, key, func(ctx context.Context) error {
		// Someone may have refreshed the key between our read and the lock.
		if cur, err := s.readEnvelope(ctx, key); err == nil && cur.ExpireAt.After(s.now()) {
			return nil
		}
		fresh, err := load(ctx, loader, id)
		if err != nil {
			return err
		}
		if fresh == nil {
			s.logger.Info("Entity gone from source, dropping hot key", zap.String("key", key))
			return s.Delete(ctx, key)
		}
		return s.SetWithLogicalExpire(ctx, key, fresh, ttl)
	})
	return &v, nil
}

// scheduleRebuild takes the rebuild lock for key and hands rebuild to the
// pool. The lock is released when rebuild finishes, fails or panics, or at
// once when the pool refuses the job.
func (s *Store) scheduleRebuild(ctx context.Context, key string, rebuild func(ctx context.Context) error) {
	h, ok, err := s.locker.TryAcquire(ctx, LockKey(key), s.opts.LockLease)
	if err != nil {
		s.logger.Warn("Error while taking rebuild lock",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	if !ok {
		return
	}

	bg := context.WithoutCancel(ctx)
	accepted := s.pool.Submit(func() {
		defer s.release(bg, h)
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.ObserveRebuild(msSince(start), false)
				s.logger.Error("Cache rebuild panicked",
					zap.String("key", key),
					zap.Any("panic", r),
				)
			}
		}()

		rctx, cancel := context.WithTimeout(bg, s.opts.LockLease)
		defer cancel()

		if err := rebuild(rctx); err != nil {
			s.metrics.ObserveRebuild(msSince(start), false)
			s.logger.Error("Cache rebuild failed, keeping stale entry",
				zap.String("key", key),
				zap.Error(err),
			)
			return
		}
		s.metrics.ObserveRebuild(msSince(start), true)
		s.logger.Debug("Cache rebuilt",
			zap.String("key", key),
			zap.Float64("rebuild_ms", msSince(start)),
		)
	})
	if !accepted {
		s.release(bg, h)
		s.logger.Warn("Rebuild pool refused job, serving stale entry", zap.String("key", key))
	}
}
