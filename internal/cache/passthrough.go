package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/domain"
)

// ReadThrough returns the cached entity, or loads it on a miss and caches
// the result for ttl. Entities the loader cannot find are remembered for
// the store's NullTTL and reported as domain.ErrNotFound without calling the
// loader again. Loader errors are returned and nothing is cached.
func ReadThrough[T any, ID any](ctx context.Context, s *Store, prefix string, id ID, loader Loader[T, ID], ttl time.Duration) (*T, error) {
	key := Key(prefix, id)

	v, found, err := lookup[T](ctx, s, key)
	if err != nil {
		return nil, err
	}
	if found {
		if v == nil {
			return nil, domain.ErrNotFound
		}
		return v, nil
	}

	// The flight outlives any one caller: it runs without their cancellation
	// and each caller stops waiting on its own ctx.
	ch := s.sf.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LoadTimeout)
		defer cancel()

		// A flight that just finished may have filled the key.
		v, found, err := peek[T](fctx, s, key)
		if err != nil {
			return nil, err
		}
		if found {
			if v == nil {
				return nil, domain.ErrNotFound
			}
			return v, nil
		}

		loaded, err := load(fctx, loader, id)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			s.setNull(fctx, key)
			return nil, domain.ErrNotFound
		}
		if err := s.Set(fctx, key, loaded, ttl); err != nil {
			s.logger.Warn("Error while caching entity",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}
