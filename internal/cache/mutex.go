package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/pkg/retry"
)

var errLockBusy = errors.New("lock busy")

// ReadWithMutex is ReadThrough with the rebuild serialised across processes
// by the key's rebuild lock. Callers that lose the lock back off following
// the store's retry policy and read again; when the policy is exhausted they
// get ErrBusy.
func ReadWithMutex[T any, ID any](ctx context.Context, s *Store, prefix string, id ID, loader Loader[T, ID], ttl time.Duration) (*T, error) {
	key := Key(prefix, id)
	var out *T

	cached := func(read func(context.Context, *Store, string) (*T, bool, error)) (bool, error) {
		v, found, err := read(ctx, s, key)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		if v == nil {
			return true, domain.ErrNotFound
		}
		out = v
		return true, nil
	}

	err := retry.Do(ctx, s.opts.Retry, func() error {
		if done, err := cached(lookup[T]); done || err != nil {
			return retry.Permanent(err)
		}

		h, ok, err := s.locker.TryAcquire(ctx, LockKey(key), s.opts.LockLease)
		if err != nil {
			return retry.Permanent(err)
		}
		if !ok {
			return errLockBusy
		}
		defer s.release(ctx, h)

		if done, err := cached(peek[T]); done || err != nil {
			return retry.Permanent(err)
		}

		loaded, err := load(ctx, loader, id)
		if err != nil {
			return retry.Permanent(err)
		}
		if loaded == nil {
			s.setNull(ctx, key)
			return retry.Permanent(domain.ErrNotFound)
		}
		if err := s.Set(ctx, key, loaded, ttl); err != nil {
			s.logger.Warn("Error while caching entity",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		out = loaded
		return nil
	})
	if errors.Is(err, errLockBusy) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
