// Package lock is a non-blocking lease lock over Redis.
//
// Acquisition is a single SET NX PX; the lease is the key TTL. Release is a
// compare-and-delete script so a holder whose lease ran out cannot drop the
// lock of whoever took it next.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock is held by another owner")

var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

type Handle struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

type Locker struct {
	rdb redis.Cmdable
	now func() time.Time
}

func New(rdb redis.Cmdable) *Locker {
	return &Locker{
		rdb: rdb,
		now: time.Now,
	}
}

// TryAcquire never waits. A held lock yields (nil, false, nil).
func (l *Locker) TryAcquire(ctx context.Context, key string, lease time.Duration) (*Handle, bool, error) {
	if lease <= 0 {
		return nil, false, fmt.Errorf("lock %s: lease must be positive, got %v", key, lease)
	}
	token := uuid.NewString()
	start := l.now()

	ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Handle{Key: key, Token: token, ExpiresAt: start.Add(lease)}, true, nil
}

// Release deletes the key only while it still carries h's token.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{h.Key}, h.Token).Err(); err != nil {
		return fmt.Errorf("unlock %s: %w", h.Key, err)
	}
	return nil
}

// TryWithLock runs fn while holding key. The lock is released after fn
// returns or panics, on a context that outlives ctx's cancellation.
func TryWithLock(ctx context.Context, l *Locker, key string, lease time.Duration, fn func(ctx context.Context) error) (err error) {
	h, ok, err := l.TryAcquire(ctx, key, lease)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx), h); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ctx)
}
