// Package idgen hands out 64-bit ids built from a seconds offset and a
// per-day counter kept in Redis.
//
// Layout, high to low: 1 sign bit (always 0), 31 bits of seconds since
// Epoch, 32 bits of sequence. Ids for one prefix are unique for as long as
// the counter key lives and grow with time.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Epoch is 2024-10-29T09:33:51Z, the zero of the timestamp part.
	Epoch     int64 = 1730194431
	countBits       = 32
	keyPrefix       = "icr:"
)

var ErrCounterUnavailable = errors.New("id counter unavailable")

type Generator struct {
	rdb redis.Cmdable
	now func() time.Time
}

func New(rdb redis.Cmdable) *Generator {
	return &Generator{rdb: rdb, now: time.Now}
}

// NextID costs one INCR against the shared store and is never retried here.
func (g *Generator) NextID(ctx context.Context, prefix string) (int64, error) {
	now := g.now().UTC()
	timestamp := now.Unix() - Epoch

	count, err := g.rdb.Incr(ctx, CounterKey(prefix, now)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return timestamp<<countBits | count, nil
}

// CounterKey is the Redis key of the counter for prefix on t's calendar day.
func CounterKey(prefix string, t time.Time) string {
	return keyPrefix + prefix + ":" + t.UTC().Format("2006:01:02")
}

// Split returns the timestamp offset and sequence of id.
func Split(id int64) (timestamp int64, sequence uint32) {
	return id >> countBits, uint32(id)
}
