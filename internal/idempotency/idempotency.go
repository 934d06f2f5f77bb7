// Package idempotency replays a cached response for a repeated
// Idempotency-Key, so browser retries of checkout do not create second orders.
package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/jerseyevents/ticketing/internal/adapters/redis"
)

// lockTTL bounds how long a crashed request can hold its key before a retry
// may take over.
const lockTTL = time.Minute

type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	resp, err := i.redis.Get(ctx, key)
	if err != nil || resp == nil {
		return nil, err
	}
	return &Response{Status: resp.Status, Result: resp.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}

// Acquire atomically claims the key before any work happens, so two
// concurrent requests with the same key cannot both create an order. The
// loser replays the cached response when one exists, or backs off.
func (i *Idempotency) Acquire(ctx context.Context, key string) (bool, error) {
	return i.redis.Acquire(ctx, key, lockTTL)
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.redis.Release(ctx, key)
}
