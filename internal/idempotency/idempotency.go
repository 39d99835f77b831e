package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/redis"
)

// Idempotency replays the stored response for a repeated Idempotency-Key,
// so a client retrying a timed-out POST cannot create a second reservation.
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
	if key == "" || i.redis == nil {
		return nil, nil
	}
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Result: stored.Body}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	if key == "" || i.redis == nil {
		return nil
	}
	return i.redis.Set(ctx, key, redisadapter.StoredResponse{Status: resp.Status, Body: resp.Result}, i.ttl)
}
