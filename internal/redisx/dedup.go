package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids per consumer.
type Dedup struct {
	rdb      redis.Cmdable
	consumer string
	ttl      time.Duration
}

func NewDedup(rdb redis.Cmdable, consumer string, ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Dedup{rdb: rdb, consumer: consumer, ttl: ttl}
}

// First reports whether eventID is seen for the first time, marking it seen.
func (d *Dedup) First(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.consumer, eventID), 1, d.ttl).Result()
}

// Forget clears eventID so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.consumer, eventID)).Err()
}
