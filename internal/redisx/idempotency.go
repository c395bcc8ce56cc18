package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

const pendingMarker = "pending"

// Idempotency stores checkout results under client supplied keys.
type Idempotency struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotency(rdb redis.Cmdable, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

func idemKey(userID int64, key string) string {
	return fmt.Sprintf(KeyIdemCheckout, userID, key)
}

// Claim reserves key for a new request. It returns the stored result when
// the key already completed, or orders.ErrRequestInFlight while another
// request holds it.
func (i *Idempotency) Claim(ctx context.Context, userID int64, key string) ([]byte, error) {
	k := idemKey(userID, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, TTLPending).Result()
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", k, err)
	}
	if ok {
		return nil, nil
	}

	val, err := i.rdb.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		return nil, orders.ErrRequestInFlight
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", k, err)
	case string(val) == pendingMarker:
		return nil, orders.ErrRequestInFlight
	}
	return val, nil
}

func (i *Idempotency) Complete(ctx context.Context, userID int64, key string, result []byte) error {
	return i.rdb.Set(ctx, idemKey(userID, key), result, i.ttl).Err()
}

func (i *Idempotency) Abandon(ctx context.Context, userID int64, key string) error {
	return i.rdb.Del(ctx, idemKey(userID, key)).Err()
}
