package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// CachedCatalog is a read-through product cache in front of another
// catalog. Redis failures fall back to the underlying catalog.
type CachedCatalog struct {
	next   orders.Catalog
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalog(next orders.Catalog, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = TTLProduct
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func ProductKey(id int64) string { return fmt.Sprintf(KeyProduct, id) }

func (c *CachedCatalog) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	key := ProductKey(id)

	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p orders.Product
		if jerr := json.Unmarshal(val, &p); jerr == nil {
			return p, nil
		}
		logging.Warn(ctx, c.logger, "Dropping undecodable cached product", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		logging.Warn(ctx, c.logger, "Product cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return orders.Product{}, err
	}
	if data, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logging.Warn(ctx, c.logger, "Product cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return p, nil
}

// Invalidate drops the cached entries of ids.
func (c *CachedCatalog) Invalidate(ctx context.Context, ids ...int64) error {
	return ProductInvalidator{rdb: c.rdb}.Invalidate(ctx, ids...)
}

// ProductInvalidator drops cached products without reading through. The
// projector uses it where no catalog backend is available.
type ProductInvalidator struct {
	rdb redis.Cmdable
}

func NewProductInvalidator(rdb redis.Cmdable) ProductInvalidator {
	return ProductInvalidator{rdb: rdb}
}

func (p ProductInvalidator) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ProductKey(id)
	}
	return p.rdb.Del(ctx, keys...).Err()
}
