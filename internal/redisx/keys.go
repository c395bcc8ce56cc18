package redisx

import "time"

const (
	// product:{id} -> JSON product, read-through cache for GET /products/{id}
	KeyProduct = "product:%d"

	// idem:checkout:{user_id}:{key} -> "pending" while running, JSON order afterwards
	KeyIdemCheckout = "idem:checkout:%d:%s"

	// dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLProduct     = time.Minute
	TTLIdempotency = 24 * time.Hour
	// TTLPending bounds how long a crashed checkout blocks its key.
	TTLPending = time.Minute
	TTLDedup   = 24 * time.Hour
)
