package redisx

import "time"

const (
	// Rendered cart: cart:{shopper_id} -> JSON []CartItem
	KeyCart = "cart:%s"

	// Cart generation, bumped on every invalidation: cartver:{shopper_id} -> int
	KeyCartVersion = "cartver:%s"

	// Checkout idempotency: idem:checkout:{shopper_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Leader lock for background jobs: lock:{name} -> owner token
	KeyLock = "lock:%s"
)

var (
	TTLCart        = 30 * time.Second
	TTLCartJitter  = 10 * time.Second
	TTLCartVersion = 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
