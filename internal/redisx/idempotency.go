package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CheckoutKeys maps (shopper, Idempotency-Key) to the order it created.
type CheckoutKeys struct {
	rdb *redis.Client
}

func NewCheckoutKeys(rdb *redis.Client) *CheckoutKeys { return &CheckoutKeys{rdb: rdb} }

func (k *CheckoutKeys) Lookup(ctx context.Context, shopperID, key string) (string, bool, error) {
	id, err := k.rdb.Get(ctx, fmt.Sprintf(KeyIdemCheckout, shopperID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return id, true, nil
}

func (k *CheckoutKeys) Remember(ctx context.Context, shopperID, key, orderID string) error {
	if err := k.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, shopperID, key), orderID, TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
