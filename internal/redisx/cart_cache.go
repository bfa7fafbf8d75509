package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setIfVersionScript writes the cart only while its generation still matches
// the one read before the load.
var setIfVersionScript = redis.NewScript(`
local v = redis.call("GET", KEYS[2])
if not v then v = "0" end
if v ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1`)

// CartCache keeps rendered carts for a short time. Entries carry product
// availability, so the TTL stays small.
type CartCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	jitter time.Duration
	log    zerolog.Logger
}

func NewCartCache(rdb *redis.Client, log zerolog.Logger) *CartCache {
	return &CartCache{rdb: rdb, ttl: TTLCart, jitter: TTLCartJitter, log: log}
}

func (c *CartCache) Get(ctx context.Context, shopperID string) ([]orders.CartItem, bool, error) {
	data, err := c.rdb.Get(ctx, cartKey(shopperID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	var items []orders.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, true, nil
}

// Version returns the shopper's cart generation. Read it before loading from
// the store and hand it to Set.
func (c *CartCache) Version(ctx context.Context, shopperID string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(shopperID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

// Set stores items unless the cart was invalidated after version was read.
func (c *CartCache) Set(ctx context.Context, shopperID string, version int64, items []orders.CartItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := c.ttl
	if c.jitter > 0 {
		ttl += rand.N(c.jitter)
	}
	keys := []string{cartKey(shopperID), versionKey(shopperID)}
	stored, err := setIfVersionScript.Run(ctx, c.rdb, keys, version, b, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		c.log.Debug().Str("shopper_id", shopperID).Int64("version", version).Msg("stale cart not cached")
	}
	return nil
}

// Invalidate bumps the generation and drops the entry. Failures are logged
// only; the entry expires on its own.
func (c *CartCache) Invalidate(ctx context.Context, shopperID string) {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, versionKey(shopperID))
		p.Expire(ctx, versionKey(shopperID), TTLCartVersion)
		p.Del(ctx, cartKey(shopperID))
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("shopper_id", shopperID).Msg("cart cache invalidate failed")
	}
}

func cartKey(shopperID string) string    { return fmt.Sprintf(KeyCart, shopperID) }
func versionKey(shopperID string) string { return fmt.Sprintf(KeyCartVersion, shopperID) }
