package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup records processed event ids per consuming service.
type Dedup struct {
	rdb *redis.Client
}

func NewDedup(rdb *redis.Client) *Dedup { return &Dedup{rdb: rdb} }

func (d *Dedup) Seen(ctx context.Context, scope, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, fmt.Sprintf(KeyDedup, scope, eventID))
}

func (d *Dedup) Mark(ctx context.Context, scope, eventID string) error {
	return d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, scope, eventID), "1", TTLDedup).Err()
}
