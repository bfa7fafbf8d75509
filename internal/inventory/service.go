// Package inventory owns available_quantity. Every path that changes stock
// (reserve, release, expiry, cancellation) goes through Decrement/Increment.
package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/rs/zerolog"
)

type Service struct {
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Decrement removes qty units from productID or fails with
// orders.ErrInsufficientStock without writing anything.
func (s *Service) Decrement(ctx context.Context, tx store.Products, productID string, qty int) error {
	if qty <= 0 {
		return orders.ErrInvalidQuantity
	}
	left, err := tx.DecrementStock(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement %s by %d: %w", productID, qty, err)
	}
	s.Metrics.Stock(productID, left)
	if left == 0 {
		s.Log.Info().Str("product_id", productID).Msg("product sold out")
	}
	return nil
}

// Increment returns qty units to productID. Callers own idempotency: the same
// release must never be applied twice.
func (s *Service) Increment(ctx context.Context, tx store.Products, productID string, qty int) error {
	if qty <= 0 {
		return orders.ErrInvalidQuantity
	}
	left, err := tx.IncrementStock(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("increment %s by %d: %w", productID, qty, err)
	}
	s.Metrics.Stock(productID, left)
	return nil
}
