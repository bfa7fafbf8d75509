// Package reservation keeps the per (shopper, product) holds on stock and
// the sweeper that returns expired holds.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/inventory"
	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/rs/zerolog"
)

// DefaultTTL is the production hold time.
const DefaultTTL = 30 * time.Minute

// Ledger operations run inside the caller's transaction so that the stock
// change and the reservation write commit or roll back together.
type Ledger struct {
	Inventory *inventory.Service
	TTL       time.Duration
	Now       func() time.Time
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) ttl() time.Duration {
	if l.TTL > 0 {
		return l.TTL
	}
	return DefaultTTL
}

// Reserve takes qty units out of stock and adds them to the shopper's hold,
// refreshing its expiry. A hold that has already expired is returned to stock
// first and replaced.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, shopperID, productID string, qty int) (orders.Reservation, error) {
	if qty <= 0 {
		return orders.Reservation{}, orders.ErrInvalidQuantity
	}
	now := l.now()

	r, err := tx.Reservation(ctx, shopperID, productID)
	switch {
	case errors.Is(err, orders.ErrReservationNotFound):
		r = orders.Reservation{ShopperID: shopperID, ProductID: productID, CreatedAt: now}
	case err != nil:
		return orders.Reservation{}, err
	case r.Expired(now):
		if err := l.Inventory.Increment(ctx, tx, productID, r.Quantity); err != nil {
			return orders.Reservation{}, err
		}
		l.Metrics.Returned("expired", r.Quantity)
		r = orders.Reservation{ShopperID: shopperID, ProductID: productID, CreatedAt: now}
	}

	if err := l.Inventory.Decrement(ctx, tx, productID, qty); err != nil {
		if errors.Is(err, orders.ErrInsufficientStock) {
			l.Metrics.Reserve("insufficient")
		} else {
			l.Metrics.Reserve("error")
		}
		return orders.Reservation{}, err
	}

	r.Quantity += qty
	r.ExpiresAt = now.Add(l.ttl())
	r.UpdatedAt = now
	if err := tx.SaveReservation(ctx, r); err != nil {
		l.Metrics.Reserve("error")
		return orders.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}
	l.Metrics.Reserve("reserved")
	return r, nil
}

// Held returns the shopper's active hold on productID, or ErrReservationNotFound
// when there is none or it has expired.
func (l *Ledger) Held(ctx context.Context, tx store.Tx, shopperID, productID string) (orders.Reservation, error) {
	r, err := tx.Reservation(ctx, shopperID, productID)
	if err != nil {
		return orders.Reservation{}, err
	}
	if r.Expired(l.now()) {
		return orders.Reservation{}, orders.ErrReservationNotFound
	}
	return r, nil
}

// Release gives qty units of the hold back to stock.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, shopperID, productID string, qty int) error {
	if err := l.take(ctx, tx, shopperID, productID, qty); err != nil {
		return err
	}
	if err := l.Inventory.Increment(ctx, tx, productID, qty); err != nil {
		return err
	}
	l.Metrics.Returned("removed", qty)
	return nil
}

// Consume removes qty units from the hold without returning them: they are sold.
func (l *Ledger) Consume(ctx context.Context, tx store.Tx, shopperID, productID string, qty int) error {
	return l.take(ctx, tx, shopperID, productID, qty)
}

func (l *Ledger) take(ctx context.Context, tx store.Tx, shopperID, productID string, qty int) error {
	if qty <= 0 {
		return orders.ErrInvalidQuantity
	}
	r, err := l.Held(ctx, tx, shopperID, productID)
	if err != nil {
		return err
	}
	if r.Quantity < qty {
		return fmt.Errorf("%w: holds %d, asked %d", orders.ErrReservationNotFound, r.Quantity, qty)
	}
	r.Quantity -= qty
	if r.Quantity == 0 {
		return tx.DeleteReservation(ctx, shopperID, productID)
	}
	r.UpdatedAt = l.now()
	return tx.SaveReservation(ctx, r)
}

// Expire returns an expired hold to stock and drops it together with the
// cart line it backed. It re-reads the record under lock, so a hold that was
// refreshed, released or consumed in the meantime is left alone and false is
// returned.
func (l *Ledger) Expire(ctx context.Context, tx store.Tx, shopperID, productID string) (orders.Reservation, bool, error) {
	r, err := tx.Reservation(ctx, shopperID, productID)
	if errors.Is(err, orders.ErrReservationNotFound) {
		return orders.Reservation{}, false, nil
	}
	if err != nil {
		return orders.Reservation{}, false, err
	}
	if !r.Expired(l.now()) {
		return r, false, nil
	}
	if err := l.Inventory.Increment(ctx, tx, productID, r.Quantity); err != nil {
		return r, false, err
	}
	if err := tx.DeleteReservation(ctx, shopperID, productID); err != nil {
		return r, false, err
	}
	if err := tx.DeleteCartLine(ctx, shopperID, productID); err != nil {
		return r, false, err
	}
	l.Metrics.Returned("expired", r.Quantity)
	return r, true, nil
}
