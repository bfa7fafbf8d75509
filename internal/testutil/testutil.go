// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func Product(id, price string, qty int) orders.Product {
	return orders.Product{
		ID:                id,
		Name:              id,
		Price:             decimal.RequireFromString(price),
		AvailableQuantity: qty,
	}
}

func Seed(t *testing.T, st store.Store, ps ...orders.Product) {
	t.Helper()
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, p := range ps {
			if err := tx.SaveProduct(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// Snapshot is everything a test may want to compare before and after an operation.
type Snapshot struct {
	Products     []orders.Product
	Reservations []orders.Reservation
	Cart         []orders.CartLine
	Orders       []orders.Order
}

func Snap(t *testing.T, st store.Store, shopperID string) Snapshot {
	t.Helper()
	var s Snapshot
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		if s.Products, err = tx.ListProducts(ctx); err != nil {
			return err
		}
		if s.Reservations, err = tx.ShopperReservations(ctx, shopperID); err != nil {
			return err
		}
		if s.Cart, err = tx.CartLines(ctx, shopperID); err != nil {
			return err
		}
		s.Orders, err = tx.ListOrders(ctx, orders.OrderFilter{})
		return err
	})
	require.NoError(t, err)
	return s
}

func Stock(t *testing.T, st store.Store, productID string) int {
	t.Helper()
	var p orders.Product
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.Product(ctx, productID)
		return err
	})
	require.NoError(t, err)
	return p.AvailableQuantity
}

type Event struct {
	Type          string
	CorrelationID string
	Payload       any
}

// Events records everything emitted to it.
type Events struct {
	mu  sync.Mutex
	got []Event
}

func (e *Events) Emit(_ context.Context, eventType, correlationID string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, Event{Type: eventType, CorrelationID: correlationID, Payload: payload})
}

func (e *Events) Of(eventType string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.got {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
