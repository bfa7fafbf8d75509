// Package checkout turns a shopper's cart and reservations into an order.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/reservation"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Idempotency remembers which order a (shopper, key) pair produced so a
// retried checkout returns the same order.
type Idempotency interface {
	Lookup(ctx context.Context, shopperID, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, shopperID, key, orderID string) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, shopperID string)
}

type Service struct {
	Store   store.Store
	Ledger  *reservation.Ledger
	Cache   Invalidator
	Idem    Idempotency
	Events  orders.Emitter
	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time
}

// Result is what Checkout produced. Replayed is set when the order came from
// an earlier call with the same idempotency key.
type Result struct {
	Order    orders.Order
	Replayed bool
}

// Checkout validates every line against its reservation, consumes them,
// writes a pending order and clears the cart in one transaction. Any failure
// leaves cart, reservations and stock exactly as they were.
func (s *Service) Checkout(ctx context.Context, shopperID, idemKey string) (Result, error) {
	if idemKey != "" && s.Idem != nil {
		if res, ok := s.replay(ctx, shopperID, idemKey); ok {
			s.Metrics.Checkout("replayed")
			return res, nil
		}
	}

	var order orders.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		lines, err := tx.CartLines(ctx, shopperID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return orders.ErrEmptyCart
		}

		for _, l := range lines {
			r, err := s.Ledger.Held(ctx, tx, shopperID, l.ProductID)
			if errors.Is(err, orders.ErrReservationNotFound) {
				return &orders.MismatchError{ProductID: l.ProductID, InCart: l.Quantity}
			}
			if err != nil {
				return err
			}
			if r.Quantity < l.Quantity {
				return &orders.MismatchError{ProductID: l.ProductID, InCart: l.Quantity, Reserved: r.Quantity}
			}
		}

		orderLines := make([]orders.OrderLine, 0, len(lines))
		for _, l := range lines {
			if err := s.Ledger.Consume(ctx, tx, shopperID, l.ProductID, l.Quantity); err != nil {
				return err
			}
			p, err := tx.Product(ctx, l.ProductID)
			if err != nil {
				return err
			}
			orderLines = append(orderLines, orders.OrderLine{ProductID: p.ID, Quantity: l.Quantity, UnitPrice: p.Price})
		}

		now := s.now()
		order = orders.Order{
			ID:         uuid.NewString(),
			CustomerID: shopperID,
			Lines:      orderLines,
			Status:     orders.StatusPending,
			TotalPrice: orders.Total(orderLines),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, shopperID)
	})
	if err != nil {
		s.record(err, shopperID)
		return Result{}, err
	}

	if idemKey != "" && s.Idem != nil {
		if err := s.Idem.Remember(ctx, shopperID, idemKey, order.ID); err != nil {
			s.Log.Warn().Err(err).Str("order_id", order.ID).Msg("store checkout idempotency key failed")
		}
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, shopperID)
	}
	if s.Events != nil {
		s.Events.Emit(ctx, orders.EventOrderCreated, order.ID, orders.OrderCreatedPayload{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Lines:      order.Lines,
			TotalPrice: order.TotalPrice,
		})
	}
	s.Metrics.Checkout("created")
	s.Log.Info().Str("order_id", order.ID).Str("shopper_id", shopperID).
		Str("total", order.TotalPrice.StringFixed(2)).Int("lines", len(order.Lines)).Msg("order created")
	return Result{Order: order}, nil
}

func (s *Service) replay(ctx context.Context, shopperID, key string) (Result, bool) {
	id, ok, err := s.Idem.Lookup(ctx, shopperID, key)
	if err != nil {
		s.Log.Warn().Err(err).Str("shopper_id", shopperID).Msg("checkout idempotency lookup failed")
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var o orders.Order
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.Order(ctx, id)
		return err
	})
	if err != nil || o.CustomerID != shopperID {
		return Result{}, false
	}
	return Result{Order: o, Replayed: true}, true
}

func (s *Service) record(err error, shopperID string) {
	switch {
	case errors.Is(err, orders.ErrEmptyCart):
		s.Metrics.Checkout("empty")
	case errors.Is(err, orders.ErrReservationMismatch):
		s.Metrics.Checkout("mismatch")
		s.Log.Info().Err(err).Str("shopper_id", shopperID).Msg("checkout rejected")
	default:
		s.Metrics.Checkout("error")
		s.Log.Error().Err(err).Str("shopper_id", shopperID).Msg("checkout failed, transaction rolled back")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
