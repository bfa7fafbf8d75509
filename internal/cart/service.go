package cart

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/reservation"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache holds rendered carts. The store stays the source of truth; any
// mutation invalidates the shopper's entry after commit. Invalidate bumps the
// shopper's version and Set drops writes made against an older one.
type Cache interface {
	Get(ctx context.Context, shopperID string) ([]orders.CartItem, bool, error)
	Version(ctx context.Context, shopperID string) (int64, error)
	Set(ctx context.Context, shopperID string, version int64, items []orders.CartItem) error
	Invalidate(ctx context.Context, shopperID string)
}

type Service struct {
	Store  store.Store
	Ledger *reservation.Ledger
	Cache  Cache
	Log    zerolog.Logger

	sfg singleflight.Group // collapses concurrent cache misses per shopper
}

// AddItem reserves qty units and only then grows the cart line. When the
// reservation fails nothing is written and the error is returned as is.
func (s *Service) AddItem(ctx context.Context, shopperID, productID string, qty int) ([]orders.CartItem, error) {
	if qty <= 0 {
		return nil, orders.ErrInvalidQuantity
	}

	var items []orders.CartItem
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := s.Ledger.Reserve(ctx, tx, shopperID, productID, qty)
		if err != nil {
			return err
		}

		line, err := tx.CartLine(ctx, shopperID, productID)
		if errors.Is(err, orders.ErrCartItemNotFound) {
			line = orders.CartLine{ShopperID: shopperID, ProductID: productID}
		} else if err != nil {
			return err
		}
		// the line never claims more than its reservation holds
		line.Quantity = min(line.Quantity+qty, r.Quantity)
		line.UpdatedAt = time.Now().UTC()
		if err := tx.SaveCartLine(ctx, line); err != nil {
			return err
		}

		items, err = s.load(ctx, tx, shopperID)
		return err
	})
	if err != nil {
		if errors.Is(err, orders.ErrInsufficientStock) {
			s.Log.Info().Str("shopper_id", shopperID).Str("product_id", productID).Int("quantity", qty).
				Msg("add to cart rejected: insufficient stock")
		}
		return nil, err
	}

	s.invalidate(ctx, shopperID)
	s.Log.Info().Str("shopper_id", shopperID).Str("product_id", productID).Int("quantity", qty).Msg("item added to cart")
	return items, nil
}

// RemoveItem drops the line and returns the whole backing reservation to
// stock. The reservation, not the line, decides how much is given back.
func (s *Service) RemoveItem(ctx context.Context, shopperID, productID string) ([]orders.CartItem, error) {
	var items []orders.CartItem
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CartLine(ctx, shopperID, productID); err != nil {
			return err
		}

		r, err := s.Ledger.Held(ctx, tx, shopperID, productID)
		switch {
		case err == nil:
			if err := s.Ledger.Release(ctx, tx, shopperID, productID, r.Quantity); err != nil {
				return err
			}
		case errors.Is(err, orders.ErrReservationNotFound):
			// expired but not swept yet: reconcile it here
			if _, _, err := s.Ledger.Expire(ctx, tx, shopperID, productID); err != nil {
				return err
			}
		default:
			return err
		}

		if err := tx.DeleteCartLine(ctx, shopperID, productID); err != nil {
			return err
		}
		items, err = s.load(ctx, tx, shopperID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, shopperID)
	s.Log.Info().Str("shopper_id", shopperID).Str("product_id", productID).Msg("item removed from cart")
	return items, nil
}

// GetCart returns the shopper's lines; an empty cart is an empty slice.
func (s *Service) GetCart(ctx context.Context, shopperID string) ([]orders.CartItem, error) {
	if s.Cache != nil {
		items, ok, err := s.Cache.Get(ctx, shopperID)
		if err != nil {
			s.Log.Warn().Err(err).Str("shopper_id", shopperID).Msg("cart cache get failed")
		}
		if ok {
			return items, nil
		}
	}

	v, err, _ := s.sfg.Do(shopperID, func() (any, error) {
		version, verr := s.cacheVersion(ctx, shopperID)
		var items []orders.CartItem
		err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			items, err = s.load(ctx, tx, shopperID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if s.Cache != nil && verr == nil {
			if err := s.Cache.Set(ctx, shopperID, version, items); err != nil {
				s.Log.Warn().Err(err).Str("shopper_id", shopperID).Msg("cart cache set failed")
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]orders.CartItem), nil
}

func (s *Service) cacheVersion(ctx context.Context, shopperID string) (int64, error) {
	if s.Cache == nil {
		return 0, nil
	}
	v, err := s.Cache.Version(ctx, shopperID)
	if err != nil {
		s.Log.Warn().Err(err).Str("shopper_id", shopperID).Msg("cart cache version failed")
	}
	return v, err
}

func (s *Service) invalidate(ctx context.Context, shopperID string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, shopperID)
	}
}

func (s *Service) load(ctx context.Context, tx store.Tx, shopperID string) ([]orders.CartItem, error) {
	lines, err := tx.CartLines(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	items := make([]orders.CartItem, 0, len(lines))
	for _, l := range lines {
		p, err := tx.Product(ctx, l.ProductID)
		if errors.Is(err, orders.ErrProductNotFound) {
			s.Log.Warn().Str("shopper_id", shopperID).Str("product_id", l.ProductID).Msg("cart line for unknown product")
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, orders.CartItem{Product: orders.ViewOf(p), Quantity: l.Quantity})
	}
	return items, nil
}
