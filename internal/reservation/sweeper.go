package reservation

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/rs/zerolog"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultBatchSize     = 200

	lockKey = "sweeper"
)

// Locker grants one sweeper instance per tick when several processes run.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Invalidator drops cached cart views whose lines the sweeper removed.
type Invalidator interface {
	Invalidate(ctx context.Context, shopperID string)
}

type Sweeper struct {
	Store     store.Store
	Ledger    *Ledger
	Interval  time.Duration
	BatchSize int
	Lock      Locker
	Cache     Invalidator
	Events    orders.Emitter
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Run sweeps once per Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.Log.Info().Dur("interval", interval).Msg("reservation sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("reservation sweeper stopped")
			return nil
		case <-t.C:
			if s.Lock != nil {
				unlock, ok, err := s.Lock.TryLock(ctx, lockKey, interval)
				if err != nil {
					// Expire re-checks each record under a row lock.
					s.Log.Warn().Err(err).Msg("sweeper lock unavailable, sweeping without it")
					s.sweepTick(ctx)
					continue
				}
				if !ok {
					continue
				}
				s.sweepTick(ctx)
				unlock()
				continue
			}
			s.sweepTick(ctx)
		}
	}
}

func (s *Sweeper) sweepTick(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		s.Log.Info().Int("expired", n).Msg("sweep finished")
	}
}

// Sweep reconciles every reservation expired at call time and reports how
// many it returned to stock. Records are handled one transaction each; a
// failing record is logged and left for the next run.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	total := 0
	for {
		var due []orders.Reservation
		err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			due, err = tx.ExpiredReservations(ctx, s.Ledger.now(), batch)
			return err
		})
		if err != nil {
			return total, err
		}

		expired := 0
		for _, r := range due {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			if s.expireOne(ctx, r) {
				expired++
			}
		}
		total += expired

		if len(due) < batch || expired == 0 {
			return total, nil
		}
	}
}

func (s *Sweeper) expireOne(ctx context.Context, candidate orders.Reservation) bool {
	var (
		got     orders.Reservation
		expired bool
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, expired, err = s.Ledger.Expire(ctx, tx, candidate.ShopperID, candidate.ProductID)
		return err
	})
	if err != nil {
		s.Metrics.Swept(false)
		s.Log.Error().Err(err).
			Str("shopper_id", candidate.ShopperID).
			Str("product_id", candidate.ProductID).
			Msg("expire reservation failed, skipping")
		return false
	}
	if !expired {
		return false
	}

	s.Metrics.Swept(true)
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, got.ShopperID)
	}
	if s.Events != nil {
		s.Events.Emit(ctx, orders.EventReservationExpired, got.ShopperID, orders.ReservationExpiredPayload{
			ShopperID: got.ShopperID,
			ProductID: got.ProductID,
			Quantity:  got.Quantity,
			ExpiredAt: got.ExpiresAt,
		})
	}
	s.Log.Info().
		Str("shopper_id", got.ShopperID).
		Str("product_id", got.ProductID).
		Int("quantity", got.Quantity).
		Msg("reservation expired")
	return true
}
