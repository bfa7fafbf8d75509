// Package fulfillment drives orders after checkout: listing, the status
// state machine, staff assignment, cancellation and reports.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/inventory"
	"github.com/ariefcatur/go-bakery-cart/internal/metrics"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/rs/zerolog"
)

type Service struct {
	Store     store.Store
	Inventory *inventory.Service
	Events    orders.Emitter
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ListOrders returns the orders visible to a, newest first.
func (s *Service) ListOrders(ctx context.Context, a orders.Actor, status orders.Status) ([]orders.Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", orders.ErrInvalidStatus, status)
	}
	f := orders.OrderFilter{Status: status}
	switch a.Role {
	case orders.RoleManager:
	case orders.RoleStaff:
		f.AssignedStaffID = a.ID
	case orders.RoleCustomer:
		f.CustomerID = a.ID
	default:
		return nil, orders.ErrForbidden
	}

	var out []orders.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, f)
		return err
	})
	return out, err
}

// GetOrder hides orders a may not see behind ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, a orders.Actor, id string) (orders.Order, error) {
	var o orders.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.Order(ctx, id)
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}
	if !a.CanSee(o) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

// UpdateStatus moves an order one step forward. Staff may only move orders
// assigned to them; an unassigned order is claimed by the staff member who
// confirms it.
func (s *Service) UpdateStatus(ctx context.Context, a orders.Actor, id string, to orders.Status) (orders.Order, error) {
	if a.Role != orders.RoleStaff && a.Role != orders.RoleManager {
		return orders.Order{}, orders.ErrForbidden
	}
	if !to.Valid() {
		return orders.Order{}, fmt.Errorf("%w: %q", orders.ErrInvalidStatus, to)
	}

	var (
		o    orders.Order
		from orders.Status
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if a.Role == orders.RoleStaff && o.AssignedStaffID != "" && o.AssignedStaffID != a.ID {
			return orders.ErrForbidden
		}
		if !orders.CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
		}
		from = o.Status
		o.Status = to
		if a.Role == orders.RoleStaff && o.AssignedStaffID == "" {
			o.AssignedStaffID = a.ID
		}
		o.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.Metrics.StatusChanged(string(to))
	s.emit(ctx, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID:         o.ID,
		From:            from,
		To:              to,
		AssignedStaffID: o.AssignedStaffID,
	})
	s.Log.Info().Str("order_id", o.ID).Str("from", string(from)).Str("to", string(to)).
		Str("by", a.ID).Msg("order status changed")
	return o, nil
}

// AssignStaff sets the staff member responsible for an order. Managers only;
// completed orders keep their assignee.
func (s *Service) AssignStaff(ctx context.Context, a orders.Actor, id, staffID string) (orders.Order, error) {
	if a.Role != orders.RoleManager {
		return orders.Order{}, orders.ErrForbidden
	}
	var o orders.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.Final() {
			return orders.ErrOrderCompleted
		}
		o.AssignedStaffID = staffID
		o.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.Log.Info().Str("order_id", o.ID).Str("staff_id", staffID).Msg("order assigned")
	return o, nil
}

// Cancel deletes a pending order and puts every line back in stock, all in
// one transaction. Owners and managers only.
func (s *Service) Cancel(ctx context.Context, a orders.Actor, id string) error {
	var o orders.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case a.Role == orders.RoleManager:
		case a.Role == orders.RoleCustomer && o.CustomerID == a.ID:
		case a.CanSee(o):
			return orders.ErrForbidden
		default:
			return orders.ErrOrderNotFound
		}
		if !o.Status.Cancellable() {
			return orders.ErrOrderNotCancellable
		}
		for _, l := range o.Lines {
			if err := s.Inventory.Increment(ctx, tx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	for _, l := range o.Lines {
		s.Metrics.Returned("cancelled", l.Quantity)
	}
	s.emit(ctx, orders.EventOrderCancelled, o.ID, orders.OrderCancelledPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lines:      o.Lines,
	})
	s.Log.Info().Str("order_id", o.ID).Str("by", a.ID).Msg("order cancelled")
	return nil
}

// Reports counts orders per assigned staff member. Staff get their own row.
func (s *Service) Reports(ctx context.Context, a orders.Actor) ([]orders.StaffReport, error) {
	var staffID string
	switch a.Role {
	case orders.RoleManager:
	case orders.RoleStaff:
		staffID = a.ID
	default:
		return nil, orders.ErrForbidden
	}
	var out []orders.StaffReport
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.StaffReports(ctx, staffID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if staffID != "" && len(out) == 0 {
		out = []orders.StaffReport{{StaffID: staffID}}
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, eventType, id string, payload any) {
	if s.Events != nil {
		s.Events.Emit(ctx, eventType, id, payload)
	}
}
