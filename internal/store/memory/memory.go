// Package memory is an in-process store.Store. Transactions are serialized
// behind one mutex and applied copy-on-write, so a failing transaction leaves
// no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
)

type key struct{ shopper, product string }

type state struct {
	products     map[string]orders.Product
	reservations map[key]orders.Reservation
	cart         map[key]orders.CartLine
	orders       map[string]orders.Order
}

func newState() *state {
	return &state{
		products:     make(map[string]orders.Product),
		reservations: make(map[key]orders.Reservation),
		cart:         make(map[key]orders.CartLine),
		orders:       make(map[string]orders.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	return c
}

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.OrderLine(nil), o.Lines...)
	return o
}

// FaultFunc is consulted before every write; a non-nil error aborts the
// transaction as if storage had failed. Used to exercise rollback paths.
type FaultFunc func(op string) error

type Store struct {
	mu    sync.Mutex
	data  *state
	fault FaultFunc
}

func New() *Store {
	return &Store{data: newState()}
}

// SetFault installs f; nil removes it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{data: s.data.clone(), fault: s.fault}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return orders.Unavailable(err)
	}
	s.data = tx.data
	return nil
}

type memTx struct {
	data  *state
	fault FaultFunc
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	if err := t.fault(op); err != nil {
		return orders.Unavailable(err)
	}
	return nil
}

// ---- products ----

func (t *memTx) Product(_ context.Context, id string) (orders.Product, error) {
	p, ok := t.data.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (t *memTx) ListProducts(context.Context) ([]orders.Product, error) {
	out := make([]orders.Product, 0, len(t.data.products))
	for _, p := range t.data.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) SaveProduct(_ context.Context, p orders.Product) error {
	if err := t.check("product.save"); err != nil {
		return err
	}
	t.data.products[p.ID] = p
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) (int, error) {
	if err := t.check("product.decrement"); err != nil {
		return 0, err
	}
	p, ok := t.data.products[productID]
	if !ok {
		return 0, orders.ErrProductNotFound
	}
	if p.AvailableQuantity < qty {
		return p.AvailableQuantity, orders.ErrInsufficientStock
	}
	p.AvailableQuantity -= qty
	t.data.products[productID] = p
	return p.AvailableQuantity, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, qty int) (int, error) {
	if err := t.check("product.increment"); err != nil {
		return 0, err
	}
	p, ok := t.data.products[productID]
	if !ok {
		return 0, orders.ErrProductNotFound
	}
	p.AvailableQuantity += qty
	t.data.products[productID] = p
	return p.AvailableQuantity, nil
}

// ---- reservations ----

func (t *memTx) Reservation(_ context.Context, shopperID, productID string) (orders.Reservation, error) {
	r, ok := t.data.reservations[key{shopperID, productID}]
	if !ok {
		return orders.Reservation{}, orders.ErrReservationNotFound
	}
	return r, nil
}

func (t *memTx) SaveReservation(_ context.Context, r orders.Reservation) error {
	if err := t.check("reservation.save"); err != nil {
		return err
	}
	t.data.reservations[key{r.ShopperID, r.ProductID}] = r
	return nil
}

func (t *memTx) DeleteReservation(_ context.Context, shopperID, productID string) error {
	if err := t.check("reservation.delete"); err != nil {
		return err
	}
	delete(t.data.reservations, key{shopperID, productID})
	return nil
}

func (t *memTx) ExpiredReservations(_ context.Context, now time.Time, limit int) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for _, r := range t.data.reservations {
		if r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ShopperReservations(_ context.Context, shopperID string) ([]orders.Reservation, error) {
	var out []orders.Reservation
	for k, r := range t.data.reservations {
		if k.shopper == shopperID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// ---- cart ----

func (t *memTx) CartLines(_ context.Context, shopperID string) ([]orders.CartLine, error) {
	var out []orders.CartLine
	for k, l := range t.data.cart {
		if k.shopper == shopperID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *memTx) CartLine(_ context.Context, shopperID, productID string) (orders.CartLine, error) {
	l, ok := t.data.cart[key{shopperID, productID}]
	if !ok {
		return orders.CartLine{}, orders.ErrCartItemNotFound
	}
	return l, nil
}

func (t *memTx) SaveCartLine(_ context.Context, l orders.CartLine) error {
	if err := t.check("cart.save"); err != nil {
		return err
	}
	t.data.cart[key{l.ShopperID, l.ProductID}] = l
	return nil
}

func (t *memTx) DeleteCartLine(_ context.Context, shopperID, productID string) error {
	if err := t.check("cart.delete"); err != nil {
		return err
	}
	delete(t.data.cart, key{shopperID, productID})
	return nil
}

func (t *memTx) ClearCart(_ context.Context, shopperID string) error {
	if err := t.check("cart.clear"); err != nil {
		return err
	}
	for k := range t.data.cart {
		if k.shopper == shopperID {
			delete(t.data.cart, k)
		}
	}
	return nil
}

// ---- orders ----

func (t *memTx) CreateOrder(_ context.Context, o orders.Order) error {
	if err := t.check("order.create"); err != nil {
		return err
	}
	t.data.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) Order(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// LockOrder is Order: transactions are already serialized.
func (t *memTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.Order(ctx, id)
}

func (t *memTx) UpdateOrder(_ context.Context, o orders.Order) error {
	if err := t.check("order.update"); err != nil {
		return err
	}
	if _, ok := t.data.orders[o.ID]; !ok {
		return orders.ErrOrderNotFound
	}
	t.data.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id string) error {
	if err := t.check("order.delete"); err != nil {
		return err
	}
	delete(t.data.orders, id)
	return nil
}

func (t *memTx) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	out := []orders.Order{}
	for _, o := range t.data.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.AssignedStaffID != "" && o.AssignedStaffID != f.AssignedStaffID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) StaffReports(_ context.Context, staffID string) ([]orders.StaffReport, error) {
	byStaff := map[string]*orders.StaffReport{}
	for _, o := range t.data.orders {
		if staffID != "" && o.AssignedStaffID != staffID {
			continue
		}
		r, ok := byStaff[o.AssignedStaffID]
		if !ok {
			r = &orders.StaffReport{StaffID: o.AssignedStaffID}
			byStaff[o.AssignedStaffID] = r
		}
		r.Count(o.Status)
	}
	out := make([]orders.StaffReport, 0, len(byStaff))
	for _, r := range byStaff {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID < out[j].StaffID })
	return out, nil
}
