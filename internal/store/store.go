// Package store defines the transactional storage contract shared by the
// Postgres store and the in-memory store used in tests and local runs.
package store

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
)

// Store runs fn inside one transaction. If fn returns an error every write it
// made is discarded; otherwise the writes are committed together.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of repositories visible inside a transaction.
type Tx interface {
	Products
	Reservations
	Carts
	Orders
}

type Products interface {
	Product(ctx context.Context, id string) (orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	SaveProduct(ctx context.Context, p orders.Product) error

	// DecrementStock subtracts qty iff available_quantity >= qty, in a single
	// conditional update. Returns the new quantity, ErrInsufficientStock or
	// ErrProductNotFound.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
	// IncrementStock adds qty back. Returns ErrProductNotFound for unknown ids.
	IncrementStock(ctx context.Context, productID string, qty int) (int, error)
}

type Reservations interface {
	// Reservation reads the record and locks it for the rest of the transaction.
	// Returns ErrReservationNotFound when absent.
	Reservation(ctx context.Context, shopperID, productID string) (orders.Reservation, error)
	SaveReservation(ctx context.Context, r orders.Reservation) error
	DeleteReservation(ctx context.Context, shopperID, productID string) error
	// ExpiredReservations lists up to limit records with expires_at <= now, oldest first.
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]orders.Reservation, error)
	ShopperReservations(ctx context.Context, shopperID string) ([]orders.Reservation, error)
}

type Carts interface {
	CartLines(ctx context.Context, shopperID string) ([]orders.CartLine, error)
	// CartLine returns ErrCartItemNotFound when absent.
	CartLine(ctx context.Context, shopperID, productID string) (orders.CartLine, error)
	SaveCartLine(ctx context.Context, l orders.CartLine) error
	// DeleteCartLine is a no-op when the line does not exist.
	DeleteCartLine(ctx context.Context, shopperID, productID string) error
	ClearCart(ctx context.Context, shopperID string) error
}

type Orders interface {
	CreateOrder(ctx context.Context, o orders.Order) error
	// Order reads an order without locking it. Returns ErrOrderNotFound when absent.
	Order(ctx context.Context, id string) (orders.Order, error)
	// LockOrder is Order plus a row lock held until the transaction ends.
	// Use it before UpdateOrder or DeleteOrder.
	LockOrder(ctx context.Context, id string) (orders.Order, error)
	UpdateOrder(ctx context.Context, o orders.Order) error
	DeleteOrder(ctx context.Context, id string) error
	ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error)
	StaffReports(ctx context.Context, staffID string) ([]orders.StaffReport, error)
}
