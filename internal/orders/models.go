package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Available is derived from the quantity on every read; it is never stored.
func (p Product) Available() bool { return p.AvailableQuantity > 0 }

// Reservation holds stock for one shopper and product until ExpiresAt.
type Reservation struct {
	ShopperID string    `json:"shopper_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Reservation) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }

type CartLine struct {
	ShopperID string    `json:"shopper_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem is the read model returned to shoppers: the line joined with its product.
type CartItem struct {
	Product  ProductView `json:"product"`
	Quantity int         `json:"quantity"`
}

type ProductView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

func ViewOf(p Product) ProductView {
	return ProductView{ID: p.ID, Name: p.Name, Price: p.Price, Available: p.Available()}
}

type Order struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	Lines           []OrderLine     `json:"lines"`
	Status          Status          `json:"status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	AssignedStaffID string          `json:"assigned_staff_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderLine keeps the unit price the total was computed from.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total sums quantity x unit price over lines.
func Total(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	CustomerID      string
	AssignedStaffID string
	Status          Status
}

// StaffReport is one row of the per-staff order report. StaffID is empty for
// orders nobody has been assigned to yet.
type StaffReport struct {
	StaffID   string `json:"staff_id"`
	Pending   int    `json:"pending"`
	Confirmed int    `json:"confirmed"`
	Ready     int    `json:"ready"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func (r *StaffReport) Count(s Status) { r.Add(s, 1) }

// Add counts n orders in status s.
func (r *StaffReport) Add(s Status, n int) {
	switch s {
	case StatusPending:
		r.Pending += n
	case StatusConfirmed:
		r.Confirmed += n
	case StatusReady:
		r.Ready += n
	case StatusCompleted:
		r.Completed += n
	}
	r.Total += n
}
