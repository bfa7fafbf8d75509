package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderCancelled       = "OrderCancelled"
	EventReservationExpired   = "ReservationExpired"
	EventOrderStatusRequested = "OrderStatusRequested"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "bakery-cart"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or shopper_id
	Payload       json.RawMessage `json:"payload"`
}

// Emitter publishes domain events after the owning transaction has committed.
// Implementations must not block the caller on broker availability. Services
// treat a nil Emitter as "publish nothing".
type Emitter interface {
	Emit(ctx context.Context, eventType, correlationID string, payload any)
}

// ---- payloads ----

type OrderCreatedPayload struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Lines      []OrderLine     `json:"lines"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type OrderStatusChangedPayload struct {
	OrderID         string `json:"order_id"`
	From            Status `json:"from"`
	To              Status `json:"to"`
	AssignedStaffID string `json:"assigned_staff_id,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Lines      []OrderLine `json:"lines"`
}

type ReservationExpiredPayload struct {
	ShopperID string    `json:"shopper_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiredAt time.Time `json:"expired_at"`
}

// StatusRequestPayload is the command staff tooling sends on TopicStatusRequested.
type StatusRequestPayload struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
	StaffID string `json:"staff_id"`
}
