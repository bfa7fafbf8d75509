package orders

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPending, StatusReady, false},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusReady, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusPending, "shipped", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusPending.Cancellable())
	assert.False(t, StatusConfirmed.Cancellable())
	assert.True(t, StatusCompleted.Final())
	assert.False(t, StatusReady.Final())
	assert.False(t, Status("baking").Valid())
}

func TestActorCanSee(t *testing.T) {
	o := Order{CustomerID: "alice", AssignedStaffID: "sam"}

	assert.True(t, Actor{ID: "alice", Role: RoleCustomer}.CanSee(o))
	assert.False(t, Actor{ID: "bob", Role: RoleCustomer}.CanSee(o))
	assert.True(t, Actor{ID: "sam", Role: RoleStaff}.CanSee(o))
	assert.False(t, Actor{ID: "sue", Role: RoleStaff}.CanSee(o))
	assert.True(t, Actor{ID: "boss", Role: RoleManager}.CanSee(o))
	assert.False(t, Actor{ID: "alice"}.CanSee(o))
}

func TestMismatchErrorIs(t *testing.T) {
	err := fmt.Errorf("checkout: %w", &MismatchError{ProductID: "bread", InCart: 3, Reserved: 1})

	assert.True(t, errors.Is(err, ErrReservationMismatch))
	var mm *MismatchError
	assert.True(t, errors.As(err, &mm))
	assert.Equal(t, "bread", mm.ProductID)
}

func TestUnavailable(t *testing.T) {
	assert.Nil(t, Unavailable(nil))
	assert.ErrorIs(t, Unavailable(errors.New("conn reset")), ErrStorageUnavailable)
}

func TestTotal(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "bread", Quantity: 3, UnitPrice: decimal.RequireFromString("4.10")},
		{ProductID: "muffin", Quantity: 2, UnitPrice: decimal.RequireFromString("2.35")},
	}
	assert.True(t, decimal.RequireFromString("17.00").Equal(Total(lines)))
	assert.True(t, Total(nil).IsZero())
}

func TestReservationExpired(t *testing.T) {
	r := Reservation{ExpiresAt: mustTime("2024-03-01T08:30:00Z")}
	assert.False(t, r.Expired(mustTime("2024-03-01T08:29:59Z")))
	assert.True(t, r.Expired(mustTime("2024-03-01T08:30:00Z")))
}

func TestStaffReportAdd(t *testing.T) {
	var r StaffReport
	r.Count(StatusPending)
	r.Add(StatusReady, 3)
	assert.Equal(t, StaffReport{Pending: 1, Ready: 3, Total: 4}, r)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicOrderCreated, TopicFor(EventOrderCreated))
	assert.Equal(t, TopicReservationExpired, TopicFor(EventReservationExpired))
	assert.Empty(t, TopicFor("Unknown"))
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
