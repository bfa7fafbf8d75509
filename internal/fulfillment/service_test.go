package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/inventory"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/ariefcatur/go-bakery-cart/internal/store/memory"
	"github.com/ariefcatur/go-bakery-cart/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	manager = orders.Actor{ID: "m1", Role: orders.RoleManager}
	staff1  = orders.Actor{ID: "s1", Role: orders.RoleStaff}
	staff2  = orders.Actor{ID: "s2", Role: orders.RoleStaff}
	alice   = orders.Actor{ID: "alice", Role: orders.RoleCustomer}
	bob     = orders.Actor{ID: "bob", Role: orders.RoleCustomer}
)

type fixture struct {
	st     *memory.Store
	clock  *testutil.Clock
	svc    *Service
	events *testutil.Events
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	testutil.Seed(t, st, testutil.Product("bread", "4.10", 2))
	clock := testutil.NewClock()
	events := &testutil.Events{}
	return &fixture{
		st:     st,
		clock:  clock,
		events: events,
		svc: &Service{
			Store:     st,
			Inventory: &inventory.Service{Log: zerolog.Nop()},
			Events:    events,
			Log:       zerolog.Nop(),
			Now:       clock.Now,
		},
	}
}

func (f *fixture) order(t *testing.T, id, customer, staff string, status orders.Status, qty int) orders.Order {
	t.Helper()
	lines := []orders.OrderLine{{ProductID: "bread", Quantity: qty, UnitPrice: decimal.RequireFromString("4.10")}}
	o := orders.Order{
		ID:              id,
		CustomerID:      customer,
		AssignedStaffID: staff,
		Lines:           lines,
		Status:          status,
		TotalPrice:      orders.Total(lines),
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	f.clock.Advance(time.Minute)
	err := f.st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateOrder(ctx, o)
	})
	require.NoError(t, err)
	return o
}

func ids(os []orders.Order) []string {
	out := make([]string, 0, len(os))
	for _, o := range os {
		out = append(out, o.ID)
	}
	return out
}

func TestListOrders_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	f.order(t, "o2", "bob", "s2", orders.StatusConfirmed, 1)
	f.order(t, "o3", "alice", "", orders.StatusPending, 1)
	ctx := context.Background()

	got, err := f.svc.ListOrders(ctx, manager, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids(got), "newest first")

	got, err = f.svc.ListOrders(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"o3", "o1"}, ids(got))

	got, err = f.svc.ListOrders(ctx, staff2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, ids(got))

	got, err = f.svc.ListOrders(ctx, manager, orders.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"o3", "o1"}, ids(got))

	_, err = f.svc.ListOrders(ctx, manager, "baked")
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)

	_, err = f.svc.ListOrders(ctx, orders.Actor{ID: "x", Role: "baker"}, "")
	assert.ErrorIs(t, err, orders.ErrForbidden)
}

func TestGetOrder_HidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	ctx := context.Background()

	o, err := f.svc.GetOrder(ctx, alice, "o1")
	require.NoError(t, err)
	assert.Equal(t, "alice", o.CustomerID)

	_, err = f.svc.GetOrder(ctx, bob, "o1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	_, err = f.svc.GetOrder(ctx, staff2, "o1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	_, err = f.svc.GetOrder(ctx, manager, "nope")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, staff1, "o1", orders.StatusReady)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition, "cannot skip confirmed")

	for _, to := range []orders.Status{orders.StatusConfirmed, orders.StatusReady, orders.StatusCompleted} {
		o, err := f.svc.UpdateStatus(ctx, staff1, "o1", to)
		require.NoError(t, err)
		assert.Equal(t, to, o.Status)
	}

	_, err = f.svc.UpdateStatus(ctx, manager, "o1", orders.StatusPending)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, manager, "o1", "burnt")
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)

	changed := f.events.Of(orders.EventOrderStatusChanged)
	require.Len(t, changed, 3)
	last := changed[2].Payload.(orders.OrderStatusChangedPayload)
	assert.Equal(t, orders.StatusReady, last.From)
	assert.Equal(t, orders.StatusCompleted, last.To)
}

func TestUpdateStatus_Permissions(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	f.order(t, "o2", "bob", "", orders.StatusPending, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, alice, "o1", orders.StatusConfirmed)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	_, err = f.svc.UpdateStatus(ctx, staff2, "o1", orders.StatusConfirmed)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	o, err := f.svc.UpdateStatus(ctx, staff2, "o2", orders.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, "s2", o.AssignedStaffID, "unassigned order is claimed")

	_, err = f.svc.UpdateStatus(ctx, staff1, "o2", orders.StatusReady)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	o, err = f.svc.UpdateStatus(ctx, manager, "o2", orders.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, "s2", o.AssignedStaffID)
}

func TestAssignStaff(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "", orders.StatusPending, 1)
	f.order(t, "o2", "alice", "s1", orders.StatusCompleted, 1)
	ctx := context.Background()

	_, err := f.svc.AssignStaff(ctx, staff1, "o1", "s1")
	assert.ErrorIs(t, err, orders.ErrForbidden)

	o, err := f.svc.AssignStaff(ctx, manager, "o1", "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", o.AssignedStaffID)

	_, err = f.svc.AssignStaff(ctx, manager, "o2", "s2")
	assert.ErrorIs(t, err, orders.ErrOrderCompleted)
	_, err = f.svc.AssignStaff(ctx, manager, "missing", "s2")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestCancel_RestoresStock(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 3)
	ctx := context.Background()

	require.NoError(t, f.svc.Cancel(ctx, alice, "o1"))
	assert.Equal(t, 5, testutil.Stock(t, f.st, "bread"))

	_, err := f.svc.GetOrder(ctx, manager, "o1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	cancelled := f.events.Of(orders.EventOrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "o1", cancelled[0].CorrelationID)
}

func TestCancel_Rules(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	f.order(t, "o2", "alice", "s1", orders.StatusConfirmed, 1)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Cancel(ctx, bob, "o1"), orders.ErrOrderNotFound)
	assert.ErrorIs(t, f.svc.Cancel(ctx, staff1, "o1"), orders.ErrForbidden)
	assert.ErrorIs(t, f.svc.Cancel(ctx, alice, "o2"), orders.ErrOrderNotCancellable)
	assert.ErrorIs(t, f.svc.Cancel(ctx, manager, "o2"), orders.ErrOrderNotCancellable)
	assert.Equal(t, 2, testutil.Stock(t, f.st, "bread"))

	require.NoError(t, f.svc.Cancel(ctx, manager, "o1"))
	assert.Equal(t, 3, testutil.Stock(t, f.st, "bread"))
}

func TestCancel_AtomicOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "", orders.StatusPending, 2)
	before := testutil.Snap(t, f.st, "alice")

	f.st.SetFault(func(op string) error {
		if op == "order.delete" {
			return assert.AnError
		}
		return nil
	})
	err := f.svc.Cancel(context.Background(), alice, "o1")
	require.ErrorIs(t, err, orders.ErrStorageUnavailable)
	f.st.SetFault(nil)

	assert.Equal(t, before, testutil.Snap(t, f.st, "alice"))
	assert.Empty(t, f.events.Of(orders.EventOrderCancelled))
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "s1", orders.StatusPending, 1)
	f.order(t, "o2", "alice", "s1", orders.StatusCompleted, 1)
	f.order(t, "o3", "bob", "s2", orders.StatusReady, 1)
	ctx := context.Background()

	all, err := f.svc.Reports(ctx, manager)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, orders.StaffReport{StaffID: "s1", Pending: 1, Completed: 1, Total: 2}, all[0])
	assert.Equal(t, orders.StaffReport{StaffID: "s2", Ready: 1, Total: 1}, all[1])

	own, err := f.svc.Reports(ctx, staff2)
	require.NoError(t, err)
	assert.Equal(t, []orders.StaffReport{{StaffID: "s2", Ready: 1, Total: 1}}, own)

	none, err := f.svc.Reports(ctx, orders.Actor{ID: "s9", Role: orders.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, []orders.StaffReport{{StaffID: "s9"}}, none)

	_, err = f.svc.Reports(ctx, alice)
	assert.ErrorIs(t, err, orders.ErrForbidden)
}

func TestService_NilEmitterPublishesNothing(t *testing.T) {
	f := newFixture(t)
	f.order(t, "o1", "alice", "", orders.StatusPending, 1)
	f.order(t, "o2", "alice", "", orders.StatusPending, 1)
	f.svc.Events = nil
	ctx := context.Background()

	o, err := f.svc.UpdateStatus(ctx, staff1, "o1", orders.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	require.NoError(t, f.svc.Cancel(ctx, alice, "o2"))
	assert.Equal(t, 3, testutil.Stock(t, f.st, "bread"))
}
