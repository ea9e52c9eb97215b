package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/testing/memstore"
)

var matron = shared.Actor{Name: "mama rose", Role: "matron"}

type fixture struct {
	store *memstore.Store
	audit *memstore.Audit
	sched *allocation.Scheduler
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), audit: &memstore.Audit{}, now: day(2025, time.January, 20, 8)}
	f.sched = allocation.NewScheduler(f.store.Allocations(), f.audit, nil, time.UTC).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seed(qty int) (ledger.Customer, stock.Product) {
	c := f.store.AddCustomer(ledger.Customer{Name: "Zawadi", Program: ledger.ProgramA, Boarding: ledger.BoardingBoarding})
	p := f.store.AddProduct(stock.Product{Name: "Toothpaste", Department: "boarding", StockQty: qty})
	return c, p
}

func (f *fixture) create(t *testing.T, c ledger.Customer, p stock.Product, freq allocation.Frequency, days ...string) allocation.Allocation {
	t.Helper()
	a, err := f.sched.CreateAllocation(context.Background(), allocation.CreateInput{
		CustomerID:   c.ID,
		ProductID:    p.ID,
		Program:      ledger.ProgramA,
		Quantity:     2,
		Frequency:    freq,
		SpecificDays: days,
		Actor:        matron,
	})
	require.NoError(t, err)
	return a
}

func TestCreateAllocationChecksProgram(t *testing.T) {
	f := newFixture(t)
	c, p := f.seed(10)
	ctx := context.Background()

	a := f.create(t, c, p, allocation.FrequencyWeekly)
	require.Equal(t, allocation.StatusActive, a.Status)
	require.Nil(t, a.LastGivenDate)
	require.Equal(t, matron.Name, a.CreatedBy)

	_, err := f.sched.CreateAllocation(ctx, allocation.CreateInput{
		CustomerID: c.ID, ProductID: p.ID, Program: ledger.ProgramB, Quantity: 1, Frequency: allocation.FrequencyWeekly, Actor: matron,
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.sched.CreateAllocation(ctx, allocation.CreateInput{
		CustomerID: c.ID, ProductID: p.ID, Program: ledger.ProgramNone, Quantity: 1, Frequency: allocation.FrequencyWeekly, Actor: matron,
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.sched.CreateAllocation(ctx, allocation.CreateInput{
		CustomerID: c.ID, ProductID: p.ID, Program: ledger.ProgramA, Quantity: 1, Frequency: "fortnightly", Actor: matron,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.sched.CreateAllocation(ctx, allocation.CreateInput{
		CustomerID: c.ID, ProductID: p.ID, Program: ledger.ProgramA, Quantity: 1, Frequency: allocation.FrequencySpecificDays, Actor: matron,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.sched.CreateAllocation(ctx, allocation.CreateInput{
		CustomerID: 404, ProductID: p.ID, Program: ledger.ProgramA, Quantity: 1, Frequency: allocation.FrequencyWeekly, Actor: matron,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFulfilAllocationAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	c, p := f.seed(10)
	a := f.create(t, c, p, allocation.FrequencyWeekly)
	ctx := context.Background()

	res, err := f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.NoError(t, err)
	require.Equal(t, 8, res.StockQty)
	require.True(t, res.Allocation.LastGivenDate.Equal(f.now))
	require.True(t, res.Allocation.NextDueDate.Equal(f.now.AddDate(0, 0, 7)))
	require.Equal(t, 2, res.History.QuantityGiven)

	moves := f.store.Movements(p.ID)
	require.Len(t, moves, 1)
	require.Equal(t, stock.ReasonAllocation, moves[0].Reason)

	// Three days later it is not due yet.
	f.now = f.now.AddDate(0, 0, 3)
	item, err := f.sched.GetAllocation(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, allocation.StateNotDue, item.State)
	_, err = f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, 8, f.store.Product(p.ID).StockQty)

	forced, err := f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Force: true, Actor: matron})
	require.NoError(t, err)
	require.Equal(t, 6, forced.StockQty)

	history, err := f.sched.History(ctx, a.ID, shared.NewPage(0, 0))
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, []string{"allocation:created", "allocation:fulfilled", "allocation:fulfilled"}, f.audit.Actions())
}

func TestFulfilAllocationInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	c, p := f.seed(1)
	a := f.create(t, c, p, allocation.FrequencyMonthly)

	_, err := f.sched.FulfilAllocation(context.Background(), allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	item, err := f.sched.GetAllocation(context.Background(), a.ID)
	require.NoError(t, err)
	require.Nil(t, item.Allocation.LastGivenDate)
	require.Equal(t, allocation.StateNeverGiven, item.State)
	require.Equal(t, 1, f.store.Product(p.ID).StockQty)
}

func TestListDueAndCancel(t *testing.T) {
	f := newFixture(t)
	c, p := f.seed(50)
	due := f.create(t, c, p, allocation.FrequencyWeekly)
	recent := f.create(t, c, p, allocation.FrequencyWeekly)
	fresh := f.create(t, c, p, allocation.FrequencyMonthly)
	f.store.SetLastGiven(due.ID, f.now.AddDate(0, 0, -8))
	f.store.SetLastGiven(recent.ID, f.now.AddDate(0, 0, -3))
	ctx := context.Background()

	items, err := f.sched.ListDue(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, items, 2)
	states := map[int64]allocation.DueState{}
	for _, it := range items {
		states[it.Allocation.ID] = it.State
	}
	require.Equal(t, allocation.StateDue, states[due.ID])
	require.Equal(t, allocation.StateNeverGiven, states[fresh.ID])

	require.NoError(t, f.sched.CancelAllocation(ctx, fresh.ID, matron))
	require.ErrorIs(t, f.sched.CancelAllocation(ctx, fresh.ID, matron), shared.ErrInvalidState)
	_, err = f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: fresh.ID, Actor: matron})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	items, err = f.sched.ListDue(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, due.ID, items[0].Allocation.ID)
}

func TestSpecificDaysAllocationOncePerDay(t *testing.T) {
	f := newFixture(t) // Monday 2025-01-20
	c, p := f.seed(10)
	a := f.create(t, c, p, allocation.FrequencySpecificDays, "monday", "wed")
	ctx := context.Background()

	_, err := f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.NoError(t, err)

	f.now = f.now.Add(4 * time.Hour)
	_, err = f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	f.now = day(2025, time.January, 22, 8)
	res, err := f.sched.FulfilAllocation(ctx, allocation.FulfilInput{AllocationID: a.ID, Actor: matron})
	require.NoError(t, err)
	require.Equal(t, 6, res.StockQty)
	require.Equal(t, time.Monday, res.Allocation.NextDueDate.Weekday())
}
