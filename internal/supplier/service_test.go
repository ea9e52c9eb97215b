package supplier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/supplier"
	"github.com/shopledger/shopledger/internal/testing/memstore"
)

var buyer = shared.Actor{Name: "kamau", Role: "procurement"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var today = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*supplier.Manager, *memstore.Store, *memstore.Audit) {
	t.Helper()
	store := memstore.New()
	audit := &memstore.Audit{}
	mgr := supplier.NewManager(store.Suppliers(), audit, nil, supplier.ManagerConfig{}).
		WithClock(func() time.Time { return today })
	return mgr, store, audit
}

func TestProcessRestockCreatesCredit(t *testing.T) {
	mgr, store, audit := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Bidco"})
	p := store.AddProduct(stock.Product{Name: "Cooking Oil", Department: "canteen", StockQty: 2, BuyPrice: dec("45"), SellPrice: dec("60")})

	res, err := mgr.ProcessRestock(context.Background(), supplier.RestockInput{
		SupplierID: sup.ID,
		Items:      []supplier.RestockItemInput{{ProductID: p.ID, Qty: 10, BuyPrice: dec("50"), SellPrice: dec("65")}},
		Actor:      buyer,
	})
	require.NoError(t, err)
	require.True(t, res.Restock.TotalCost.Equal(dec("500")))
	require.Equal(t, supplier.RestockPendingPayment, res.Restock.Status)
	require.NotNil(t, res.Credit)
	require.True(t, res.Credit.Amount.Equal(dec("500")))
	require.True(t, res.Credit.DueDate.Equal(today.AddDate(0, 0, 30)))
	require.True(t, res.Supplier.Balance.Equal(dec("500")))

	require.True(t, store.Supplier(sup.ID).Balance.Equal(dec("500")))
	updated := store.Product(p.ID)
	require.Equal(t, 12, updated.StockQty)
	require.True(t, updated.BuyPrice.Equal(dec("50")))
	require.True(t, updated.SellPrice.Equal(dec("65")))

	moves := store.Movements(p.ID)
	require.Len(t, moves, 1)
	require.Equal(t, stock.ReasonRestock, moves[0].Reason)
	require.Equal(t, []string{"supplier:restock"}, audit.Actions())
}

func TestProcessRestockCreatesNewProduct(t *testing.T) {
	mgr, store, _ := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Kasuku Stationers"})

	res, err := mgr.ProcessRestock(context.Background(), supplier.RestockInput{
		SupplierID:   sup.ID,
		Items:        []supplier.RestockItemInput{{Name: "Graph Book", Department: "Stationery", Qty: 20, BuyPrice: dec("35"), SellPrice: dec("50")}},
		MiscExpenses: dec("100"),
		Actor:        buyer,
	})
	require.NoError(t, err)
	require.True(t, res.Credit.Amount.Equal(dec("800")))
	require.Len(t, res.Restock.Items, 1)

	created := store.Product(res.Restock.Items[0].ProductID)
	require.Equal(t, "Graph Book", created.Name)
	require.Equal(t, "stationery", created.Department)
	require.Equal(t, 20, created.StockQty)
}

func TestProcessRestockZeroCostIsPaid(t *testing.T) {
	mgr, store, _ := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Donor"})
	p := store.AddProduct(stock.Product{Name: "Soap", Department: "boarding"})

	res, err := mgr.ProcessRestock(context.Background(), supplier.RestockInput{
		SupplierID: sup.ID,
		Items:      []supplier.RestockItemInput{{ProductID: p.ID, Qty: 30}},
		Actor:      buyer,
	})
	require.NoError(t, err)
	require.Nil(t, res.Credit)
	require.Equal(t, supplier.RestockPaid, res.Restock.Status)
	require.True(t, store.Supplier(sup.ID).Balance.IsZero())
	require.Equal(t, 30, store.Product(p.ID).StockQty)
}

func TestProcessRestockRollsBack(t *testing.T) {
	mgr, store, _ := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Bidco"})
	p := store.AddProduct(stock.Product{Name: "Sugar", Department: "canteen", StockQty: 5})
	archived := store.AddProduct(stock.Product{Name: "Old Biscuit", Department: "canteen", Status: shared.StatusArchived})
	ctx := context.Background()

	_, err := mgr.ProcessRestock(ctx, supplier.RestockInput{
		SupplierID: sup.ID,
		Items: []supplier.RestockItemInput{
			{ProductID: p.ID, Qty: 10, BuyPrice: dec("100"), SellPrice: dec("120")},
			{ProductID: archived.ID, Qty: 10, BuyPrice: dec("10"), SellPrice: dec("15")},
		},
		Actor: buyer,
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, 5, store.Product(p.ID).StockQty)
	require.True(t, store.Supplier(sup.ID).Balance.IsZero())

	boom := errors.New("deadlock detected")
	store.FailOn("InsertCredit", boom)
	_, err = mgr.ProcessRestock(ctx, supplier.RestockInput{
		SupplierID: sup.ID,
		Items:      []supplier.RestockItemInput{{ProductID: p.ID, Qty: 10, BuyPrice: dec("100"), SellPrice: dec("120")}},
		Actor:      buyer,
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5, store.Product(p.ID).StockQty)
	require.Empty(t, store.Movements(p.ID))
}

func TestRecordSupplierPaymentSettlesOldestFirst(t *testing.T) {
	mgr, store, audit := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Brookside"})
	c1 := store.AddCredit(sup.ID, dec("100"), today.AddDate(0, 0, -10))
	c2 := store.AddCredit(sup.ID, dec("50"), today.AddDate(0, 0, -5))

	res, err := mgr.RecordSupplierPayment(context.Background(), supplier.PaymentInput{
		SupplierID: sup.ID,
		Amount:     dec("120"),
		Method:     "mobile_money",
		Actor:      buyer,
	})
	require.NoError(t, err)
	require.True(t, res.PreviousBalance.Equal(dec("150")))
	require.True(t, res.NewBalance.Equal(dec("30")))
	require.Len(t, res.Allocations, 2)
	require.Equal(t, c1.ID, res.Allocations[0].CreditID)
	require.True(t, res.Allocations[0].Amount.Equal(dec("100")))
	require.True(t, res.Allocations[1].Amount.Equal(dec("20")))

	first, second := store.Credit(c1.ID), store.Credit(c2.ID)
	require.True(t, first.Amount.IsZero())
	require.Equal(t, supplier.CreditPaid, first.Status)
	require.True(t, second.Amount.Equal(dec("30")))
	require.Equal(t, supplier.CreditUnpaid, second.Status)
	require.True(t, store.Supplier(sup.ID).Balance.Equal(dec("30")))
	require.Equal(t, []string{"supplier:payment"}, audit.Actions())

	unpaid, err := mgr.ListCredits(context.Background(), sup.ID, true)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	require.Equal(t, c2.ID, unpaid[0].ID)
}

func TestRecordSupplierPaymentRejectsOverpayment(t *testing.T) {
	mgr, store, _ := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Brookside"})
	store.AddCredit(sup.ID, dec("80"), today)
	ctx := context.Background()

	_, err := mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("80.01"), Actor: buyer})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	require.True(t, store.Supplier(sup.ID).Balance.Equal(dec("80")))

	_, err = mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: decimal.Zero, Actor: buyer})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("10"), Method: "barter", Actor: buyer})
	require.ErrorIs(t, err, shared.ErrValidation)

	res, err := mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("80"), Actor: buyer})
	require.NoError(t, err)
	require.True(t, res.NewBalance.IsZero())
	require.Equal(t, "cash", res.Payment.Method)

	_, err = mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("1"), Actor: buyer})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
}

func TestRestockThenPayMarksRestockPaid(t *testing.T) {
	mgr, store, _ := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Bidco"})
	p := store.AddProduct(stock.Product{Name: "Rice", Department: "canteen"})
	ctx := context.Background()

	res, err := mgr.ProcessRestock(ctx, supplier.RestockInput{
		SupplierID: sup.ID,
		Items:      []supplier.RestockItemInput{{ProductID: p.ID, Qty: 4, BuyPrice: dec("25"), SellPrice: dec("30")}},
		Actor:      buyer,
	})
	require.NoError(t, err)

	_, err = mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("100"), Actor: buyer})
	require.NoError(t, err)
	require.Equal(t, supplier.RestockPaid, store.Restock(res.Restock.ID).Status)
	require.Len(t, store.PaymentAllocations(), 1)
}

func TestSupplierMoneyMustBeWholeCents(t *testing.T) {
	mgr, store, audit := newManager(t)
	sup := store.AddSupplier(supplier.Supplier{Name: "Kapa"})
	p := store.AddProduct(stock.Product{Name: "Salt", Department: "canteen", StockQty: 1, BuyPrice: dec("20"), SellPrice: dec("30")})
	store.AddCredit(sup.ID, dec("50"), today)
	ctx := context.Background()

	_, err := mgr.ProcessRestock(ctx, supplier.RestockInput{
		SupplierID: sup.ID,
		Items:      []supplier.RestockItemInput{{ProductID: p.ID, Qty: 3, BuyPrice: dec("20.335"), SellPrice: dec("30")}},
		Actor:      buyer,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = mgr.ProcessRestock(ctx, supplier.RestockInput{
		SupplierID:   sup.ID,
		Items:        []supplier.RestockItemInput{{ProductID: p.ID, Qty: 3, BuyPrice: dec("20"), SellPrice: dec("30")}},
		MiscExpenses: dec("0.001"),
		Actor:        buyer,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = mgr.RecordSupplierPayment(ctx, supplier.PaymentInput{SupplierID: sup.ID, Amount: dec("10.005"), Actor: buyer})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.True(t, store.Supplier(sup.ID).Balance.Equal(dec("50")))
	require.Equal(t, 1, store.Product(p.ID).StockQty)
	require.Empty(t, audit.Actions())
}

func TestCreateSupplierRequiresActor(t *testing.T) {
	mgr, _, audit := newManager(t)
	_, err := mgr.CreateSupplier(context.Background(), supplier.CreateSupplierInput{Name: "Bidco"})
	require.ErrorIs(t, err, shared.ErrValidation)

	s, err := mgr.CreateSupplier(context.Background(), supplier.CreateSupplierInput{Name: "Bidco", Actor: buyer})
	require.NoError(t, err)
	require.Equal(t, "Bidco", s.Name)
	require.Equal(t, []string{"supplier:created"}, audit.Actions())
}
