package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/testing/memstore"
)

var clerk = shared.Actor{Name: "amina", Role: "bursar"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newManager(t *testing.T) (*ledger.Manager, *memstore.Store, *memstore.Audit) {
	t.Helper()
	store := memstore.New()
	audit := &memstore.Audit{}
	return ledger.NewManager(store.Ledger(), audit, nil), store, audit
}

func requireLedgerInvariant(t *testing.T, c ledger.Customer) {
	t.Helper()
	require.False(t, c.TotalItemsCost.IsNegative(), "total_items_cost negative")
	require.False(t, c.AmountPaid.IsNegative(), "amount_paid negative")
	require.True(t, c.Balance.Equal(shared.Outstanding(c.TotalItemsCost, c.AmountPaid)),
		"balance %s != max(0, %s - %s)", c.Balance, c.TotalItemsCost, c.AmountPaid)
}

func TestApplyBalanceDeltaPaymentReducesBalance(t *testing.T) {
	mgr, store, audit := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Ben", TotalItemsCost: dec("500")})

	res, err := mgr.ApplyBalanceDelta(context.Background(), ledger.DeltaInput{
		CustomerID: c.ID,
		Amount:     dec("200"),
		Meta:       &ledger.PaymentMeta{Method: "mobile_money", Reference: "MM-881"},
		Actor:      clerk,
	})
	require.NoError(t, err)
	require.True(t, res.PreviousBalance.Equal(dec("500")))
	require.True(t, res.NewBalance.Equal(dec("300")))
	require.NotNil(t, res.Payment)
	require.Equal(t, "mobile_money", res.Payment.Method)
	require.True(t, res.Payment.Amount.Equal(dec("200")))

	stored := store.Customer(c.ID)
	requireLedgerInvariant(t, stored)
	require.True(t, stored.AmountPaid.Equal(dec("200")))
	require.Equal(t, []string{"ledger:balance_delta"}, audit.Actions())
}

func TestApplyBalanceDeltaOverpaymentFloorsBalance(t *testing.T) {
	mgr, store, _ := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Cleo", TotalItemsCost: dec("100")})

	res, err := mgr.ApplyBalanceDelta(context.Background(), ledger.DeltaInput{CustomerID: c.ID, Amount: dec("250"), Actor: clerk})
	require.NoError(t, err)
	require.True(t, res.NewBalance.IsZero())
	requireLedgerInvariant(t, store.Customer(c.ID))
}

func TestApplyBalanceDeltaReversalFloorsPaid(t *testing.T) {
	mgr, store, _ := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Dan", TotalItemsCost: dec("300"), AmountPaid: dec("50")})

	res, err := mgr.ApplyBalanceDelta(context.Background(), ledger.DeltaInput{
		CustomerID: c.ID,
		Amount:     dec("-80"),
		Meta:       &ledger.PaymentMeta{Method: "refund"},
		Actor:      clerk,
	})
	require.NoError(t, err)
	require.True(t, res.NewBalance.Equal(dec("300")))
	require.NotNil(t, res.Payment)
	// Only the 50 actually held can be reversed.
	require.True(t, res.Payment.Amount.Equal(dec("-50")))

	stored := store.Customer(c.ID)
	require.True(t, stored.AmountPaid.IsZero())
	requireLedgerInvariant(t, stored)
}

func TestApplyBalanceDeltaSequenceKeepsInvariant(t *testing.T) {
	mgr, store, _ := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Eve"})
	ctx := context.Background()

	steps := []string{"40", "-10", "-100", "75", "0.50", "-0.25"}
	for _, s := range steps {
		_, err := mgr.ApplyBalanceDelta(ctx, ledger.DeltaInput{CustomerID: c.ID, Amount: dec(s), Actor: clerk})
		require.NoError(t, err, "step %s", s)
		requireLedgerInvariant(t, store.Customer(c.ID))
	}
}

func TestApplyBalanceDeltaRejectsBadInput(t *testing.T) {
	mgr, store, _ := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Fay"})
	ctx := context.Background()

	_, err := mgr.ApplyBalanceDelta(ctx, ledger.DeltaInput{CustomerID: c.ID, Amount: decimal.Zero, Actor: clerk})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = mgr.ApplyBalanceDelta(ctx, ledger.DeltaInput{CustomerID: c.ID, Amount: dec("10")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = mgr.ApplyBalanceDelta(ctx, ledger.DeltaInput{CustomerID: 9999, Amount: dec("10"), Actor: clerk})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, 1, store.Transactions())
}

func TestApplyBalanceDeltaRollsBackOnPaymentFailure(t *testing.T) {
	mgr, store, audit := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Gus", TotalItemsCost: dec("90")})
	boom := errors.New("disk full")
	store.FailOn("InsertPayment", boom)

	_, err := mgr.ApplyBalanceDelta(context.Background(), ledger.DeltaInput{
		CustomerID: c.ID,
		Amount:     dec("90"),
		Meta:       &ledger.PaymentMeta{Method: "cash"},
		Actor:      clerk,
	})
	require.ErrorIs(t, err, boom)

	stored := store.Customer(c.ID)
	require.True(t, stored.Balance.Equal(dec("90")))
	require.True(t, stored.AmountPaid.IsZero())
	require.Empty(t, store.Payments(c.ID))
	require.Empty(t, audit.Actions())
}

func TestAddChargeGrowsBalanceWithoutPayment(t *testing.T) {
	store := memstore.New()
	c := store.AddCustomer(ledger.Customer{Name: "Hal"})

	err := store.Ledger().WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		res, err := ledger.AddCharge(ctx, tx, c.ID, dec("120"), clerk)
		require.NoError(t, err)
		require.Nil(t, res.Payment)
		require.True(t, res.NewBalance.Equal(dec("120")))
		return nil
	})
	require.NoError(t, err)

	err = store.Ledger().WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.AddCharge(ctx, tx, c.ID, decimal.Zero, clerk)
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, store.Customer(c.ID).TotalItemsCost.Equal(dec("120")))
}

func TestCreateCustomerDefaults(t *testing.T) {
	mgr, _, audit := newManager(t)
	c, err := mgr.CreateCustomer(context.Background(), ledger.CreateCustomerInput{Name: "Ivy", Actor: clerk})
	require.NoError(t, err)
	require.Equal(t, ledger.ProgramNone, c.Program)
	require.Equal(t, ledger.BoardingDay, c.Boarding)
	require.True(t, c.Balance.IsZero())
	require.Equal(t, []string{"ledger:customer_created"}, audit.Actions())

	_, err = mgr.CreateCustomer(context.Background(), ledger.CreateCustomerInput{Name: "Jo", Program: "C", Actor: clerk})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListPaymentsNewestFirst(t *testing.T) {
	mgr, store, _ := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Kim", TotalItemsCost: dec("100")})
	ctx := context.Background()
	for _, amt := range []string{"10", "20", "30"} {
		_, err := mgr.ApplyBalanceDelta(ctx, ledger.DeltaInput{CustomerID: c.ID, Amount: dec(amt), Meta: &ledger.PaymentMeta{}, Actor: clerk})
		require.NoError(t, err)
	}
	payments, err := mgr.ListPayments(ctx, c.ID, shared.NewPage(2, 0))
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.True(t, payments[0].Amount.Equal(dec("30")))
	require.Equal(t, "cash", payments[0].Method)
}

func TestApplyBalanceDeltaRejectsSubCentAmount(t *testing.T) {
	mgr, store, audit := newManager(t)
	c := store.AddCustomer(ledger.Customer{Name: "Otieno", TotalItemsCost: dec("100"), Balance: dec("100")})

	_, err := mgr.ApplyBalanceDelta(context.Background(), ledger.DeltaInput{CustomerID: c.ID, Amount: dec("10.005"), Actor: clerk})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, store.Customer(c.ID).Balance.Equal(dec("100")))
	require.Empty(t, store.Payments(c.ID))
	require.Empty(t, audit.Actions())
}

func TestCreateCustomerRequiresActor(t *testing.T) {
	mgr, _, audit := newManager(t)
	_, err := mgr.CreateCustomer(context.Background(), ledger.CreateCustomerInput{Name: "Ivy"})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, audit.Actions())
}
