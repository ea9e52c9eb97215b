package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the manager.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListPayments(ctx context.Context, customerID int64, page shared.Page) ([]Payment, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Manager owns customer balances.
type Manager struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	validate *shared.Validator
}

// NewManager builds Manager.
func NewManager(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, audit: audit, logger: logger, validate: shared.NewValidator()}
}

// Apply moves a customer's ledger inside an open transaction. The customer
// row stays locked until the caller's transaction ends.
func Apply(ctx context.Context, tx TxRepository, d Delta) (DeltaResult, error) {
	if d.CostDelta.IsZero() && d.PaidDelta.IsZero() {
		return DeltaResult{}, shared.Invalid("ledger", "delta must move cost or paid amount")
	}
	c, err := tx.GetCustomerForUpdate(ctx, d.CustomerID)
	if err != nil {
		return DeltaResult{}, err
	}
	prevBalance := c.Balance
	prevPaid := c.AmountPaid

	c.TotalItemsCost = shared.FloorZero(c.TotalItemsCost.Add(d.CostDelta))
	c.AmountPaid = shared.FloorZero(c.AmountPaid.Add(d.PaidDelta))
	c.Balance = shared.Outstanding(c.TotalItemsCost, c.AmountPaid)
	if err := tx.UpdateCustomerLedger(ctx, c); err != nil {
		return DeltaResult{}, fmt.Errorf("ledger: update customer %d: %w", c.ID, err)
	}

	result := DeltaResult{Customer: c, PreviousBalance: prevBalance, NewBalance: c.Balance}
	applied := c.AmountPaid.Sub(prevPaid)
	if d.Payment != nil && !applied.IsZero() {
		method := d.Payment.Method
		if method == "" {
			method = "cash"
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			CustomerID: c.ID,
			SaleID:     d.Payment.SaleID,
			Amount:     applied,
			Method:     method,
			Reference:  d.Payment.Reference,
			Actor:      d.Actor,
		})
		if err != nil {
			return DeltaResult{}, fmt.Errorf("ledger: insert payment: %w", err)
		}
		result.Payment = &payment
	}
	return result, nil
}

// AddCharge records goods taken on credit: total_items_cost and therefore
// balance grow by amount, and no payment is written.
func AddCharge(ctx context.Context, tx TxRepository, customerID int64, amount decimal.Decimal, actor shared.Actor) (DeltaResult, error) {
	if !amount.IsPositive() {
		return DeltaResult{}, shared.Invalid("ledger", "charge must be positive")
	}
	if !shared.HasCents(amount) {
		return DeltaResult{}, shared.Invalid("ledger", "charge must have at most %d decimal places", shared.MoneyScale)
	}
	return Apply(ctx, tx, Delta{CustomerID: customerID, CostDelta: amount, Actor: actor})
}

// ApplyBalanceDelta registers a payment (positive amount) or a payment
// reversal (negative amount) against a customer in its own transaction.
func (m *Manager) ApplyBalanceDelta(ctx context.Context, in DeltaInput) (DeltaResult, error) {
	if err := m.validate.Struct("ledger", in); err != nil {
		return DeltaResult{}, err
	}
	if in.Amount.IsZero() {
		return DeltaResult{}, shared.Invalid("ledger", "amount must be non zero")
	}
	if !shared.HasCents(in.Amount) {
		return DeltaResult{}, shared.Invalid("ledger", "amount must have at most %d decimal places", shared.MoneyScale)
	}
	if !in.Actor.Valid() {
		return DeltaResult{}, shared.Invalid("ledger", "actor name and role required")
	}
	var result DeltaResult
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = Apply(ctx, tx, Delta{
			CustomerID: in.CustomerID,
			PaidDelta:  in.Amount,
			Payment:    in.Meta,
			Actor:      in.Actor,
		})
		return err
	})
	if err != nil {
		return DeltaResult{}, err
	}
	m.logger.Info("balance delta applied",
		slog.Int64("customer_id", in.CustomerID),
		slog.String("amount", in.Amount.StringFixed(2)),
		slog.String("previous_balance", result.PreviousBalance.StringFixed(2)),
		slog.String("new_balance", result.NewBalance.StringFixed(2)))
	m.record(ctx, in.Actor, "ledger:balance_delta", strconv.FormatInt(in.CustomerID, 10), map[string]any{
		"amount":           in.Amount.String(),
		"previous_balance": result.PreviousBalance.String(),
		"new_balance":      result.NewBalance.String(),
	})
	return result, nil
}

// CreateCustomer enrols a customer with a zero ledger.
func (m *Manager) CreateCustomer(ctx context.Context, in CreateCustomerInput) (Customer, error) {
	if err := m.validate.Struct("ledger", in); err != nil {
		return Customer{}, err
	}
	if !in.Actor.Valid() {
		return Customer{}, shared.Invalid("ledger", "actor name and role required")
	}
	if in.Program == "" {
		in.Program = ProgramNone
	}
	if in.Boarding == "" {
		in.Boarding = BoardingDay
	}
	c, err := m.repo.CreateCustomer(ctx, Customer{
		Name:               in.Name,
		GuardianName:       in.GuardianName,
		GuardianPhone:      in.GuardianPhone,
		Program:            in.Program,
		Boarding:           in.Boarding,
		PocketMoneyEnabled: in.PocketMoney,
	})
	if err != nil {
		return Customer{}, fmt.Errorf("ledger: create customer: %w", err)
	}
	m.record(ctx, in.Actor, "ledger:customer_created", strconv.FormatInt(c.ID, 10), map[string]any{"name": c.Name})
	return c, nil
}

// GetCustomer returns a customer snapshot.
func (m *Manager) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.Invalid("ledger", "customer id required")
	}
	return m.repo.GetCustomer(ctx, id)
}

// ListPayments lists payments for a customer.
func (m *Manager) ListPayments(ctx context.Context, customerID int64, page shared.Page) ([]Payment, error) {
	if customerID <= 0 {
		return nil, shared.Invalid("ledger", "customer id required")
	}
	return m.repo.ListPayments(ctx, customerID, page)
}

func (m *Manager) record(ctx context.Context, actor shared.Actor, action, id string, meta map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "customer", EntityID: id, Meta: meta}); err != nil {
		m.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
