package supplier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// DefaultCreditDays is the payment term granted on every restock.
const DefaultCreditDays = 30

// RepositoryPort abstracts repository usage for the manager.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListCredits(ctx context.Context, supplierID int64, unpaidOnly bool) ([]Credit, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ManagerConfig groups optional settings.
type ManagerConfig struct {
	CreditDays int
}

// Manager handles restocks and the credit they create.
type Manager struct {
	repo       RepositoryPort
	audit      AuditPort
	cache      shared.CacheBumper
	logger     *slog.Logger
	validate   *shared.Validator
	creditDays int
	now        func() time.Time
}

// NewManager builds Manager.
func NewManager(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CreditDays <= 0 {
		cfg.CreditDays = DefaultCreditDays
	}
	return &Manager{
		repo:       repo,
		audit:      audit,
		logger:     logger,
		validate:   shared.NewValidator(),
		creditDays: cfg.CreditDays,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithCache registers the stock read-model cache bumped after restocks.
func (m *Manager) WithCache(c shared.CacheBumper) *Manager {
	m.cache = c
	return m
}

// WithClock replaces the clock used for credit due dates.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateSupplier registers a supplier.
func (m *Manager) CreateSupplier(ctx context.Context, in CreateSupplierInput) (Supplier, error) {
	if err := m.validate.Struct("supplier", in); err != nil {
		return Supplier{}, err
	}
	if !in.Actor.Valid() {
		return Supplier{}, shared.Invalid("supplier", "actor name and role required")
	}
	s, err := m.repo.CreateSupplier(ctx, Supplier{Name: in.Name, Contact: in.Contact})
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: create: %w", err)
	}
	m.record(ctx, in.Actor, "supplier:created", s.ID, map[string]any{"name": s.Name})
	return s, nil
}

// GetSupplier returns a supplier snapshot.
func (m *Manager) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.Invalid("supplier", "supplier id required")
	}
	return m.repo.GetSupplier(ctx, id)
}

// ListCredits lists a supplier's credit obligations, oldest first.
func (m *Manager) ListCredits(ctx context.Context, supplierID int64, unpaidOnly bool) ([]Credit, error) {
	if supplierID <= 0 {
		return nil, shared.Invalid("supplier", "supplier id required")
	}
	if _, err := m.repo.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return m.repo.ListCredits(ctx, supplierID, unpaidOnly)
}

// ProcessRestock books a delivery: stock and prices move, and the total
// cost becomes a credit owed to the supplier.
func (m *Manager) ProcessRestock(ctx context.Context, in RestockInput) (RestockResult, error) {
	if err := m.validate.Struct("supplier", in); err != nil {
		return RestockResult{}, err
	}
	if !in.Actor.Valid() {
		return RestockResult{}, shared.Invalid("supplier", "actor name and role required")
	}
	if err := shared.CheckAmount("supplier", "misc expenses", in.MiscExpenses); err != nil {
		return RestockResult{}, err
	}
	total := in.MiscExpenses
	existing := make([]int64, 0, len(in.Items))
	for i, it := range in.Items {
		if err := shared.CheckAmount("supplier", fmt.Sprintf("item %d buy price", i+1), it.BuyPrice); err != nil {
			return RestockResult{}, err
		}
		if err := shared.CheckAmount("supplier", fmt.Sprintf("item %d sell price", i+1), it.SellPrice); err != nil {
			return RestockResult{}, err
		}
		if it.ProductID > 0 {
			existing = append(existing, it.ProductID)
		}
		total = total.Add(shared.LineTotal(it.BuyPrice, it.Qty))
	}

	now := m.now()
	var result RestockResult
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sup, err := tx.GetSupplierForUpdate(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		locked, err := stock.LockProducts(ctx, tx, existing)
		if err != nil {
			return err
		}
		status := RestockPendingPayment
		if total.IsZero() {
			status = RestockPaid
		}
		restock, err := tx.InsertRestock(ctx, Restock{
			SupplierID:   sup.ID,
			TotalCost:    total,
			MiscExpenses: in.MiscExpenses,
			Status:       status,
			Actor:        in.Actor,
		})
		if err != nil {
			return fmt.Errorf("supplier: insert restock: %w", err)
		}

		ref := "restock:" + strconv.FormatInt(restock.ID, 10)
		lines := make([]RestockItem, 0, len(in.Items))
		for _, it := range in.Items {
			productID, err := m.receive(ctx, tx, locked, it, ref)
			if err != nil {
				return err
			}
			lines = append(lines, RestockItem{ProductID: productID, Qty: it.Qty, BuyPrice: it.BuyPrice, SellPrice: it.SellPrice})
		}
		restock.Items, err = tx.InsertRestockItems(ctx, restock.ID, lines)
		if err != nil {
			return fmt.Errorf("supplier: insert restock items: %w", err)
		}

		if total.IsPositive() {
			credit, err := tx.InsertCredit(ctx, Credit{
				SupplierID:     sup.ID,
				RestockID:      restock.ID,
				Amount:         total,
				OriginalAmount: total,
				DueDate:        now.AddDate(0, 0, m.creditDays),
				Status:         CreditUnpaid,
			})
			if err != nil {
				return fmt.Errorf("supplier: insert credit: %w", err)
			}
			result.Credit = &credit
			sup.Balance = sup.Balance.Add(total)
			if err := tx.SetSupplierBalance(ctx, sup.ID, sup.Balance); err != nil {
				return fmt.Errorf("supplier: balance %d: %w", sup.ID, err)
			}
		}
		result.Restock = restock
		result.Supplier = sup
		return nil
	})
	if err != nil {
		return RestockResult{}, err
	}

	m.logger.Info("restock processed",
		slog.Int64("supplier_id", in.SupplierID),
		slog.Int64("restock_id", result.Restock.ID),
		slog.String("total_cost", total.StringFixed(2)),
		slog.String("supplier_balance", result.Supplier.Balance.StringFixed(2)))
	m.record(ctx, in.Actor, "supplier:restock", in.SupplierID, map[string]any{
		"restock_id": result.Restock.ID,
		"total_cost": total.String(),
		"items":      len(result.Restock.Items),
	})
	if m.cache != nil {
		if err := m.cache.Bump(ctx, shared.ScopeStock); err != nil {
			m.logger.Warn("bump read cache", slog.String("scope", shared.ScopeStock), slog.Any("error", err))
		}
	}
	return result, nil
}

// receive stocks one delivered line, creating the product when needed,
// and returns its id.
func (m *Manager) receive(ctx context.Context, tx TxRepository, locked map[int64]stock.Product, it RestockItemInput, ref string) (int64, error) {
	if it.ProductID > 0 {
		p := locked[it.ProductID]
		if p.Status != shared.StatusActive {
			return 0, shared.E(shared.KindInvalidState, "supplier", "product %d is archived", p.ID)
		}
		p.BuyPrice = it.BuyPrice
		p.SellPrice = it.SellPrice
		if err := tx.UpdatePrices(ctx, p); err != nil {
			return 0, fmt.Errorf("supplier: update prices %d: %w", p.ID, err)
		}
		if _, err := stock.Adjust(ctx, tx, stock.Change{ProductID: p.ID, Delta: it.Qty, Reason: stock.ReasonRestock, Ref: ref}); err != nil {
			return 0, err
		}
		return p.ID, nil
	}
	p, err := tx.InsertProduct(ctx, stock.Product{
		Name:         it.Name,
		Department:   stock.NormalizeDepartment(it.Department),
		ReorderLevel: it.ReorderLevel,
		BuyPrice:     it.BuyPrice,
		SellPrice:    it.SellPrice,
	})
	if err != nil {
		return 0, fmt.Errorf("supplier: create product %q: %w", it.Name, err)
	}
	if _, err := stock.Adjust(ctx, tx, stock.Change{ProductID: p.ID, Delta: it.Qty, Reason: stock.ReasonRestock, Ref: ref}); err != nil {
		return 0, err
	}
	return p.ID, nil
}

// RecordSupplierPayment pays down the supplier balance, settling unpaid
// credits oldest first.
func (m *Manager) RecordSupplierPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if err := m.validate.Struct("supplier", in); err != nil {
		return PaymentResult{}, err
	}
	if !in.Actor.Valid() {
		return PaymentResult{}, shared.Invalid("supplier", "actor name and role required")
	}
	if !in.Amount.IsPositive() {
		return PaymentResult{}, shared.Invalid("supplier", "payment amount must be positive")
	}
	if !shared.HasCents(in.Amount) {
		return PaymentResult{}, shared.Invalid("supplier", "payment amount must have at most %d decimal places", shared.MoneyScale)
	}
	if in.Method == "" {
		in.Method = "cash"
	}

	var result PaymentResult
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sup, err := tx.GetSupplierForUpdate(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		if sup.Balance.IsZero() {
			return shared.E(shared.KindInsufficientBalance, "supplier", "supplier %d has nothing owing", sup.ID)
		}
		if in.Amount.GreaterThan(sup.Balance) {
			return shared.E(shared.KindInsufficientBalance, "supplier",
				"payment %s exceeds balance %s", in.Amount.StringFixed(2), sup.Balance.StringFixed(2))
		}
		payment, err := tx.InsertSupplierPayment(ctx, Payment{
			SupplierID: sup.ID,
			Amount:     in.Amount,
			Method:     in.Method,
			Note:       in.Note,
			Actor:      in.Actor,
		})
		if err != nil {
			return fmt.Errorf("supplier: insert payment: %w", err)
		}
		credits, err := tx.ListUnpaidCreditsForUpdate(ctx, sup.ID)
		if err != nil {
			return fmt.Errorf("supplier: unpaid credits %d: %w", sup.ID, err)
		}
		allocations, err := settleFIFO(ctx, tx, payment.ID, credits, in.Amount)
		if err != nil {
			return err
		}
		result = PaymentResult{
			Payment:         payment,
			PreviousBalance: sup.Balance,
			NewBalance:      sup.Balance.Sub(in.Amount),
			Allocations:     allocations,
		}
		return tx.SetSupplierBalance(ctx, sup.ID, result.NewBalance)
	})
	if err != nil {
		return PaymentResult{}, err
	}
	m.logger.Info("supplier payment recorded",
		slog.Int64("supplier_id", in.SupplierID),
		slog.String("amount", in.Amount.StringFixed(2)),
		slog.String("new_balance", result.NewBalance.StringFixed(2)),
		slog.Int("credits_touched", len(result.Allocations)))
	m.record(ctx, in.Actor, "supplier:payment", in.SupplierID, map[string]any{
		"payment_id":       result.Payment.ID,
		"amount":           in.Amount.String(),
		"previous_balance": result.PreviousBalance.String(),
		"new_balance":      result.NewBalance.String(),
	})
	return result, nil
}

// settleFIFO consumes credits in the given order until amount is spent.
func settleFIFO(ctx context.Context, tx TxRepository, paymentID int64, credits []Credit, amount decimal.Decimal) ([]PaymentAllocation, error) {
	remaining := amount
	allocations := []PaymentAllocation{}
	for _, c := range credits {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, c.Amount)
		if !take.IsPositive() {
			continue
		}
		c.Amount = c.Amount.Sub(take)
		if c.Amount.IsZero() {
			c.Status = CreditPaid
		}
		if err := tx.UpdateCredit(ctx, c); err != nil {
			return nil, fmt.Errorf("supplier: update credit %d: %w", c.ID, err)
		}
		if c.Status == CreditPaid {
			if err := tx.MarkRestockPaid(ctx, c.RestockID); err != nil {
				return nil, fmt.Errorf("supplier: mark restock %d paid: %w", c.RestockID, err)
			}
		}
		alloc, err := tx.InsertPaymentAllocation(ctx, PaymentAllocation{PaymentID: paymentID, CreditID: c.ID, Amount: take})
		if err != nil {
			return nil, fmt.Errorf("supplier: allocate credit %d: %w", c.ID, err)
		}
		allocations = append(allocations, alloc)
		remaining = remaining.Sub(take)
	}
	return allocations, nil
}

func (m *Manager) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "supplier", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		m.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
