package pocketmoney

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// DefaultDepartments may take pocket money when none are configured.
var DefaultDepartments = []string{"canteen", "tuckshop"}

// RepositoryPort abstracts repository usage for the subledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCustomer(ctx context.Context, id int64) (ledger.Customer, error)
	ListTransactions(ctx context.Context, customerID int64, page shared.Page) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups subledger settings. A zero MaxBalance leaves top-ups
// unbounded.
type Config struct {
	Departments []string
	MaxBalance  decimal.Decimal
}

// Subledger moves the boarding pocket-money balance.
type Subledger struct {
	repo        RepositoryPort
	audit       AuditPort
	cache       shared.CacheBumper
	logger      *slog.Logger
	validate    *shared.Validator
	departments map[string]bool
	maxBalance  decimal.Decimal
	now         func() time.Time
	newID       func(time.Time) string
}

// NewSubledger builds Subledger.
func NewSubledger(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg Config) *Subledger {
	if logger == nil {
		logger = slog.Default()
	}
	depts := cfg.Departments
	if len(depts) == 0 {
		depts = DefaultDepartments
	}
	allowed := make(map[string]bool, len(depts))
	for _, d := range depts {
		if d = stock.NormalizeDepartment(d); d != "" {
			allowed[d] = true
		}
	}
	return &Subledger{
		repo:        repo,
		audit:       audit,
		logger:      logger,
		validate:    shared.NewValidator(),
		departments: allowed,
		maxBalance:  cfg.MaxBalance,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       sales.NewSaleID,
	}
}

// WithCache registers the stock read-model cache bumped after purchases.
func (s *Subledger) WithCache(c shared.CacheBumper) *Subledger {
	s.cache = c
	return s
}

// Purchase pays for goods from an allowed department out of pocket money.
// The owed-money ledger is untouched.
func (s *Subledger) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	if err := s.validate.Struct("pocketmoney", in); err != nil {
		return PurchaseResult{}, err
	}
	if !in.Actor.Valid() {
		return PurchaseResult{}, shared.Invalid("pocketmoney", "actor name and role required")
	}
	dept := stock.NormalizeDepartment(in.Department)
	if !s.departments[dept] {
		return PurchaseResult{}, shared.E(shared.KindInvalidState, "pocketmoney", "department %s does not accept pocket money", dept)
	}

	var result PurchaseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, total, err := sales.PrepareLines(ctx, tx, dept, in.Items)
		if err != nil {
			return err
		}
		c, err := tx.GetCustomerForUpdate(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if err := eligible(c); err != nil {
			return err
		}
		if total.GreaterThan(c.PocketMoneyBalance) {
			return shared.E(shared.KindInsufficientBalance, "pocketmoney",
				"purchase of %s exceeds pocket money %s", total.StringFixed(2), c.PocketMoneyBalance.StringFixed(2))
		}
		sale, err := sales.WriteSale(ctx, tx, sales.Sale{
			ID:              s.newID(s.now()),
			CustomerID:      c.ID,
			Department:      dept,
			PaymentMode:     sales.PaymentPocketMoney,
			TransactionType: sales.TransactionNormal,
			Total:           total,
			Paid:            total,
			Balance:         decimal.Zero,
			Change:          decimal.Zero,
			Actor:           in.Actor,
		}, lines, stock.ReasonPocketMoney)
		if err != nil {
			return err
		}
		after := c.PocketMoneyBalance.Sub(total)
		if _, err := s.move(ctx, tx, c.ID, KindPurchase, total.Neg(), after, "", sale.ID, in.Actor); err != nil {
			return err
		}
		result = PurchaseResult{SaleID: sale.ID, Total: total, ItemsCount: len(sale.Items), BalanceAfter: after}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.logger.Info("pocket money purchase",
		slog.Int64("customer_id", in.CustomerID),
		slog.String("sale_id", result.SaleID),
		slog.String("total", result.Total.StringFixed(2)),
		slog.String("balance_after", result.BalanceAfter.StringFixed(2)))
	s.record(ctx, in.Actor, "pocketmoney:purchase", in.CustomerID, map[string]any{
		"sale_id": result.SaleID,
		"total":   result.Total.String(),
	})
	if s.cache != nil {
		if err := s.cache.Bump(ctx, shared.ScopeStock); err != nil {
			s.logger.Warn("bump read cache", slog.String("scope", shared.ScopeStock), slog.Any("error", err))
		}
	}
	return result, nil
}

// TopUp adds money to the pocket-money balance.
func (s *Subledger) TopUp(ctx context.Context, in AdjustInput) (Transaction, error) {
	if err := s.checkAdjust(in); err != nil {
		return Transaction{}, err
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCustomerForUpdate(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		after := c.PocketMoneyBalance.Add(in.Amount)
		if s.maxBalance.IsPositive() && after.GreaterThan(s.maxBalance) {
			return shared.E(shared.KindInvalidState, "pocketmoney",
				"top up to %s exceeds limit %s", after.StringFixed(2), s.maxBalance.StringFixed(2))
		}
		txn, err = s.move(ctx, tx, c.ID, KindTopUp, in.Amount, after, in.Reason, "", in.Actor)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.logger.Info("pocket money top up", slog.Int64("customer_id", in.CustomerID), slog.String("amount", in.Amount.StringFixed(2)))
	s.record(ctx, in.Actor, "pocketmoney:top_up", in.CustomerID, map[string]any{"amount": in.Amount.String(), "balance_after": txn.BalanceAfter.String()})
	return txn, nil
}

// Deduct removes money from the pocket-money balance, stopping at zero.
// A reason is mandatory.
func (s *Subledger) Deduct(ctx context.Context, in AdjustInput) (Transaction, error) {
	if err := s.checkAdjust(in); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Transaction{}, shared.E(shared.KindInvalidState, "pocketmoney", "deduction reason required")
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCustomerForUpdate(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		after := shared.FloorZero(c.PocketMoneyBalance.Sub(in.Amount))
		applied := c.PocketMoneyBalance.Sub(after)
		txn, err = s.move(ctx, tx, c.ID, KindDeduct, applied.Neg(), after, in.Reason, "", in.Actor)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.logger.Info("pocket money deduct", slog.Int64("customer_id", in.CustomerID), slog.String("amount", txn.Amount.StringFixed(2)))
	s.record(ctx, in.Actor, "pocketmoney:deduct", in.CustomerID, map[string]any{
		"requested":     in.Amount.String(),
		"applied":       txn.Amount.Neg().String(),
		"reason":        in.Reason,
		"balance_after": txn.BalanceAfter.String(),
	})
	return txn, nil
}

// Status returns the eligibility snapshot of a customer.
func (s *Subledger) Status(ctx context.Context, customerID int64) (Status, error) {
	if customerID <= 0 {
		return Status{}, shared.Invalid("pocketmoney", "customer id required")
	}
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		CustomerID:     c.ID,
		IsBoarder:      c.IsBoarder(),
		HasPocketMoney: c.PocketMoneyEnabled,
		Balance:        c.PocketMoneyBalance,
	}, nil
}

// SetEnabled switches pocket money on or off for a customer.
func (s *Subledger) SetEnabled(ctx context.Context, customerID int64, enabled bool, actor shared.Actor) error {
	if customerID <= 0 {
		return shared.Invalid("pocketmoney", "customer id required")
	}
	if !actor.Valid() {
		return shared.Invalid("pocketmoney", "actor name and role required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		if enabled && !c.IsBoarder() {
			return shared.E(shared.KindInvalidState, "pocketmoney", "customer %d is not a boarder", c.ID)
		}
		return tx.SetPocketMoneyEnabled(ctx, c.ID, enabled)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "pocketmoney:enabled", customerID, map[string]any{"enabled": enabled})
	return nil
}

// History lists pocket-money movements of a customer.
func (s *Subledger) History(ctx context.Context, customerID int64, page shared.Page) ([]Transaction, error) {
	if customerID <= 0 {
		return nil, shared.Invalid("pocketmoney", "customer id required")
	}
	return s.repo.ListTransactions(ctx, customerID, page)
}

func eligible(c ledger.Customer) error {
	if !c.IsBoarder() {
		return shared.E(shared.KindInvalidState, "pocketmoney", "customer %d is not a boarder", c.ID)
	}
	if !c.PocketMoneyEnabled {
		return shared.E(shared.KindInvalidState, "pocketmoney", "pocket money disabled for customer %d", c.ID)
	}
	return nil
}

func (s *Subledger) checkAdjust(in AdjustInput) error {
	if err := s.validate.Struct("pocketmoney", in); err != nil {
		return err
	}
	if !in.Actor.Valid() {
		return shared.Invalid("pocketmoney", "actor name and role required")
	}
	if !in.Amount.IsPositive() {
		return shared.Invalid("pocketmoney", "amount must be positive")
	}
	if !shared.HasCents(in.Amount) {
		return shared.Invalid("pocketmoney", "amount must have at most %d decimal places", shared.MoneyScale)
	}
	return nil
}

func (s *Subledger) move(ctx context.Context, tx TxRepository, customerID int64, kind Kind, amount, after decimal.Decimal, reason, saleID string, actor shared.Actor) (Transaction, error) {
	if err := tx.SetPocketMoney(ctx, customerID, after); err != nil {
		return Transaction{}, fmt.Errorf("pocketmoney: set balance %d: %w", customerID, err)
	}
	txn, err := tx.InsertTransaction(ctx, Transaction{
		CustomerID:   customerID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: after,
		Reason:       reason,
		SaleID:       saleID,
		Actor:        actor,
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("pocketmoney: log %s: %w", kind, err)
	}
	return txn, nil
}

func (s *Subledger) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "customer", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
