package sales

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// RepositoryPort abstracts repository usage for the processor.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id string) (Sale, error)
	ListRefunds(ctx context.Context, saleID string) ([]Refund, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client-supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const idempotencyModule = "sales"

// Processor runs checkouts, refunds and exchanges.
type Processor struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       shared.CacheBumper
	logger      *slog.Logger
	validate    *shared.Validator
	now         func() time.Time
	newID       func(time.Time) string
}

// NewProcessor builds Processor. idem may be nil.
func NewProcessor(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		validate:    shared.NewValidator(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       NewSaleID,
	}
}

// WithCache registers the read-model cache bumped after commits.
func (p *Processor) WithCache(c shared.CacheBumper) *Processor {
	p.cache = c
	return p
}

// ProcessSale validates, prices and records a checkout in one transaction.
func (p *Processor) ProcessSale(ctx context.Context, in SaleInput) (SaleResult, error) {
	if err := p.validate.Struct("sales", in); err != nil {
		return SaleResult{}, err
	}
	if !in.Actor.Valid() {
		return SaleResult{}, shared.Invalid("sales", "actor name and role required")
	}
	if err := shared.CheckAmount("sales", "amount paid", in.AmountPaid); err != nil {
		return SaleResult{}, err
	}
	if in.TransactionType == "" {
		in.TransactionType = TransactionNormal
	}
	if in.PaymentMode == "" {
		in.PaymentMode = PaymentCash
		if in.TransactionType == TransactionAddToBalance {
			in.PaymentMode = PaymentNone
		}
	}
	if in.TransactionType == TransactionAddToBalance && in.CustomerID == 0 {
		return SaleResult{}, shared.E(shared.KindInvalidState, "sales", "add to balance requires a customer")
	}

	claimed, err := p.claim(ctx, in.IdempotencyKey)
	if err != nil {
		return SaleResult{}, err
	}

	var (
		sale     Sale
		totals   Totals
		balance  *decimal.Decimal
		saleTime = p.now()
	)
	err = p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, subtotal, err := PrepareLines(ctx, tx, in.Department, in.Items)
		if err != nil {
			return err
		}
		totals = settle(in, subtotal)
		if in.CustomerID == 0 && totals.Paid.LessThan(subtotal) {
			return shared.E(shared.KindInsufficientBalance, "sales",
				"walk-in sale of %s needs full payment, got %s", subtotal.StringFixed(2), in.AmountPaid.StringFixed(2))
		}

		sale, err = WriteSale(ctx, tx, Sale{
			ID:              p.newID(saleTime),
			CustomerID:      in.CustomerID,
			Department:      stock.NormalizeDepartment(in.Department),
			PaymentMode:     in.PaymentMode,
			TransactionType: in.TransactionType,
			Total:           totals.Subtotal,
			Paid:            totals.Paid,
			Balance:         totals.Balance,
			Change:          totals.Change,
			Actor:           in.Actor,
		}, lines, stock.ReasonSale)
		if err != nil {
			return err
		}
		if in.CustomerID == 0 {
			return nil
		}

		var res ledger.DeltaResult
		if in.TransactionType == TransactionAddToBalance {
			if subtotal.IsZero() {
				return nil
			}
			res, err = ledger.AddCharge(ctx, tx, in.CustomerID, subtotal, in.Actor)
		} else {
			if subtotal.IsZero() && totals.Paid.IsZero() {
				return nil
			}
			res, err = ledger.Apply(ctx, tx, ledger.Delta{
				CustomerID: in.CustomerID,
				CostDelta:  subtotal,
				PaidDelta:  totals.Paid,
				Payment:    &ledger.PaymentMeta{Method: string(in.PaymentMode), SaleID: sale.ID},
				Actor:      in.Actor,
			})
		}
		if err != nil {
			return err
		}
		balance = &res.NewBalance
		return nil
	})
	if err != nil {
		p.release(ctx, claimed, in.IdempotencyKey)
		return SaleResult{}, err
	}

	p.logger.Info("sale processed",
		slog.String("sale_id", sale.ID),
		slog.String("department", sale.Department),
		slog.Int64("customer_id", sale.CustomerID),
		slog.String("total", totals.Subtotal.StringFixed(2)),
		slog.String("transaction_type", string(sale.TransactionType)))
	p.record(ctx, in.Actor, "sales:sale_processed", sale.ID, map[string]any{
		"total":            totals.Subtotal.String(),
		"paid":             totals.Paid.String(),
		"transaction_type": string(sale.TransactionType),
		"items":            len(sale.Items),
	})
	p.bump(ctx)
	return SaleResult{SaleID: sale.ID, Totals: totals, ItemsCount: len(sale.Items), CustomerBalance: balance}, nil
}

// settle splits the subtotal into what is paid now and what stays owed.
func settle(in SaleInput, subtotal decimal.Decimal) Totals {
	t := Totals{Subtotal: subtotal}
	if in.TransactionType == TransactionAddToBalance {
		t.Balance = subtotal
		return t
	}
	t.Paid = decimal.Min(in.AmountPaid, subtotal)
	t.Balance = subtotal.Sub(t.Paid)
	t.Change = shared.FloorZero(in.AmountPaid.Sub(subtotal))
	return t
}

// GetSale returns a sale with its items.
func (p *Processor) GetSale(ctx context.Context, id string) (Sale, error) {
	if id == "" {
		return Sale{}, shared.Invalid("sales", "sale id required")
	}
	return p.repo.GetSale(ctx, id)
}

// ListRefunds lists refund lines recorded against a sale.
func (p *Processor) ListRefunds(ctx context.Context, saleID string) ([]Refund, error) {
	if saleID == "" {
		return nil, shared.Invalid("sales", "sale id required")
	}
	return p.repo.ListRefunds(ctx, saleID)
}

func (p *Processor) claim(ctx context.Context, key string) (bool, error) {
	if key == "" || p.idempotency == nil {
		return false, nil
	}
	if err := p.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) release(ctx context.Context, claimed bool, key string) {
	if !claimed {
		return
	}
	if err := p.idempotency.Delete(ctx, key, idempotencyModule); err != nil {
		p.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (p *Processor) bump(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Bump(ctx, shared.ScopeStock); err != nil {
		p.logger.Warn("bump read cache", slog.String("scope", shared.ScopeStock), slog.Any("error", err))
	}
}

func (p *Processor) record(ctx context.Context, actor shared.Actor, action, id string, meta map[string]any) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "sale", EntityID: id, Meta: meta}); err != nil {
		p.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
