package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// ProcessRefund returns goods from an earlier sale at their original
// price. Every line, the restock, the ledger reversal and any exchange
// sale commit together or not at all.
func (p *Processor) ProcessRefund(ctx context.Context, in RefundInput) (RefundResult, error) {
	if err := p.validate.Struct("sales", in); err != nil {
		return RefundResult{}, err
	}
	if !in.Actor.Valid() {
		return RefundResult{}, shared.Invalid("sales", "actor name and role required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return RefundResult{}, shared.E(shared.KindInvalidState, "sales", "refund reason required")
	}
	if in.RefundType == "" {
		in.RefundType = RefundMoney
	}
	if in.RefundType == RefundExchange && len(in.Replacements) == 0 {
		return RefundResult{}, shared.Invalid("sales", "exchange requires replacement items")
	}
	if in.RefundType == RefundMoney && len(in.Replacements) > 0 {
		return RefundResult{}, shared.Invalid("sales", "replacements are only valid for exchanges")
	}

	var result RefundResult
	err := p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = p.refundTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return RefundResult{}, err
	}

	p.logger.Info("refund processed",
		slog.String("sale_id", in.SaleID),
		slog.String("refund_type", string(in.RefundType)),
		slog.String("refund_total", result.RefundTotal.StringFixed(2)),
		slog.String("cash_returned", result.CashReturned.StringFixed(2)))
	meta := map[string]any{
		"refund_type":   string(in.RefundType),
		"refund_total":  result.RefundTotal.String(),
		"cash_returned": result.CashReturned.String(),
		"reason":        in.Reason,
	}
	if result.ExchangeSaleID != "" {
		meta["exchange_sale_id"] = result.ExchangeSaleID
	}
	p.record(ctx, in.Actor, "sales:refund_processed", in.SaleID, meta)
	p.bump(ctx)
	return result, nil
}

func (p *Processor) refundTx(ctx context.Context, tx TxRepository, in RefundInput) (RefundResult, error) {
	sale, err := tx.GetSaleForUpdate(ctx, in.SaleID)
	if err != nil {
		return RefundResult{}, err
	}
	if sale.PaymentMode == PaymentPocketMoney {
		return RefundResult{}, shared.E(shared.KindInvalidState, "sales", "pocket money sale %s cannot be refunded here", sale.ID)
	}
	items, err := tx.GetSaleItemsForUpdate(ctx, sale.ID)
	if err != nil {
		return RefundResult{}, err
	}
	byID := make(map[int64]SaleItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	requested := make(map[int64]int, len(in.Items))
	order := make([]int64, 0, len(in.Items))
	for _, ri := range in.Items {
		if _, ok := requested[ri.SaleItemID]; !ok {
			order = append(order, ri.SaleItemID)
		}
		requested[ri.SaleItemID] += ri.Qty
	}

	lockIDs := make([]int64, 0, len(order)+len(in.Replacements))
	for _, id := range order {
		it, ok := byID[id]
		if !ok {
			return RefundResult{}, shared.NotFound("sales", "sale item", id)
		}
		if qty := requested[id]; qty > it.Refundable() {
			return RefundResult{}, shared.E(shared.KindInvalidState, "sales",
				"sale item %d: refund of %d exceeds refundable quantity %d", id, qty, it.Refundable())
		}
		lockIDs = append(lockIDs, it.ProductID)
	}
	for _, r := range in.Replacements {
		lockIDs = append(lockIDs, r.ProductID)
	}
	// One ascending pass over returned and replacement products.
	if _, err := stock.LockProducts(ctx, tx, lockIDs); err != nil {
		return RefundResult{}, err
	}

	prior, err := tx.RefundTotals(ctx, sale.ID)
	if err != nil {
		return RefundResult{}, fmt.Errorf("sales: refund totals %s: %w", sale.ID, err)
	}

	reason := stock.ReasonRefund
	if in.RefundType == RefundExchange {
		reason = stock.ReasonExchange
	}
	total := decimal.Zero
	changes := make([]stock.Change, 0, len(order))
	for _, id := range order {
		it := byID[id]
		total = total.Add(shared.LineTotal(it.UnitPrice, requested[id]))
		changes = append(changes, stock.Change{ProductID: it.ProductID, Delta: requested[id], Reason: reason, Ref: sale.ID})
	}
	if _, err := stock.AdjustMany(ctx, tx, changes); err != nil {
		return RefundResult{}, err
	}

	result := RefundResult{RefundTotal: total, CashReturned: decimal.Zero, ExchangeTotal: decimal.Zero}
	costDelta := total.Neg()
	if in.RefundType == RefundExchange {
		lines, replTotal, err := PrepareLines(ctx, tx, sale.Department, in.Replacements)
		if err != nil {
			return RefundResult{}, err
		}
		if sale.WalkIn() && replTotal.GreaterThan(total) {
			return RefundResult{}, shared.E(shared.KindInsufficientBalance, "sales",
				"walk-in exchange of %s exceeds returned value %s", replTotal.StringFixed(2), total.StringFixed(2))
		}
		paid := decimal.Min(replTotal, total)
		exchange, err := WriteSale(ctx, tx, Sale{
			ID:              p.newID(p.now()),
			CustomerID:      sale.CustomerID,
			Department:      sale.Department,
			PaymentMode:     sale.PaymentMode,
			TransactionType: TransactionNormal,
			Total:           replTotal,
			Paid:            paid,
			Balance:         replTotal.Sub(paid),
			ExchangeOf:      sale.ID,
			Actor:           in.Actor,
		}, lines, stock.ReasonExchange)
		if err != nil {
			return RefundResult{}, err
		}
		result.ExchangeSaleID = exchange.ID
		result.ExchangeTotal = replTotal
		costDelta = replTotal.Sub(total)
		if sale.WalkIn() {
			result.CashReturned = decimal.Min(total.Sub(replTotal), sale.Paid.Sub(prior.Cash))
		}
	} else {
		result.CashReturned = refundCash(sale, prior, total)
	}
	result.CashReturned = shared.FloorZero(result.CashReturned)

	remaining := result.CashReturned
	for _, id := range order {
		it := byID[id]
		qty := requested[id]
		amount := shared.LineTotal(it.UnitPrice, qty)
		cash := decimal.Min(remaining, amount)
		remaining = remaining.Sub(cash)
		rf, err := tx.InsertRefund(ctx, Refund{
			SaleID:     sale.ID,
			SaleItemID: it.ID,
			ProductID:  it.ProductID,
			Qty:        qty,
			UnitPrice:  it.UnitPrice,
			Amount:     amount,
			CashAmount: cash,
			Type:       in.RefundType,
			Reason:     in.Reason,
			Actor:      in.Actor,
		})
		if err != nil {
			return RefundResult{}, fmt.Errorf("sales: insert refund for item %d: %w", it.ID, err)
		}
		if err := tx.AddRefundedQty(ctx, it.ID, qty); err != nil {
			return RefundResult{}, fmt.Errorf("sales: refunded qty item %d: %w", it.ID, err)
		}
		result.ProcessedItems = append(result.ProcessedItems, rf)
	}

	if sale.WalkIn() || (costDelta.IsZero() && result.CashReturned.IsZero()) {
		return result, nil
	}
	// Payment rows mirror amount_paid, so a refund that only cancels debt
	// writes none.
	delta := ledger.Delta{CustomerID: sale.CustomerID, CostDelta: costDelta, Actor: in.Actor}
	if result.CashReturned.IsPositive() {
		delta.PaidDelta = result.CashReturned.Neg()
		delta.Payment = &ledger.PaymentMeta{Method: "refund", Reference: in.Reason, SaleID: sale.ID}
	}
	res, err := ledger.Apply(ctx, tx, delta)
	if err != nil {
		return RefundResult{}, err
	}
	result.CustomerBalance = &res.NewBalance
	return result, nil
}

// refundCash settles debt before money: returned goods first cancel what
// the sale left unpaid, and only the rest comes back as cash, capped by
// what was actually paid and not yet returned.
func refundCash(sale Sale, prior RefundTotals, total decimal.Decimal) decimal.Decimal {
	debtCancelled := prior.Amount.Sub(prior.Cash)
	debtRemaining := shared.FloorZero(sale.Balance.Sub(debtCancelled))
	cashable := shared.FloorZero(total.Sub(debtRemaining))
	return decimal.Min(cashable, shared.FloorZero(sale.Paid.Sub(prior.Cash)))
}
