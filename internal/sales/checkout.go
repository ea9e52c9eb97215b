package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// NewSaleID returns SL-YYYYMMDD-XXXXXXXX with a random suffix.
func NewSaleID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("SL-%s-%s", at.UTC().Format("20060102"), suffix)
}

// PrepareLines locks the requested products in ascending id order and
// prices each line. Nothing is written: any inactive product, department
// mismatch or shortage aborts before stock moves.
func PrepareLines(ctx context.Context, tx stock.TxRepository, department string, items []ItemInput) ([]SaleItem, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, shared.Invalid("sales", "at least one item required")
	}
	ids := make([]int64, 0, len(items))
	demand := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, decimal.Zero, shared.Invalid("sales", "quantity for product %d must be positive", it.ProductID)
		}
		if it.UnitPrice != nil {
			if err := shared.CheckAmount("sales", fmt.Sprintf("unit price for product %d", it.ProductID), *it.UnitPrice); err != nil {
				return nil, decimal.Zero, err
			}
		}
		ids = append(ids, it.ProductID)
		demand[it.ProductID] += it.Qty
	}
	locked, err := stock.LockProducts(ctx, tx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for _, it := range items {
		id, qty := it.ProductID, demand[it.ProductID]
		p := locked[id]
		if p.Status != shared.StatusActive {
			return nil, decimal.Zero, shared.E(shared.KindInvalidState, "sales", "product %d is archived", id)
		}
		if !stock.SameDepartment(p.Department, department) {
			return nil, decimal.Zero, shared.E(shared.KindInvalidState, "sales",
				"product %s belongs to %s, not %s", p.Name, p.Department, stock.NormalizeDepartment(department))
		}
		if p.StockQty < qty {
			return nil, decimal.Zero, &stock.ShortageError{ProductID: id, Name: p.Name, Available: p.StockQty, Requested: qty}
		}
	}

	lines := make([]SaleItem, 0, len(items))
	subtotal := decimal.Zero
	for i, it := range items {
		p := locked[it.ProductID]
		unit := p.SellPrice
		if it.UnitPrice != nil {
			unit = *it.UnitPrice
		}
		lines = append(lines, SaleItem{
			LineNo:    i + 1,
			ProductID: p.ID,
			Qty:       it.Qty,
			UnitPrice: unit,
			CostPrice: p.BuyPrice,
		})
		subtotal = subtotal.Add(shared.LineTotal(unit, it.Qty))
	}
	return lines, subtotal, nil
}

// WriteSale decrements stock for lines and persists the sale with its
// items. The products must already be locked by PrepareLines.
func WriteSale(ctx context.Context, tx TxRepository, sale Sale, lines []SaleItem, reason stock.Reason) (Sale, error) {
	changes := make([]stock.Change, 0, len(lines))
	for _, l := range lines {
		changes = append(changes, stock.Change{ProductID: l.ProductID, Delta: -l.Qty, Reason: reason, Ref: sale.ID})
	}
	if _, err := stock.AdjustMany(ctx, tx, changes); err != nil {
		return Sale{}, err
	}
	saved, err := tx.InsertSale(ctx, sale)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale %s: %w", sale.ID, err)
	}
	items, err := tx.InsertSaleItems(ctx, saved.ID, lines)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert items for %s: %w", sale.ID, err)
	}
	saved.Items = items
	return saved, nil
}
