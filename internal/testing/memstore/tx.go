package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/pocketmoney"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/supplier"
)

// tx implements every package's TxRepository over the locked state.
type tx struct {
	s *Store
}

var (
	_ ledger.TxRepository      = (*tx)(nil)
	_ stock.TxRepository       = (*tx)(nil)
	_ sales.TxRepository       = (*tx)(nil)
	_ allocation.TxRepository  = (*tx)(nil)
	_ supplier.TxRepository    = (*tx)(nil)
	_ pocketmoney.TxRepository = (*tx)(nil)
)

func (t *tx) check(method string) error {
	if err := t.s.fail[method]; err != nil {
		return fmt.Errorf("memstore %s: %w", method, err)
	}
	return nil
}

func (t *tx) now() time.Time { return t.s.now() }

// Ledger.

func (t *tx) GetCustomerForUpdate(_ context.Context, id int64) (ledger.Customer, error) {
	if err := t.check("GetCustomerForUpdate"); err != nil {
		return ledger.Customer{}, err
	}
	c, ok := t.s.st.customers[id]
	if !ok || c.Status != shared.StatusActive {
		return ledger.Customer{}, shared.NotFound("ledger", "customer", id)
	}
	return c, nil
}

func (t *tx) UpdateCustomerLedger(_ context.Context, c ledger.Customer) error {
	if err := t.check("UpdateCustomerLedger"); err != nil {
		return err
	}
	row := t.s.st.customers[c.ID]
	row.Balance, row.TotalItemsCost, row.AmountPaid = c.Balance, c.TotalItemsCost, c.AmountPaid
	row.UpdatedAt = t.now()
	t.s.st.customers[c.ID] = row
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	if err := t.check("InsertPayment"); err != nil {
		return ledger.Payment{}, err
	}
	p.ID = t.s.nextID()
	p.CreatedAt = t.now()
	t.s.st.payments = append(t.s.st.payments, p)
	return p, nil
}

// Stock.

func (t *tx) GetProductForUpdate(_ context.Context, id int64) (stock.Product, error) {
	if err := t.check("GetProductForUpdate"); err != nil {
		return stock.Product{}, err
	}
	p, ok := t.s.st.products[id]
	if !ok {
		return stock.Product{}, shared.NotFound("stock", "product", id)
	}
	return p, nil
}

func (t *tx) SetStock(_ context.Context, productID int64, qty int) error {
	if err := t.check("SetStock"); err != nil {
		return err
	}
	p := t.s.st.products[productID]
	p.StockQty = qty
	p.UpdatedAt = t.now()
	t.s.st.products[productID] = p
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m stock.Movement) (stock.Movement, error) {
	if err := t.check("InsertMovement"); err != nil {
		return stock.Movement{}, err
	}
	m.ID = t.s.nextID()
	m.CreatedAt = t.now()
	t.s.st.movements = append(t.s.st.movements, m)
	return m, nil
}

func (t *tx) InsertProduct(_ context.Context, p stock.Product) (stock.Product, error) {
	if err := t.check("InsertProduct"); err != nil {
		return stock.Product{}, err
	}
	p.ID = t.s.nextID()
	p.StockQty = 0
	p.Status = shared.StatusActive
	p.CreatedAt, p.UpdatedAt = t.now(), t.now()
	t.s.st.products[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePrices(_ context.Context, p stock.Product) error {
	if err := t.check("UpdatePrices"); err != nil {
		return err
	}
	row := t.s.st.products[p.ID]
	row.BuyPrice, row.SellPrice = p.BuyPrice, p.SellPrice
	row.UpdatedAt = t.now()
	t.s.st.products[p.ID] = row
	return nil
}

// Sales.

func (t *tx) InsertSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	if err := t.check("InsertSale"); err != nil {
		return sales.Sale{}, err
	}
	if _, dup := t.s.st.sales[sale.ID]; dup {
		return sales.Sale{}, fmt.Errorf("memstore: duplicate sale id %s", sale.ID)
	}
	sale.CreatedAt = t.now()
	sale.Items = nil
	t.s.st.sales[sale.ID] = sale
	return sale, nil
}

func (t *tx) InsertSaleItems(_ context.Context, saleID string, items []sales.SaleItem) ([]sales.SaleItem, error) {
	if err := t.check("InsertSaleItems"); err != nil {
		return nil, err
	}
	out := make([]sales.SaleItem, 0, len(items))
	for _, it := range items {
		it.ID = t.s.nextID()
		it.SaleID = saleID
		t.s.st.saleItems = append(t.s.st.saleItems, it)
		out = append(out, it)
	}
	return out, nil
}

func (t *tx) GetSaleForUpdate(_ context.Context, id string) (sales.Sale, error) {
	if err := t.check("GetSaleForUpdate"); err != nil {
		return sales.Sale{}, err
	}
	sale, ok := t.s.st.sales[id]
	if !ok {
		return sales.Sale{}, shared.NotFound("sales", "sale", id)
	}
	return sale, nil
}

func (t *tx) GetSaleItemsForUpdate(_ context.Context, saleID string) ([]sales.SaleItem, error) {
	if err := t.check("GetSaleItemsForUpdate"); err != nil {
		return nil, err
	}
	return t.s.itemsOf(saleID), nil
}

func (t *tx) AddRefundedQty(_ context.Context, saleItemID int64, qty int) error {
	if err := t.check("AddRefundedQty"); err != nil {
		return err
	}
	for i := range t.s.st.saleItems {
		if t.s.st.saleItems[i].ID == saleItemID {
			t.s.st.saleItems[i].RefundedQty += qty
			return nil
		}
	}
	return shared.NotFound("sales", "sale item", saleItemID)
}

func (t *tx) InsertRefund(_ context.Context, rf sales.Refund) (sales.Refund, error) {
	if err := t.check("InsertRefund"); err != nil {
		return sales.Refund{}, err
	}
	rf.ID = t.s.nextID()
	rf.CreatedAt = t.now()
	t.s.st.refunds = append(t.s.st.refunds, rf)
	return rf, nil
}

func (t *tx) RefundTotals(_ context.Context, saleID string) (sales.RefundTotals, error) {
	if err := t.check("RefundTotals"); err != nil {
		return sales.RefundTotals{}, err
	}
	totals := sales.RefundTotals{Amount: decimal.Zero, Cash: decimal.Zero}
	for _, rf := range t.s.st.refunds {
		if rf.SaleID == saleID {
			totals.Amount = totals.Amount.Add(rf.Amount)
			totals.Cash = totals.Cash.Add(rf.CashAmount)
		}
	}
	return totals, nil
}

// Allocations.

func (t *tx) InsertAllocation(_ context.Context, a allocation.Allocation) (allocation.Allocation, error) {
	if err := t.check("InsertAllocation"); err != nil {
		return allocation.Allocation{}, err
	}
	a.ID = t.s.nextID()
	a.CreatedAt, a.UpdatedAt = t.now(), t.now()
	t.s.st.allocations[a.ID] = a
	return a, nil
}

func (t *tx) GetAllocationForUpdate(_ context.Context, id int64) (allocation.Allocation, error) {
	if err := t.check("GetAllocationForUpdate"); err != nil {
		return allocation.Allocation{}, err
	}
	a, ok := t.s.st.allocations[id]
	if !ok {
		return allocation.Allocation{}, shared.NotFound("allocation", "allocation", id)
	}
	return a, nil
}

func (t *tx) UpdateSchedule(_ context.Context, a allocation.Allocation) error {
	if err := t.check("UpdateSchedule"); err != nil {
		return err
	}
	row := t.s.st.allocations[a.ID]
	row.LastGivenDate, row.NextDueDate = a.LastGivenDate, a.NextDueDate
	row.UpdatedAt = t.now()
	t.s.st.allocations[a.ID] = row
	return nil
}

func (t *tx) SetStatus(_ context.Context, id int64, status allocation.Status) error {
	if err := t.check("SetStatus"); err != nil {
		return err
	}
	row := t.s.st.allocations[id]
	row.Status = status
	row.UpdatedAt = t.now()
	t.s.st.allocations[id] = row
	return nil
}

func (t *tx) InsertHistory(_ context.Context, h allocation.HistoryEntry) (allocation.HistoryEntry, error) {
	if err := t.check("InsertHistory"); err != nil {
		return allocation.HistoryEntry{}, err
	}
	h.ID = t.s.nextID()
	t.s.st.history = append(t.s.st.history, h)
	return h, nil
}

// Suppliers.

func (t *tx) GetSupplierForUpdate(_ context.Context, id int64) (supplier.Supplier, error) {
	if err := t.check("GetSupplierForUpdate"); err != nil {
		return supplier.Supplier{}, err
	}
	sp, ok := t.s.st.suppliers[id]
	if !ok {
		return supplier.Supplier{}, shared.NotFound("supplier", "supplier", id)
	}
	return sp, nil
}

func (t *tx) SetSupplierBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	if err := t.check("SetSupplierBalance"); err != nil {
		return err
	}
	sp := t.s.st.suppliers[id]
	sp.Balance = balance
	sp.UpdatedAt = t.now()
	t.s.st.suppliers[id] = sp
	return nil
}

func (t *tx) InsertRestock(_ context.Context, r supplier.Restock) (supplier.Restock, error) {
	if err := t.check("InsertRestock"); err != nil {
		return supplier.Restock{}, err
	}
	r.ID = t.s.nextID()
	r.CreatedAt = t.now()
	r.Items = nil
	t.s.st.restocks[r.ID] = r
	return r, nil
}

func (t *tx) InsertRestockItems(_ context.Context, restockID int64, items []supplier.RestockItem) ([]supplier.RestockItem, error) {
	if err := t.check("InsertRestockItems"); err != nil {
		return nil, err
	}
	out := make([]supplier.RestockItem, 0, len(items))
	for _, it := range items {
		it.ID = t.s.nextID()
		it.RestockID = restockID
		t.s.st.restockItems = append(t.s.st.restockItems, it)
		out = append(out, it)
	}
	return out, nil
}

func (t *tx) MarkRestockPaid(_ context.Context, restockID int64) error {
	if err := t.check("MarkRestockPaid"); err != nil {
		return err
	}
	r, ok := t.s.st.restocks[restockID]
	if !ok {
		return nil
	}
	r.Status = supplier.RestockPaid
	t.s.st.restocks[restockID] = r
	return nil
}

func (t *tx) InsertCredit(_ context.Context, c supplier.Credit) (supplier.Credit, error) {
	if err := t.check("InsertCredit"); err != nil {
		return supplier.Credit{}, err
	}
	c.ID = t.s.nextID()
	c.CreatedAt = t.now()
	t.s.st.credits[c.ID] = c
	return c, nil
}

func (t *tx) ListUnpaidCreditsForUpdate(_ context.Context, supplierID int64) ([]supplier.Credit, error) {
	if err := t.check("ListUnpaidCreditsForUpdate"); err != nil {
		return nil, err
	}
	return t.s.creditsOf(supplierID, true), nil
}

func (t *tx) UpdateCredit(_ context.Context, c supplier.Credit) error {
	if err := t.check("UpdateCredit"); err != nil {
		return err
	}
	row := t.s.st.credits[c.ID]
	row.Amount, row.Status = c.Amount, c.Status
	t.s.st.credits[c.ID] = row
	return nil
}

func (t *tx) InsertSupplierPayment(_ context.Context, p supplier.Payment) (supplier.Payment, error) {
	if err := t.check("InsertSupplierPayment"); err != nil {
		return supplier.Payment{}, err
	}
	p.ID = t.s.nextID()
	p.CreatedAt = t.now()
	t.s.st.supplierPayments = append(t.s.st.supplierPayments, p)
	return p, nil
}

func (t *tx) InsertPaymentAllocation(_ context.Context, a supplier.PaymentAllocation) (supplier.PaymentAllocation, error) {
	if err := t.check("InsertPaymentAllocation"); err != nil {
		return supplier.PaymentAllocation{}, err
	}
	a.ID = t.s.nextID()
	t.s.st.paymentAllocations = append(t.s.st.paymentAllocations, a)
	return a, nil
}

// Pocket money.

func (t *tx) SetPocketMoney(_ context.Context, customerID int64, balance decimal.Decimal) error {
	if err := t.check("SetPocketMoney"); err != nil {
		return err
	}
	c := t.s.st.customers[customerID]
	c.PocketMoneyBalance = balance
	c.UpdatedAt = t.now()
	t.s.st.customers[customerID] = c
	return nil
}

func (t *tx) SetPocketMoneyEnabled(_ context.Context, customerID int64, enabled bool) error {
	if err := t.check("SetPocketMoneyEnabled"); err != nil {
		return err
	}
	c := t.s.st.customers[customerID]
	c.PocketMoneyEnabled = enabled
	c.UpdatedAt = t.now()
	t.s.st.customers[customerID] = c
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, tr pocketmoney.Transaction) (pocketmoney.Transaction, error) {
	if err := t.check("InsertTransaction"); err != nil {
		return pocketmoney.Transaction{}, err
	}
	tr.ID = t.s.nextID()
	tr.CreatedAt = t.now()
	t.s.st.pocket = append(t.s.st.pocket, tr)
	return tr, nil
}

// Shared readers; callers hold s.mu.

func (s *Store) itemsOf(saleID string) []sales.SaleItem {
	var out []sales.SaleItem
	for _, it := range s.st.saleItems {
		if it.SaleID == saleID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b sales.SaleItem) int { return a.LineNo - b.LineNo })
	return out
}

func (s *Store) creditsOf(supplierID int64, unpaidOnly bool) []supplier.Credit {
	out := []supplier.Credit{}
	for _, c := range s.st.credits {
		if c.SupplierID != supplierID || (unpaidOnly && c.Status != supplier.CreditUnpaid) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b supplier.Credit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}
