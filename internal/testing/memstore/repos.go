package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/pocketmoney"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/supplier"
)

// newestFirst reverses insert order and applies page.
func newestFirst[T any](rows []T, page shared.Page) []T {
	out := slices.Clone(rows)
	slices.Reverse(out)
	if page.Offset >= len(out) {
		return []T{}
	}
	out = out[page.Offset:]
	if page.Limit > 0 && page.Limit < len(out) {
		out = out[:page.Limit]
	}
	return out
}

// LedgerRepo adapts Store to ledger.RepositoryPort.
type LedgerRepo struct{ s *Store }

// Ledger returns the customer ledger view.
func (s *Store) Ledger() LedgerRepo { return LedgerRepo{s: s} }

// WithTx runs fn in one transaction.
func (r LedgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// CreateCustomer inserts an active customer with an empty ledger.
func (r LedgerRepo) CreateCustomer(_ context.Context, c ledger.Customer) (ledger.Customer, error) {
	c.Balance, c.TotalItemsCost, c.AmountPaid, c.PocketMoneyBalance = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	c.Status = ""
	return r.s.AddCustomer(c), nil
}

// GetCustomer loads a customer.
func (r LedgerRepo) GetCustomer(_ context.Context, id int64) (ledger.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.customers[id]
	if !ok {
		return ledger.Customer{}, shared.NotFound("ledger", "customer", id)
	}
	return c, nil
}

// ListPayments returns a customer's payments, newest first.
func (r LedgerRepo) ListPayments(_ context.Context, customerID int64, page shared.Page) ([]ledger.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []ledger.Payment
	for _, p := range r.s.st.payments {
		if p.CustomerID == customerID {
			rows = append(rows, p)
		}
	}
	return newestFirst(rows, page), nil
}

// StockRepo adapts Store to stock.RepositoryPort.
type StockRepo struct{ s *Store }

// Stock returns the product view.
func (s *Store) Stock() StockRepo { return StockRepo{s: s} }

// WithTx runs fn in one transaction.
func (r StockRepo) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// GetProduct loads a product.
func (r StockRepo) GetProduct(_ context.Context, id int64) (stock.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return stock.Product{}, shared.NotFound("stock", "product", id)
	}
	return p, nil
}

// Archive flips an active product to archived.
func (r StockRepo) Archive(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok || p.Status != shared.StatusActive {
		return shared.NotFound("stock", "product", id)
	}
	p.Status = shared.StatusArchived
	r.s.st.products[id] = p
	return nil
}

// ListLowStock returns active products at or below their reorder level.
func (r StockRepo) ListLowStock(_ context.Context, department string) ([]stock.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []stock.Product{}
	for _, p := range r.s.st.products {
		if p.Status != shared.StatusActive || !p.BelowReorder() {
			continue
		}
		if department != "" && !strings.EqualFold(p.Department, department) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b stock.Product) int {
		if c := strings.Compare(a.Department, b.Department); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// ListMovements returns a product's stock card, newest first.
func (r StockRepo) ListMovements(_ context.Context, productID int64, page shared.Page) ([]stock.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []stock.Movement
	for _, m := range r.s.st.movements {
		if m.ProductID == productID {
			rows = append(rows, m)
		}
	}
	return newestFirst(rows, page), nil
}

// SalesRepo adapts Store to sales.RepositoryPort.
type SalesRepo struct{ s *Store }

// Sales returns the sale view.
func (s *Store) Sales() SalesRepo { return SalesRepo{s: s} }

// WithTx runs fn in one transaction.
func (r SalesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// GetSale loads a sale with its items.
func (r SalesRepo) GetSale(_ context.Context, id string) (sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.st.sales[id]
	if !ok {
		return sales.Sale{}, shared.NotFound("sales", "sale", id)
	}
	sale.Items = r.s.itemsOf(id)
	return sale, nil
}

// ListRefunds returns a sale's refund lines in insert order.
func (r SalesRepo) ListRefunds(_ context.Context, saleID string) ([]sales.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []sales.Refund{}
	for _, rf := range r.s.st.refunds {
		if rf.SaleID == saleID {
			out = append(out, rf)
		}
	}
	return out, nil
}

// AllocationRepo adapts Store to allocation.RepositoryPort.
type AllocationRepo struct{ s *Store }

// Allocations returns the allocation view.
func (s *Store) Allocations() AllocationRepo { return AllocationRepo{s: s} }

// WithTx runs fn in one transaction.
func (r AllocationRepo) WithTx(ctx context.Context, fn func(context.Context, allocation.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// GetAllocation loads one allocation.
func (r AllocationRepo) GetAllocation(_ context.Context, id int64) (allocation.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.allocations[id]
	if !ok {
		return allocation.Allocation{}, shared.NotFound("allocation", "allocation", id)
	}
	return a, nil
}

// ListActive returns active allocations ordered by customer and id.
func (r AllocationRepo) ListActive(_ context.Context) ([]allocation.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []allocation.Allocation{}
	for _, a := range r.s.st.allocations {
		if a.Status == allocation.StatusActive {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b allocation.Allocation) int {
		if a.CustomerID != b.CustomerID {
			return int(a.CustomerID - b.CustomerID)
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

// ListHistory returns fulfilments of an allocation, newest first.
func (r AllocationRepo) ListHistory(_ context.Context, allocationID int64, page shared.Page) ([]allocation.HistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []allocation.HistoryEntry
	for _, h := range r.s.st.history {
		if h.AllocationID == allocationID {
			rows = append(rows, h)
		}
	}
	return newestFirst(rows, page), nil
}

// SupplierRepo adapts Store to supplier.RepositoryPort.
type SupplierRepo struct{ s *Store }

// Suppliers returns the supplier view.
func (s *Store) Suppliers() SupplierRepo { return SupplierRepo{s: s} }

// WithTx runs fn in one transaction.
func (r SupplierRepo) WithTx(ctx context.Context, fn func(context.Context, supplier.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// CreateSupplier inserts a supplier with a zero balance.
func (r SupplierRepo) CreateSupplier(_ context.Context, sp supplier.Supplier) (supplier.Supplier, error) {
	sp.Balance = decimal.Zero
	return r.s.AddSupplier(sp), nil
}

// GetSupplier loads a supplier.
func (r SupplierRepo) GetSupplier(_ context.Context, id int64) (supplier.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sp, ok := r.s.st.suppliers[id]
	if !ok {
		return supplier.Supplier{}, shared.NotFound("supplier", "supplier", id)
	}
	return sp, nil
}

// ListCredits returns a supplier's credits, oldest first.
func (r SupplierRepo) ListCredits(_ context.Context, supplierID int64, unpaidOnly bool) ([]supplier.Credit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.creditsOf(supplierID, unpaidOnly), nil
}

// PocketMoneyRepo adapts Store to pocketmoney.RepositoryPort.
type PocketMoneyRepo struct{ s *Store }

// PocketMoney returns the pocket-money view.
func (s *Store) PocketMoney() PocketMoneyRepo { return PocketMoneyRepo{s: s} }

// WithTx runs fn in one transaction.
func (r PocketMoneyRepo) WithTx(ctx context.Context, fn func(context.Context, pocketmoney.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// GetCustomer loads a customer.
func (r PocketMoneyRepo) GetCustomer(ctx context.Context, id int64) (ledger.Customer, error) {
	return r.s.Ledger().GetCustomer(ctx, id)
}

// ListTransactions returns a customer's pocket-money movements, newest first.
func (r PocketMoneyRepo) ListTransactions(_ context.Context, customerID int64, page shared.Page) ([]pocketmoney.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []pocketmoney.Transaction
	for _, t := range r.s.st.pocket {
		if t.CustomerID == customerID {
			rows = append(rows, t)
		}
	}
	return newestFirst(rows, page), nil
}
