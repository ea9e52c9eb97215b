package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// TxRepository composes the ledger and stock statements with the sale
// tables, all bound to one transaction.
type TxRepository interface {
	ledger.TxRepository
	stock.TxRepository
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertSaleItems(ctx context.Context, saleID string, items []SaleItem) ([]SaleItem, error)
	GetSaleForUpdate(ctx context.Context, id string) (Sale, error)
	GetSaleItemsForUpdate(ctx context.Context, saleID string) ([]SaleItem, error)
	AddRefundedQty(ctx context.Context, saleItemID int64, qty int) error
	InsertRefund(ctx context.Context, r Refund) (Refund, error)
	RefundTotals(ctx context.Context, saleID string) (RefundTotals, error)
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type (
	ledgerTx interface{ ledger.TxRepository }
	stockTx  interface{ stock.TxRepository }
)

type txRepository struct {
	ledgerTx
	stockTx
	tx pgx.Tx
}

// NewTxRepository binds sale, ledger and stock statements to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		ledgerTx: ledger.NewTxRepository(tx),
		stockTx:  stock.NewTxRepository(tx),
		tx:       tx,
	}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const saleColumns = `id, COALESCE(customer_id, 0), department, payment_mode, transaction_type, total, paid, balance,
change_given, COALESCE(exchange_of, ''), actor_name, actor_role, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.CustomerID, &s.Department, &s.PaymentMode, &s.TransactionType, &s.Total, &s.Paid, &s.Balance,
		&s.Change, &s.ExchangeOf, &s.Actor.Name, &s.Actor.Role, &s.CreatedAt)
	return s, err
}

const saleItemColumns = `id, sale_id, line_no, product_id, qty, unit_price, cost_price, refunded_qty`

func collectItems(rows pgx.Rows) ([]SaleItem, error) {
	defer rows.Close()
	items := []SaleItem{}
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.LineNo, &it.ProductID, &it.Qty, &it.UnitPrice, &it.CostPrice, &it.RefundedQty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetSale loads a sale with its items.
func (r *Repository) GetSale(ctx context.Context, id string) (Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sales", "sale", id)
	}
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Sale{}, err
	}
	s.Items, err = collectItems(rows)
	return s, err
}

// ListRefunds returns the refund lines recorded against a sale.
func (r *Repository) ListRefunds(ctx context.Context, saleID string) ([]Refund, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, sale_item_id, product_id, qty, unit_price, amount, cash_amount, refund_type, reason, actor_name, actor_role, created_at
FROM refunds WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refunds := []Refund{}
	for rows.Next() {
		var rf Refund
		if err := rows.Scan(&rf.ID, &rf.SaleID, &rf.SaleItemID, &rf.ProductID, &rf.Qty, &rf.UnitPrice, &rf.Amount, &rf.CashAmount, &rf.Type, &rf.Reason, &rf.Actor.Name, &rf.Actor.Role, &rf.CreatedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (id, customer_id, department, payment_mode, transaction_type, total, paid, balance, change_given, exchange_of, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING created_at`,
		s.ID, nullInt(s.CustomerID), s.Department, string(s.PaymentMode), string(s.TransactionType), s.Total, s.Paid, s.Balance, s.Change,
		nullString(s.ExchangeOf), s.Actor.Name, s.Actor.Role).Scan(&s.CreatedAt)
	return s, err
}

func (r *txRepository) InsertSaleItems(ctx context.Context, saleID string, items []SaleItem) ([]SaleItem, error) {
	out := make([]SaleItem, 0, len(items))
	for _, it := range items {
		it.SaleID = saleID
		if err := r.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, line_no, product_id, qty, unit_price, cost_price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, saleID, it.LineNo, it.ProductID, it.Qty, it.UnitPrice, it.CostPrice).Scan(&it.ID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id string) (Sale, error) {
	s, err := scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sales", "sale", id)
	}
	return s, err
}

func (r *txRepository) GetSaleItemsForUpdate(ctx context.Context, saleID string) ([]SaleItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id=$1 ORDER BY line_no FOR UPDATE`, saleID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *txRepository) AddRefundedQty(ctx context.Context, saleItemID int64, qty int) error {
	_, err := r.tx.Exec(ctx, `UPDATE sale_items SET refunded_qty = refunded_qty + $2 WHERE id=$1`, saleItemID, qty)
	return err
}

func (r *txRepository) InsertRefund(ctx context.Context, rf Refund) (Refund, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO refunds (sale_id, sale_item_id, product_id, qty, unit_price, amount, cash_amount, refund_type, reason, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
		rf.SaleID, rf.SaleItemID, rf.ProductID, rf.Qty, rf.UnitPrice, rf.Amount, rf.CashAmount, string(rf.Type), rf.Reason, rf.Actor.Name, rf.Actor.Role).
		Scan(&rf.ID, &rf.CreatedAt)
	return rf, err
}

func (r *txRepository) RefundTotals(ctx context.Context, saleID string) (RefundTotals, error) {
	var totals RefundTotals
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(cash_amount), 0) FROM refunds WHERE sale_id=$1`, saleID).
		Scan(&totals.Amount, &totals.Cash)
	return totals, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
