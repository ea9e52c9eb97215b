package supplier

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// TxRepository exposes supplier statements alongside the stock
// statements of the same transaction.
type TxRepository interface {
	stock.TxRepository
	GetSupplierForUpdate(ctx context.Context, id int64) (Supplier, error)
	SetSupplierBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertRestock(ctx context.Context, r Restock) (Restock, error)
	InsertRestockItems(ctx context.Context, restockID int64, items []RestockItem) ([]RestockItem, error)
	MarkRestockPaid(ctx context.Context, restockID int64) error
	InsertCredit(ctx context.Context, c Credit) (Credit, error)
	ListUnpaidCreditsForUpdate(ctx context.Context, supplierID int64) ([]Credit, error)
	UpdateCredit(ctx context.Context, c Credit) error
	InsertSupplierPayment(ctx context.Context, p Payment) (Payment, error)
	InsertPaymentAllocation(ctx context.Context, a PaymentAllocation) (PaymentAllocation, error)
}

// Repository persists suppliers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type stockTx interface{ stock.TxRepository }

type txRepository struct {
	stockTx
	tx pgx.Tx
}

// NewTxRepository binds supplier and stock statements to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{stockTx: stock.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const supplierColumns = `id, name, contact, balance, created_at, updated_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Contact, &s.Balance, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const creditColumns = `id, supplier_id, restock_id, amount, original_amount, due_date, status, created_at`

func collectCredits(rows pgx.Rows) ([]Credit, error) {
	defer rows.Close()
	out := []Credit{}
	for rows.Next() {
		var c Credit
		if err := rows.Scan(&c.ID, &c.SupplierID, &c.RestockID, &c.Amount, &c.OriginalAmount, &c.DueDate, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateSupplier inserts a supplier with a zero balance.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	return scanSupplier(r.pool.QueryRow(ctx, `INSERT INTO suppliers (name, contact) VALUES ($1, $2) RETURNING `+supplierColumns,
		s.Name, s.Contact))
}

// GetSupplier loads a supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.NotFound("supplier", "supplier", id)
	}
	return s, err
}

// ListCredits returns a supplier's credits, oldest first.
func (r *Repository) ListCredits(ctx context.Context, supplierID int64, unpaidOnly bool) ([]Credit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+creditColumns+` FROM supplier_credits
WHERE supplier_id=$1 AND (NOT $2 OR status='unpaid') ORDER BY created_at, id`, supplierID, unpaidOnly)
	if err != nil {
		return nil, err
	}
	return collectCredits(rows)
}

func (r *txRepository) GetSupplierForUpdate(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.NotFound("supplier", "supplier", id)
	}
	return s, err
}

func (r *txRepository) SetSupplierBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE suppliers SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	return err
}

func (r *txRepository) InsertRestock(ctx context.Context, rs Restock) (Restock, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO restocks (supplier_id, total_cost, misc_expenses, status, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		rs.SupplierID, rs.TotalCost, rs.MiscExpenses, string(rs.Status), rs.Actor.Name, rs.Actor.Role).Scan(&rs.ID, &rs.CreatedAt)
	return rs, err
}

func (r *txRepository) InsertRestockItems(ctx context.Context, restockID int64, items []RestockItem) ([]RestockItem, error) {
	out := make([]RestockItem, 0, len(items))
	for _, it := range items {
		it.RestockID = restockID
		if err := r.tx.QueryRow(ctx, `INSERT INTO restock_items (restock_id, product_id, qty, buy_price, sell_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, restockID, it.ProductID, it.Qty, it.BuyPrice, it.SellPrice).Scan(&it.ID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *txRepository) MarkRestockPaid(ctx context.Context, restockID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE restocks SET status='paid' WHERE id=$1`, restockID)
	return err
}

func (r *txRepository) InsertCredit(ctx context.Context, c Credit) (Credit, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO supplier_credits (supplier_id, restock_id, amount, original_amount, due_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		c.SupplierID, c.RestockID, c.Amount, c.OriginalAmount, c.DueDate, string(c.Status)).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (r *txRepository) ListUnpaidCreditsForUpdate(ctx context.Context, supplierID int64) ([]Credit, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+creditColumns+` FROM supplier_credits
WHERE supplier_id=$1 AND status='unpaid' ORDER BY created_at, id FOR UPDATE`, supplierID)
	if err != nil {
		return nil, err
	}
	return collectCredits(rows)
}

func (r *txRepository) UpdateCredit(ctx context.Context, c Credit) error {
	_, err := r.tx.Exec(ctx, `UPDATE supplier_credits SET amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		c.ID, c.Amount, string(c.Status))
	return err
}

func (r *txRepository) InsertSupplierPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO supplier_payments (supplier_id, amount, method, note, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		p.SupplierID, p.Amount, p.Method, p.Note, p.Actor.Name, p.Actor.Role).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *txRepository) InsertPaymentAllocation(ctx context.Context, a PaymentAllocation) (PaymentAllocation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO supplier_payment_allocations (supplier_payment_id, supplier_credit_id, amount)
VALUES ($1,$2,$3) RETURNING id`, a.PaymentID, a.CreditID, a.Amount).Scan(&a.ID)
	return a, err
}
