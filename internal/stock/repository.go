package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
)

// TxRepository exposes the product rows a stock mutation touches.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	SetStock(ctx context.Context, productID int64, qty int) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdatePrices(ctx context.Context, p Product) error
}

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the stock statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const productColumns = `id, name, department, stock_qty, reorder_level, buy_price, sell_price, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Department, &p.StockQty, &p.ReorderLevel, &p.BuyPrice, &p.SellPrice, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProduct loads a product without locking.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound("stock", "product", id)
	}
	return p, err
}

// Archive flips an active product to archived.
func (r *Repository) Archive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET status='archived', updated_at=NOW() WHERE id=$1 AND status='active'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("stock", "product", id)
	}
	return nil
}

// ListLowStock returns active products at or below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context, department string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE status='active' AND stock_qty <= reorder_level AND ($1 = '' OR lower(department) = lower($1))
ORDER BY department, name`, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListMovements returns a product's stock card, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, page shared.Page) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, delta, balance_after, reason, ref, created_at
FROM stock_movements WHERE product_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`, productID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.BalanceAfter, &m.Reason, &m.Ref, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound("stock", "product", id)
	}
	return p, err
}

func (r *txRepository) SetStock(ctx context.Context, productID int64, qty int) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock_qty=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, delta, balance_after, reason, ref)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, m.ProductID, m.Delta, m.BalanceAfter, string(m.Reason), m.Ref).Scan(&m.ID, &m.CreatedAt)
	return m, err
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `INSERT INTO products (name, department, stock_qty, reorder_level, buy_price, sell_price, status)
VALUES ($1,$2,0,$3,$4,$5,'active') RETURNING `+productColumns, p.Name, p.Department, p.ReorderLevel, p.BuyPrice, p.SellPrice))
}

func (r *txRepository) UpdatePrices(ctx context.Context, p Product) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET buy_price=$2, sell_price=$3, updated_at=NOW() WHERE id=$1`, p.ID, p.BuyPrice, p.SellPrice)
	return err
}
