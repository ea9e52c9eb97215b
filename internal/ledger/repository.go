package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
)

// TxRepository exposes the customer rows a ledger mutation touches.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	UpdateCustomerLedger(ctx context.Context, c Customer) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
}

// Repository persists customers and payments in PostgreSQL.
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

// NewTxRepository binds the ledger statements to an open transaction so
// other processors can compose them with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const customerColumns = `id, name, guardian_name, guardian_phone, balance, total_items_cost, amount_paid,
pocket_money_balance, pocket_money_enabled, program_membership, boarding_status, status, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.GuardianName, &c.GuardianPhone, &c.Balance, &c.TotalItemsCost, &c.AmountPaid,
		&c.PocketMoneyBalance, &c.PocketMoneyEnabled, &c.Program, &c.Boarding, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCustomer inserts a customer with an empty ledger.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO customers (name, guardian_name, guardian_phone, pocket_money_enabled, program_membership, boarding_status, status)
VALUES ($1,$2,$3,$4,$5,$6,'active') RETURNING `+customerColumns,
		c.Name, c.GuardianName, c.GuardianPhone, c.PocketMoneyEnabled, string(c.Program), string(c.Boarding))
	return scanCustomer(row)
}

// GetCustomer loads a customer without locking.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NotFound("ledger", "customer", id)
	}
	return c, err
}

// ListPayments returns a customer's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, customerID int64, page shared.Page) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, COALESCE(sale_id, ''), amount, method, reference, actor_name, actor_role, created_at
FROM payments WHERE customer_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.SaleID, &p.Amount, &p.Method, &p.Reference, &p.Actor.Name, &p.Actor.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *txRepository) GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1 AND status='active' FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NotFound("ledger", "customer", id)
	}
	return c, err
}

func (r *txRepository) UpdateCustomerLedger(ctx context.Context, c Customer) error {
	_, err := r.tx.Exec(ctx, `UPDATE customers SET balance=$2, total_items_cost=$3, amount_paid=$4, updated_at=NOW() WHERE id=$1`,
		c.ID, c.Balance, c.TotalItemsCost, c.AmountPaid)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (customer_id, sale_id, amount, method, reference, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		p.CustomerID, nullString(p.SaleID), p.Amount, p.Method, p.Reference, p.Actor.Name, p.Actor.Role).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
