package pocketmoney

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
)

// TxRepository extends the sale statements with the pocket-money columns
// of the customer row.
type TxRepository interface {
	sales.TxRepository
	SetPocketMoney(ctx context.Context, customerID int64, balance decimal.Decimal) error
	SetPocketMoneyEnabled(ctx context.Context, customerID int64, enabled bool) error
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
}

// Repository persists pocket-money movements in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	customers *ledger.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, customers: ledger.NewRepository(pool)}
}

type salesTx interface{ sales.TxRepository }

type txRepository struct {
	salesTx
	tx pgx.Tx
}

// NewTxRepository binds pocket-money and sale statements to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{salesTx: sales.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetCustomer reads the customer without locking it.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (ledger.Customer, error) {
	return r.customers.GetCustomer(ctx, id)
}

// ListTransactions returns a customer's pocket-money movements, newest first.
func (r *Repository) ListTransactions(ctx context.Context, customerID int64, page shared.Page) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, kind, amount, balance_after, reason, COALESCE(sale_id, ''), actor_name, actor_role, created_at
FROM pocket_money_transactions WHERE customer_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Kind, &t.Amount, &t.BalanceAfter, &t.Reason, &t.SaleID,
			&t.Actor.Name, &t.Actor.Role, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) SetPocketMoney(ctx context.Context, customerID int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE customers SET pocket_money_balance=$2, updated_at=NOW() WHERE id=$1`, customerID, balance)
	return err
}

func (r *txRepository) SetPocketMoneyEnabled(ctx context.Context, customerID int64, enabled bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE customers SET pocket_money_enabled=$2, updated_at=NOW() WHERE id=$1`, customerID, enabled)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	var saleID any
	if t.SaleID != "" {
		saleID = t.SaleID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO pocket_money_transactions (customer_id, kind, amount, balance_after, reason, sale_id, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		t.CustomerID, string(t.Kind), t.Amount, t.BalanceAfter, t.Reason, saleID, t.Actor.Name, t.Actor.Role).Scan(&t.ID, &t.CreatedAt)
	return t, err
}
