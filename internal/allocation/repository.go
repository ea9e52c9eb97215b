package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// TxRepository exposes allocation statements alongside the ledger and
// stock statements of the same transaction.
type TxRepository interface {
	ledger.TxRepository
	stock.TxRepository
	InsertAllocation(ctx context.Context, a Allocation) (Allocation, error)
	GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error)
	UpdateSchedule(ctx context.Context, a Allocation) error
	SetStatus(ctx context.Context, id int64, status Status) error
	InsertHistory(ctx context.Context, h HistoryEntry) (HistoryEntry, error)
}

// Repository persists allocations in PostgreSQL.
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

// NewTxRepository binds allocation, ledger and stock statements to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{ledgerTx: ledger.NewTxRepository(tx), stockTx: stock.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const allocationColumns = `id, customer_id, product_id, program, quantity, frequency, specific_days,
last_given_date, next_due_date, status, created_by, created_at, updated_at`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var (
		a    Allocation
		days []string
	)
	if err := row.Scan(&a.ID, &a.CustomerID, &a.ProductID, &a.Program, &a.Quantity, &a.Frequency, &days,
		&a.LastGivenDate, &a.NextDueDate, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Allocation{}, err
	}
	parsed, err := ParseWeekdays(days)
	if err != nil {
		return Allocation{}, fmt.Errorf("allocation %d: %w", a.ID, err)
	}
	a.SpecificDays = parsed
	return a, nil
}

// GetAllocation loads one allocation.
func (r *Repository) GetAllocation(ctx context.Context, id int64) (Allocation, error) {
	a, err := scanAllocation(r.pool.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Allocation{}, shared.NotFound("allocation", "allocation", id)
	}
	return a, err
}

// ListActive returns every active allocation.
func (r *Repository) ListActive(ctx context.Context) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE status='active' ORDER BY customer_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListHistory returns fulfilments of an allocation, newest first.
func (r *Repository) ListHistory(ctx context.Context, allocationID int64, page shared.Page) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, allocation_id, quantity_given, given_at, actor_name, actor_role
FROM allocation_history WHERE allocation_id=$1 ORDER BY given_at DESC, id DESC LIMIT $2 OFFSET $3`,
		allocationID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AllocationID, &h.QuantityGiven, &h.GivenAt, &h.Actor.Name, &h.Actor.Role); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO allocations (customer_id, product_id, program, quantity, frequency, specific_days, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		a.CustomerID, a.ProductID, string(a.Program), a.Quantity, string(a.Frequency), weekdayStrings(a.SpecificDays), string(a.Status), a.CreatedBy).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error) {
	a, err := scanAllocation(r.tx.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Allocation{}, shared.NotFound("allocation", "allocation", id)
	}
	return a, err
}

func (r *txRepository) UpdateSchedule(ctx context.Context, a Allocation) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocations SET last_given_date=$2, next_due_date=$3, updated_at=NOW() WHERE id=$1`,
		a.ID, a.LastGivenDate, a.NextDueDate)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocations SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) InsertHistory(ctx context.Context, h HistoryEntry) (HistoryEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO allocation_history (allocation_id, quantity_given, given_at, actor_name, actor_role)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, h.AllocationID, h.QuantityGiven, h.GivenAt, h.Actor.Name, h.Actor.Role).Scan(&h.ID)
	return h, err
}
