package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shopledger/shopledger/internal/allocation"
	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/stock"
)

// DueLister lists active allocations that are due at now.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]allocation.DueItem, error)
	Now() time.Time
}

// LowStockLister lists products at or below their reorder level.
type LowStockLister interface {
	ListLowStock(ctx context.Context, department string) ([]stock.Product, error)
}

// KeyPurger removes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DueScanJob refreshes the cached active-allocation list and reports how
// many allocations are waiting. It never fulfils anything.
type DueScanJob struct {
	Lister  DueLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDueScanJob initialises the due-allocation scan handler.
func NewDueScanJob(lister DueLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *DueScanJob {
	return &DueScanJob{Lister: lister, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *DueScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Lister == nil {
		return errors.New("due scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAllocationsDueScan)
	defer func() { err = tracker.End(err) }()

	items, err := j.Lister.ListDue(ctx, j.Lister.Now())
	if err != nil {
		logger(j.Logger).Error("due scan failed", slog.Any("error", err))
		return err
	}
	counts := map[allocation.DueState]int{}
	for _, it := range items {
		counts[it.State]++
		if it.State == allocation.StateOverdue {
			logger(j.Logger).Warn("allocation overdue",
				slog.Int64("allocation_id", it.Allocation.ID),
				slog.Int64("customer_id", it.Allocation.CustomerID),
				slog.Int64("product_id", it.Allocation.ProductID))
		}
	}
	j.Metrics.SetFindings("allocations_due", counts[allocation.StateDue])
	j.Metrics.SetFindings("allocations_overdue", counts[allocation.StateOverdue])
	j.Metrics.SetFindings("allocations_never_given", counts[allocation.StateNeverGiven])
	logger(j.Logger).Info("completed due scan",
		slog.Int("due", counts[allocation.StateDue]),
		slog.Int("overdue", counts[allocation.StateOverdue]),
		slog.Int("never_given", counts[allocation.StateNeverGiven]))
	return nil
}

// LowStockScanJob refreshes the cached low-stock listing.
type LowStockScanJob struct {
	Lister  LowStockLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(lister LowStockLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Lister: lister, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Lister == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	products, err := j.Lister.ListLowStock(ctx, payload.Department)
	if err != nil {
		logger(j.Logger).Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	out := 0
	for _, p := range products {
		if p.StockQty == 0 {
			out++
		}
	}
	j.Metrics.SetFindings("products_low_stock", len(products))
	j.Metrics.SetFindings("products_out_of_stock", out)
	logger(j.Logger).Info("completed low stock scan",
		slog.String("department", payload.Department),
		slog.Int("low", len(products)),
		slog.Int("out", out))
	return nil
}

// CleanupJob purges stale idempotency keys.
type CleanupJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCleanupJob initialises the cleanup handler. Payload retention wins
// over the default when set.
func NewCleanupJob(purger KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes the purge.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if len(t.Payload()) > 0 {
		var payload CleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention > 0 {
			retention = payload.Retention
		}
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Purger.Cleanup(ctx, retention)
	if err != nil {
		logger(j.Logger).Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	logger(j.Logger).Info("purged idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
