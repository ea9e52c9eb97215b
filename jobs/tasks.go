package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskAllocationsDueScan = "allocations:due_scan"
	TaskLowStockScan       = "stock:low_stock_scan"
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LowStockScanPayload narrows a low-stock scan to one department. Empty
// scans every department.
type LowStockScanPayload struct {
	Department string `json:"department,omitempty"`
}

// CleanupPayload configures how old idempotency keys must be before they
// are purged.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAllocationsDueScanTask builds the due-allocation scan task.
func NewAllocationsDueScanTask() *asynq.Task {
	return asynq.NewTask(TaskAllocationsDueScan, nil)
}

// NewLowStockScanTask builds a low-stock scan task.
func NewLowStockScanTask(department string) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{Department: department})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// NewIdempotencyCleanupTask builds the idempotency purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
