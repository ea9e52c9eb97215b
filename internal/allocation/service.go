package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// RepositoryPort abstracts repository usage for the scheduler.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAllocation(ctx context.Context, id int64) (Allocation, error)
	ListActive(ctx context.Context) ([]Allocation, error)
	ListHistory(ctx context.Context, allocationID int64, page shared.Page) ([]HistoryEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Scheduler creates and fulfils recurring allocations.
type Scheduler struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    shared.ReadCache
	logger   *slog.Logger
	validate *shared.Validator
	loc      *time.Location
	now      func() time.Time
}

// NewScheduler builds Scheduler. loc decides calendar days for
// specific-day allocations.
func NewScheduler(repo RepositoryPort, audit AuditPort, logger *slog.Logger, loc *time.Location) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		repo:     repo,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
		loc:      loc,
		now:      time.Now,
	}
}

// WithCache caches the active allocation list and bumps it on writes.
func (s *Scheduler) WithCache(c shared.ReadCache) *Scheduler {
	s.cache = c
	return s
}

// WithClock replaces the clock used for fulfilment and due checks.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// CreateAllocation schedules a grant for a program member.
func (s *Scheduler) CreateAllocation(ctx context.Context, in CreateInput) (Allocation, error) {
	if err := s.validate.Struct("allocation", in); err != nil {
		return Allocation{}, err
	}
	if !in.Actor.Valid() {
		return Allocation{}, shared.Invalid("allocation", "actor name and role required")
	}
	if !in.Frequency.Valid() {
		return Allocation{}, shared.Invalid("allocation", "unknown frequency %q", in.Frequency)
	}
	if in.Program != ledger.ProgramA && in.Program != ledger.ProgramB {
		return Allocation{}, shared.E(shared.KindInvalidState, "allocation", "invalid program type %q", in.Program)
	}
	days, err := ParseWeekdays(in.SpecificDays)
	if err != nil {
		return Allocation{}, err
	}
	if in.Frequency == FrequencySpecificDays && len(days) == 0 {
		return Allocation{}, shared.Invalid("allocation", "specific_days frequency needs at least one weekday")
	}
	if in.Frequency != FrequencySpecificDays {
		days = nil
	}

	var created Allocation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := stock.LockProducts(ctx, tx, []int64{in.ProductID})
		if err != nil {
			return err
		}
		if locked[in.ProductID].Status != shared.StatusActive {
			return shared.E(shared.KindInvalidState, "allocation", "product %d is archived", in.ProductID)
		}
		customer, err := tx.GetCustomerForUpdate(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if customer.Program != in.Program {
			return shared.E(shared.KindInvalidState, "allocation",
				"customer %d belongs to program %s, not %s", customer.ID, customer.Program, in.Program)
		}
		created, err = tx.InsertAllocation(ctx, Allocation{
			CustomerID:   in.CustomerID,
			ProductID:    in.ProductID,
			Program:      in.Program,
			Quantity:     in.Quantity,
			Frequency:    in.Frequency,
			SpecificDays: days,
			Status:       StatusActive,
			CreatedBy:    in.Actor.Name,
		})
		if err != nil {
			return fmt.Errorf("allocation: insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}
	s.logger.Info("allocation created",
		slog.Int64("allocation_id", created.ID),
		slog.Int64("customer_id", created.CustomerID),
		slog.String("frequency", string(created.Frequency)))
	s.record(ctx, in.Actor, "allocation:created", created.ID, map[string]any{
		"customer_id": created.CustomerID,
		"product_id":  created.ProductID,
		"frequency":   string(created.Frequency),
		"quantity":    created.Quantity,
	})
	s.bump(ctx)
	return created, nil
}

// FulfilAllocation hands out one due allocation: the allocation row and
// then its product are locked, stock is decremented and the schedule
// advances. An allocation that is not due fails with KindInvalidState
// unless in.Force is set.
func (s *Scheduler) FulfilAllocation(ctx context.Context, in FulfilInput) (FulfilResult, error) {
	if err := s.validate.Struct("allocation", in); err != nil {
		return FulfilResult{}, err
	}
	if !in.Actor.Valid() {
		return FulfilResult{}, shared.Invalid("allocation", "actor name and role required")
	}
	now := s.now().UTC()
	var result FulfilResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAllocationForUpdate(ctx, in.AllocationID)
		if err != nil {
			return err
		}
		if a.Status != StatusActive {
			return shared.E(shared.KindInvalidState, "allocation", "allocation %d is %s", a.ID, a.Status)
		}
		if state := Evaluate(a, now, s.loc); !state.Due() && !in.Force {
			next := NextDueDate(a.Frequency, a.SpecificDays, a.LastGivenDate.In(s.loc))
			return shared.E(shared.KindInvalidState, "allocation",
				"allocation %d is not due until %s", a.ID, next.Format("2006-01-02"))
		}
		product, err := stock.Adjust(ctx, tx, stock.Change{
			ProductID: a.ProductID,
			Delta:     -a.Quantity,
			Reason:    stock.ReasonAllocation,
			Ref:       "allocation:" + strconv.FormatInt(a.ID, 10),
		})
		if err != nil {
			return err
		}
		next := NextDueDate(a.Frequency, a.SpecificDays, now.In(s.loc)).UTC()
		a.LastGivenDate = &now
		a.NextDueDate = &next
		if err := tx.UpdateSchedule(ctx, a); err != nil {
			return fmt.Errorf("allocation: update schedule %d: %w", a.ID, err)
		}
		entry, err := tx.InsertHistory(ctx, HistoryEntry{
			AllocationID:  a.ID,
			QuantityGiven: a.Quantity,
			GivenAt:       now,
			Actor:         in.Actor,
		})
		if err != nil {
			return fmt.Errorf("allocation: history %d: %w", a.ID, err)
		}
		result = FulfilResult{Allocation: a, History: entry, StockQty: product.StockQty}
		return nil
	})
	if err != nil {
		return FulfilResult{}, err
	}
	s.logger.Info("allocation fulfilled",
		slog.Int64("allocation_id", result.Allocation.ID),
		slog.Int("quantity", result.History.QuantityGiven),
		slog.Time("next_due_date", *result.Allocation.NextDueDate),
		slog.Bool("forced", in.Force))
	s.record(ctx, in.Actor, "allocation:fulfilled", result.Allocation.ID, map[string]any{
		"quantity": result.History.QuantityGiven,
		"forced":   in.Force,
	})
	s.bump(ctx)
	return result, nil
}

// CancelAllocation stops an allocation from falling due again.
func (s *Scheduler) CancelAllocation(ctx context.Context, id int64, actor shared.Actor) error {
	if id <= 0 {
		return shared.Invalid("allocation", "allocation id required")
	}
	if !actor.Valid() {
		return shared.Invalid("allocation", "actor name and role required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCancelled {
			return shared.E(shared.KindInvalidState, "allocation", "allocation %d already cancelled", id)
		}
		return tx.SetStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "allocation:cancelled", id, nil)
	s.bump(ctx)
	return nil
}

// GetAllocation returns one allocation with its current state.
func (s *Scheduler) GetAllocation(ctx context.Context, id int64) (DueItem, error) {
	if id <= 0 {
		return DueItem{}, shared.Invalid("allocation", "allocation id required")
	}
	a, err := s.repo.GetAllocation(ctx, id)
	if err != nil {
		return DueItem{}, err
	}
	return DueItem{Allocation: a, State: Evaluate(a, s.now(), s.loc)}, nil
}

// ListDue returns active allocations that may be handed out at now.
func (s *Scheduler) ListDue(ctx context.Context, now time.Time) ([]DueItem, error) {
	active, err := s.listActive(ctx)
	if err != nil {
		return nil, err
	}
	due := []DueItem{}
	for _, a := range active {
		if state := Evaluate(a, now, s.loc); state.Due() {
			due = append(due, DueItem{Allocation: a, State: state})
		}
	}
	return due, nil
}

// History lists fulfilments of an allocation.
func (s *Scheduler) History(ctx context.Context, id int64, page shared.Page) ([]HistoryEntry, error) {
	if id <= 0 {
		return nil, shared.Invalid("allocation", "allocation id required")
	}
	return s.repo.ListHistory(ctx, id, page)
}

// Now reports the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

func (s *Scheduler) listActive(ctx context.Context) ([]Allocation, error) {
	if s.cache == nil {
		return s.repo.ListActive(ctx)
	}
	key, err := s.cache.Key(ctx, shared.ScopeAllocations, "active")
	if err != nil {
		return nil, err
	}
	var active []Allocation
	err = s.cache.FetchJSON(ctx, key, &active, func(ctx context.Context) (any, error) {
		return s.repo.ListActive(ctx)
	})
	return active, err
}

func (s *Scheduler) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, shared.ScopeAllocations); err != nil {
		s.logger.Warn("bump read cache", slog.String("scope", shared.ScopeAllocations), slog.Any("error", err))
	}
}

func (s *Scheduler) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "allocation", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
