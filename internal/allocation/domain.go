package allocation

import (
	"strings"
	"time"

	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/shared"
)

// Frequency is how often an allocation falls due.
type Frequency string

const (
	FrequencyYearly       Frequency = "yearly"
	FrequencyTermly       Frequency = "termly"
	FrequencyOncePerTerm  Frequency = "once_per_term"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyWeekly       Frequency = "weekly"
	FrequencySpecificDays Frequency = "specific_days"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyYearly, FrequencyTermly, FrequencyOncePerTerm, FrequencyMonthly, FrequencyWeekly, FrequencySpecificDays:
		return true
	}
	return false
}

// Status is the lifecycle of an allocation record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// DueState is the scheduling state derived from last_given_date and now.
type DueState string

const (
	StateNeverGiven DueState = "never_given"
	StateDue        DueState = "due"
	StateNotDue     DueState = "not_due"
	StateOverdue    DueState = "overdue"
)

// Due reports whether an allocation in state s may be handed out.
func (s DueState) Due() bool {
	return s == StateNeverGiven || s == StateDue || s == StateOverdue
}

// Allocation is a recurring free grant of a product to a customer.
type Allocation struct {
	ID            int64          `json:"id"`
	CustomerID    int64          `json:"customer_id"`
	ProductID     int64          `json:"product_id"`
	Program       ledger.Program `json:"program"`
	Quantity      int            `json:"quantity"`
	Frequency     Frequency      `json:"frequency"`
	SpecificDays  []time.Weekday `json:"specific_days,omitempty"`
	LastGivenDate *time.Time     `json:"last_given_date,omitempty"`
	NextDueDate   *time.Time     `json:"next_due_date,omitempty"`
	Status        Status         `json:"status"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HistoryEntry records one fulfilment.
type HistoryEntry struct {
	ID            int64        `json:"id"`
	AllocationID  int64        `json:"allocation_id"`
	QuantityGiven int          `json:"quantity_given"`
	GivenAt       time.Time    `json:"given_at"`
	Actor         shared.Actor `json:"actor"`
}

// CreateInput schedules a new allocation.
type CreateInput struct {
	CustomerID   int64          `json:"customer_id" validate:"required,gt=0"`
	ProductID    int64          `json:"product_id" validate:"required,gt=0"`
	Program      ledger.Program `json:"program" validate:"required"`
	Quantity     int            `json:"quantity" validate:"required,gt=0"`
	Frequency    Frequency      `json:"frequency" validate:"required"`
	SpecificDays []string       `json:"specific_days"`
	Actor        shared.Actor   `json:"-"`
}

// FulfilInput hands out one allocation. Force skips the due check.
type FulfilInput struct {
	AllocationID int64        `json:"-" validate:"required,gt=0"`
	Force        bool         `json:"force"`
	Actor        shared.Actor `json:"-"`
}

// FulfilResult is returned by FulfilAllocation.
type FulfilResult struct {
	Allocation Allocation   `json:"allocation"`
	History    HistoryEntry `json:"history"`
	StockQty   int          `json:"stock_qty"`
}

// DueItem pairs an allocation with its evaluated state.
type DueItem struct {
	Allocation Allocation `json:"allocation"`
	State      DueState   `json:"state"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays converts day names ("monday", "Tue") into weekdays,
// dropping duplicates.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	seen := make(map[time.Weekday]bool, len(names))
	for _, raw := range names {
		day, ok := lookupWeekday(raw)
		if !ok {
			return nil, shared.Invalid("allocation", "unknown weekday %q", raw)
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	return days, nil
}

func lookupWeekday(raw string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if day, ok := weekdayNames[name]; ok {
		return day, true
	}
	if len(name) >= 3 {
		for full, day := range weekdayNames {
			if strings.HasPrefix(full, name) {
				return day, true
			}
		}
	}
	return 0, false
}

// weekdayStrings renders days for the TEXT[] column.
func weekdayStrings(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(d.String()))
	}
	return out
}
