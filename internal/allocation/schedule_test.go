package allocation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/allocation"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	mondayThursday := []time.Weekday{time.Monday, time.Thursday}
	cases := []struct {
		name string
		freq allocation.Frequency
		days []time.Weekday
		from time.Time
		want time.Time
	}{
		{"weekly", allocation.FrequencyWeekly, nil, day(2025, time.January, 6, 9), day(2025, time.January, 13, 9)},
		{"monthly clamps to february", allocation.FrequencyMonthly, nil, day(2025, time.January, 31, 9), day(2025, time.February, 28, 9)},
		{"monthly leap year", allocation.FrequencyMonthly, nil, day(2024, time.January, 31, 9), day(2024, time.February, 29, 9)},
		{"monthly crosses year", allocation.FrequencyMonthly, nil, day(2024, time.December, 15, 9), day(2025, time.January, 15, 9)},
		{"termly", allocation.FrequencyTermly, nil, day(2025, time.October, 31, 9), day(2026, time.February, 28, 9)},
		{"once per term", allocation.FrequencyOncePerTerm, nil, day(2025, time.January, 10, 9), day(2025, time.May, 10, 9)},
		{"yearly from leap day", allocation.FrequencyYearly, nil, day(2024, time.February, 29, 9), day(2025, time.February, 28, 9)},
		{"specific days monday to thursday", allocation.FrequencySpecificDays, mondayThursday, day(2025, time.January, 6, 9), day(2025, time.January, 9, 9)},
		{"specific days thursday to monday", allocation.FrequencySpecificDays, mondayThursday, day(2025, time.January, 9, 9), day(2025, time.January, 13, 9)},
		{"specific days single weekday", allocation.FrequencySpecificDays, []time.Weekday{time.Monday}, day(2025, time.January, 6, 9), day(2025, time.January, 13, 9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := allocation.NextDueDate(tc.freq, tc.days, tc.from)
			require.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
			require.True(t, got.Equal(allocation.NextDueDate(tc.freq, tc.days, tc.from)))
		})
	}
}

func TestEvaluateWeekly(t *testing.T) {
	now := day(2025, time.January, 20, 12)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}
	a := allocation.Allocation{Frequency: allocation.FrequencyWeekly}
	require.Equal(t, allocation.StateNeverGiven, allocation.Evaluate(a, now, time.UTC))

	a.LastGivenDate = at(8 * 24 * time.Hour)
	require.Equal(t, allocation.StateDue, allocation.Evaluate(a, now, time.UTC))

	a.LastGivenDate = at(3 * 24 * time.Hour)
	require.Equal(t, allocation.StateNotDue, allocation.Evaluate(a, now, time.UTC))

	a.LastGivenDate = at(15 * 24 * time.Hour)
	require.Equal(t, allocation.StateOverdue, allocation.Evaluate(a, now, time.UTC))
}

func TestEvaluateMonthlyOverdueAfterTwoPeriods(t *testing.T) {
	last := day(2025, time.January, 31, 9)
	a := allocation.Allocation{Frequency: allocation.FrequencyMonthly, LastGivenDate: &last}
	require.Equal(t, allocation.StateNotDue, allocation.Evaluate(a, day(2025, time.February, 27, 9), time.UTC))
	require.Equal(t, allocation.StateDue, allocation.Evaluate(a, day(2025, time.February, 28, 9), time.UTC))
	require.Equal(t, allocation.StateOverdue, allocation.Evaluate(a, day(2025, time.March, 31, 9), time.UTC))
}

func TestEvaluateSpecificDays(t *testing.T) {
	last := day(2025, time.January, 6, 10) // Monday
	a := allocation.Allocation{
		Frequency:     allocation.FrequencySpecificDays,
		SpecificDays:  []time.Weekday{time.Monday, time.Wednesday},
		LastGivenDate: &last,
	}
	require.Equal(t, allocation.StateNotDue, allocation.Evaluate(a, day(2025, time.January, 6, 15), time.UTC))
	require.Equal(t, allocation.StateNotDue, allocation.Evaluate(a, day(2025, time.January, 7, 9), time.UTC))
	require.Equal(t, allocation.StateDue, allocation.Evaluate(a, day(2025, time.January, 8, 9), time.UTC))
	require.Equal(t, allocation.StateOverdue, allocation.Evaluate(a, day(2025, time.January, 9, 9), time.UTC))
}

func TestEvaluateSpecificDaysUsesLocalCalendar(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	// Monday 22:30 UTC is already Tuesday in EAT.
	last := time.Date(2025, time.January, 6, 22, 30, 0, 0, time.UTC)
	a := allocation.Allocation{
		Frequency:     allocation.FrequencySpecificDays,
		SpecificDays:  []time.Weekday{time.Tuesday},
		LastGivenDate: &last,
	}
	now := day(2025, time.January, 7, 8)
	require.Equal(t, allocation.StateNotDue, allocation.Evaluate(a, now, eat))
	require.Equal(t, allocation.StateDue, allocation.Evaluate(a, now, time.UTC))
}

func TestParseWeekdays(t *testing.T) {
	days, err := allocation.ParseWeekdays([]string{"Monday", "thu", "mon", " FRIDAY "})
	require.NoError(t, err)
	require.Equal(t, []time.Weekday{time.Monday, time.Thursday, time.Friday}, days)

	_, err = allocation.ParseWeekdays([]string{"mo"})
	require.Error(t, err)
	_, err = allocation.ParseWeekdays([]string{"funday"})
	require.Error(t, err)
}
