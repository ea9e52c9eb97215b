package allocation

import "time"

// NextDueDate returns when an allocation given at from falls due again.
// It depends only on its arguments.
//
// Month arithmetic clamps to the end of the target month, so Jan 31 plus
// one month is the last day of February.
func NextDueDate(freq Frequency, days []time.Weekday, from time.Time) time.Time {
	switch freq {
	case FrequencyYearly:
		return addMonths(from, 12)
	case FrequencyTermly, FrequencyOncePerTerm:
		return addMonths(from, 4)
	case FrequencyMonthly:
		return addMonths(from, 1)
	case FrequencySpecificDays:
		if len(days) == 0 {
			return from.AddDate(0, 0, 7)
		}
		allowed := weekdaySet(days)
		for i := 1; i <= 7; i++ {
			candidate := from.AddDate(0, 0, i)
			if allowed[candidate.Weekday()] {
				return candidate
			}
		}
		return from.AddDate(0, 0, 7)
	default:
		return from.AddDate(0, 0, 7)
	}
}

// Evaluate derives the due state of a at now. Specific-day allocations
// are judged by calendar day in loc: one hand-out per allowed day, and a
// missed allowed day makes them overdue.
func Evaluate(a Allocation, now time.Time, loc *time.Location) DueState {
	if a.LastGivenDate == nil {
		return StateNeverGiven
	}
	if loc == nil {
		loc = time.UTC
	}
	last := a.LastGivenDate.In(loc)
	now = now.In(loc)

	if a.Frequency == FrequencySpecificDays {
		today := civilDay(now)
		next := civilDay(NextDueDate(a.Frequency, a.SpecificDays, last))
		if next.Before(today) {
			return StateOverdue
		}
		if weekdaySet(a.SpecificDays)[now.Weekday()] && civilDay(last).Before(today) {
			return StateDue
		}
		return StateNotDue
	}

	due := NextDueDate(a.Frequency, a.SpecificDays, last)
	if now.Before(due) {
		return StateNotDue
	}
	if now.Before(NextDueDate(a.Frequency, a.SpecificDays, due)) {
		return StateDue
	}
	return StateOverdue
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekdaySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}
