package progression

import "time"

// StreakState is the triple the day-streak machine runs over. States are
// implicit: no streak (Current == 0) or active (LastReadingDate set).
type StreakState struct {
	Current         int
	Longest         int
	LastReadingDate *time.Time
}

// Midnight normalizes t to midnight of its calendar date, anchored in UTC.
// All streak and period arithmetic works on calendar days, not instants;
// the fixed anchor keeps dates comparable no matter which zone they were
// scanned or submitted in (Postgres DATE columns come back UTC-located,
// request timestamps carry the server zone), and removes DST from day
// arithmetic entirely.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b, negative
// when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)).Hours() / 24)
}

// AdvanceStreak applies one log date to the streak machine and returns the
// next state. Re-logging the same day is a no-op; a consecutive day
// increments; any gap resets to 1. Backdated logs follow the same day-diff
// rules symmetrically and reset unless they land exactly one day off.
func AdvanceStreak(prev StreakState, logDate time.Time) StreakState {
	date := Midnight(logDate)
	next := prev

	switch {
	case prev.LastReadingDate == nil:
		next.Current = 1
	default:
		switch diff := DaysBetween(*prev.LastReadingDate, date); {
		case diff == 0:
			// same calendar day, idempotent re-log
		case diff == 1 || diff == -1:
			next.Current = prev.Current + 1
		default:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastReadingDate = &date
	return next
}
