// Package analytics derives read-only statistics from the attendance event
// log: streaks, weekly trend, remaining scheduled classes and semester-end
// forecasts. Every function is pure; "today" is always passed in.
package analytics

import (
	"sort"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
)

// sortedByDate returns a copy of records ordered by date. The sort is stable
// so several entries for the same day keep their input order.
func sortedByDate(records []attendance.Record, descending bool) []attendance.Record {
	out := make([]attendance.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// CurrentStreak counts consecutive Present entries starting from the most
// recent record. Absent ends the streak, NoClass is skipped.
func CurrentStreak(records []attendance.Record) int {
	streak := 0
	for _, r := range sortedByDate(records, true) {
		switch r.Status {
		case attendance.StatusPresent:
			streak++
		case attendance.StatusAbsent:
			return streak
		}
	}
	return streak
}

// LongestStreak returns the longest run of Present entries in date order.
// Absent resets the run, NoClass leaves it unchanged.
func LongestStreak(records []attendance.Record) int {
	longest, run := 0, 0
	for _, r := range sortedByDate(records, false) {
		switch r.Status {
		case attendance.StatusPresent:
			run++
			if run > longest {
				longest = run
			}
		case attendance.StatusAbsent:
			run = 0
		}
	}
	return longest
}
