package analytics

import (
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// TrendWeeks is the number of Monday–Sunday buckets WeeklyTrend returns.
const TrendWeeks = 4

// DefaultHorizonMonths is how far ahead remaining classes are projected when
// no horizon is given.
const DefaultHorizonMonths = 3

// WeeklyTrend returns the attendance percentage of each of the four weeks
// ending with today's week, oldest first. The denominator is every record
// in the week, NoClass included. A week without records yields 0.
func WeeklyTrend(records []attendance.Record, today time.Time) [TrendWeeks]float64 {
	var present, total [TrendWeeks]int

	first := timeutil.AddDays(timeutil.StartOfWeek(today), -7*(TrendWeeks-1))
	for _, r := range records {
		offset := timeutil.DaysBetween(first, r.Date)
		if offset < 0 {
			continue
		}
		week := offset / 7
		if week >= TrendWeeks {
			continue
		}
		total[week]++
		if r.Status == attendance.StatusPresent {
			present[week]++
		}
	}

	var trend [TrendWeeks]float64
	for i := range trend {
		if total[i] > 0 {
			trend[i] = float64(present[i]) / float64(total[i]) * 100
		}
	}
	return trend
}

// DefaultHorizon returns today plus DefaultHorizonMonths.
func DefaultHorizon(today time.Time) time.Time {
	return HorizonAfter(today, DefaultHorizonMonths)
}

// HorizonAfter returns today plus months. Months below 1 use
// DefaultHorizonMonths.
func HorizonAfter(today time.Time, months int) time.Time {
	if months < 1 {
		months = DefaultHorizonMonths
	}
	return timeutil.DateOf(today).AddDate(0, months, 0)
}

// RemainingScheduledClasses counts the days in [today, horizonEnd] whose
// weekday has at least one scheduled entry. Several entries on the same
// weekday still count the day once.
func RemainingScheduledClasses(entries []attendance.ScheduleEntry, today, horizonEnd time.Time) int {
	var scheduled [7]bool
	perWeek := 0
	for _, e := range entries {
		if !e.IsScheduled || e.Validate() != nil || scheduled[e.Weekday] {
			continue
		}
		scheduled[e.Weekday] = true
		perWeek++
	}
	if perWeek == 0 {
		return 0
	}

	days := timeutil.DaysBetween(today, horizonEnd) + 1
	if days <= 0 {
		return 0
	}

	count := (days / 7) * perWeek
	start := timeutil.DateOf(today).Weekday()
	for i := 0; i < days%7; i++ {
		if scheduled[(int(start)+i)%7] {
			count++
		}
	}
	return count
}
