// Package timeutil provides civil-date helpers for attendance bookkeeping.
//
// Attendance is keyed by calendar date, not by instant. A civil date is
// represented as a time.Time at midnight UTC carrying the local year, month
// and day, so weekday arithmetic and map keys never depend on the zone the
// mark was made in.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical textual form of a civil date.
const DateLayout = "2006-01-02"

// Clock supplies the current instant. Analytics never reads the wall clock
// directly so tests can pin "today".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// Today returns the civil date of the clock's current instant.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping the Y/M/D as seen in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// AddDays shifts a civil date by n days.
func AddDays(date time.Time, n int) time.Time {
	return DateOf(date).AddDate(0, 0, n)
}

// StartOfWeek returns the Monday of date's week.
func StartOfWeek(date time.Time) time.Time {
	d := DateOf(date)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// DaysBetween returns the number of whole days from t1 to t2 (negative when
// t2 is earlier). It works on Unix seconds, so spans longer than a
// time.Duration can hold are still exact.
func DaysBetween(t1, t2 time.Time) int {
	return int((DateOf(t2).Unix() - DateOf(t1).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// InRange reports whether date lies in [from, to], both inclusive.
func InRange(date, from, to time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(from)) && !d.After(DateOf(to))
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(date time.Time) string {
	return DateOf(date).Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD into a civil date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return t, nil
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
