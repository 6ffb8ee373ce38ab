package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_KeepsLocalCalendarDay(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	// 23:30 in Almaty is still 18:30 UTC of the same day, 01:00 is the previous UTC day.
	late := time.Date(2026, 3, 10, 1, 0, 0, 0, almaty)

	assert.Equal(t, Date(2026, 3, 10), DateOf(late))
	assert.Equal(t, time.UTC, DateOf(late).Location())
}

func TestStartOfWeek_Monday(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday", Date(2026, 10, 12), Date(2026, 10, 12)},
		{"wednesday", Date(2026, 10, 14), Date(2026, 10, 12)},
		{"sunday", Date(2026, 10, 18), Date(2026, 10, 12)},
		{"across month", Date(2026, 11, 1), Date(2026, 10, 26)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartOfWeek(tt.in))
		})
	}
}

func TestDaysBetweenAndInRange(t *testing.T) {
	from := Date(2026, 1, 30)
	to := Date(2026, 2, 2)

	assert.Equal(t, 3, DaysBetween(from, to))
	assert.Equal(t, -3, DaysBetween(to, from))
	assert.Equal(t, 2912156, DaysBetween(Date(2026, 10, 14), Date(9999, 12, 31)))
	assert.Equal(t, 3652058, DaysBetween(Date(1, 1, 1), Date(9999, 12, 31)))
	assert.True(t, InRange(Date(2026, 2, 1), from, to))
	assert.True(t, InRange(to, from, to))
	assert.False(t, InRange(Date(2026, 2, 3), from, to))
}

func TestParseAndFormatDate(t *testing.T) {
	d, err := ParseDate("2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, Date(2026, 10, 18), d)
	assert.Equal(t, "2026-10-18", FormatDate(d))

	_, err = ParseDate("18.10.2026")
	assert.Error(t, err)
}

func TestFixedClockToday(t *testing.T) {
	clock := FixedClock{At: time.Date(2026, 10, 18, 22, 15, 0, 0, time.UTC)}
	assert.Equal(t, Date(2026, 10, 18), Today(clock))
}
