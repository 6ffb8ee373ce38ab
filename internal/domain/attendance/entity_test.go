package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
)

func TestSubject_PercentAndThreshold(t *testing.T) {
	s := subjectWith(3, 1)
	assert.InDelta(t, 75.0, s.AttendancePercent(), 1e-9)
	assert.True(t, s.MeetsThreshold())

	s.RequiredAttendance = 80
	assert.False(t, s.MeetsThreshold())

	empty := subjectWith(0, 0)
	assert.Zero(t, empty.AttendancePercent())
	assert.False(t, empty.MeetsThreshold())

	empty.RequiredAttendance = 0
	assert.True(t, empty.MeetsThreshold())
}

func TestNewSubject_Validation(t *testing.T) {
	_, err := NewSubject("id", "  ", 75, "", false)
	assert.ErrorIs(t, err, shared.ErrEmptySubjectName)

	_, err = NewSubject("id", "Physics", 101, "", false)
	assert.ErrorIs(t, err, shared.ErrInvalidThreshold)

	_, err = NewSubject("id", "Physics", -1, "", false)
	assert.ErrorIs(t, err, shared.ErrInvalidThreshold)

	_, err = NewSubject("id", "Sem 1", 75, "parent", true)
	assert.ErrorIs(t, err, shared.ErrFolderNesting)

	s, err := NewSubject("id", " Physics ", 100, "", false)
	require.NoError(t, err)
	assert.Equal(t, "Physics", s.Name)
	assert.Zero(t, s.TotalCount)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"present":  StatusPresent,
		"ABSENT":   StatusAbsent,
		"no_class": StatusNoClass,
		"noclass":  StatusNoClass,
	} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseStatus("late")
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestRecord_JSON(t *testing.T) {
	r := NewRecord("sub-1", time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC), StatusNoClass, 2)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"no_class"`)

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestOptionalStatus_JSON(t *testing.T) {
	a := NewAction("sub-1", day, nil, StatusAbsent, Counters{Present: 1})
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"old_status":null`)

	var back Action
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back.OldStatus.Valid)
	assert.Equal(t, StatusAbsent, back.NewStatus)
}

func TestScheduleEntry_Validate(t *testing.T) {
	assert.NoError(t, ScheduleEntry{Weekday: time.Saturday}.Validate())
	assert.ErrorIs(t, ScheduleEntry{Weekday: 7}.Validate(), shared.ErrInvalidWeekday)
}
