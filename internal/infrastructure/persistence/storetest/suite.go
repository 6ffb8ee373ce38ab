// Package storetest is a behavioural test suite every attendance.Store
// implementation runs from its own _test.go file.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) attendance.Store

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(*testing.T, attendance.Store){
		"SubjectLifecycle":          testSubjectLifecycle,
		"WriteTransactionPut":       testWriteTransactionPut,
		"WriteTransactionCAS":       testWriteTransactionCAS,
		"WriteTransactionDelete":    testWriteTransactionDelete,
		"RecordOnlyWrite":           testRecordOnlyWrite,
		"ListRecordsFilter":         testListRecordsFilter,
		"Schedule":                  testSchedule,
		"DeleteCascades":            testDeleteCascades,
		"UpdateKeepsCounters":       testUpdateKeepsCounters,
		"WriteUnknownSubjectFails":  testWriteUnknownSubject,
		"ListSubjectsByParent":      testListSubjectsByParent,
		"DateIsNormalizedOnReadout": testDateNormalized,
	}
	for name, fn := range tests {
		fn := fn
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

var day = timeutil.Date(2026, 10, 14)

func mustSubject(t *testing.T, st attendance.Store, id, parent string, folder bool) *attendance.Subject {
	t.Helper()
	s, err := attendance.NewSubject(id, "Subject "+id, 75, parent, folder)
	require.NoError(t, err)
	require.NoError(t, st.CreateSubject(context.Background(), s))
	return s
}

func testSubjectLifecycle(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	got, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Subject s1", got.Name)
	assert.Equal(t, 75, got.RequiredAttendance)
	assert.Zero(t, got.TotalCount)

	err = st.CreateSubject(ctx, got)
	assert.True(t, shared.IsAlreadyExists(err))

	_, err = st.GetSubject(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrSubjectNotFound)

	require.NoError(t, st.DeleteSubject(ctx, "s1"))
	_, err = st.GetSubject(ctx, "s1")
	assert.True(t, shared.IsNotFound(err))
	assert.True(t, shared.IsNotFound(st.DeleteSubject(ctx, "s1")))
}

func testWriteTransactionPut(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	r := attendance.NewRecord("s1", day, attendance.StatusPresent, 1)
	err := st.WriteTransaction(ctx, attendance.PutRecordWrite(r), &attendance.CounterWrite{
		SubjectID: "s1",
		Next:      attendance.Counters{Present: 1},
	})
	require.NoError(t, err)

	got, err := st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r, *got)

	sub, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.PresentCount)
	assert.Equal(t, 1, sub.TotalCount)
}

func testWriteTransactionCAS(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	r := attendance.NewRecord("s1", day, attendance.StatusAbsent, 1)
	err := st.WriteTransaction(ctx, attendance.PutRecordWrite(r), &attendance.CounterWrite{
		SubjectID: "s1",
		Expected:  attendance.Counters{Present: 4},
		Next:      attendance.Counters{Present: 4, Absent: 1},
	})
	assert.True(t, shared.IsRetryable(err), "got %v", err)

	// Nothing was applied.
	got, err := st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	sub, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, sub.TotalCount)
}

func testWriteTransactionDelete(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	r := attendance.NewRecord("s1", day, attendance.StatusAbsent, 2)
	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(r), &attendance.CounterWrite{
		SubjectID: "s1",
		Next:      attendance.Counters{Absent: 2},
	}))

	require.NoError(t, st.WriteTransaction(ctx, attendance.DeleteRecordWrite("s1", day), &attendance.CounterWrite{
		SubjectID: "s1",
		Expected:  attendance.Counters{Absent: 2},
		Next:      attendance.Counters{},
	}))

	got, err := st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	sub, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Counters{}, sub.Counters())

	// Deleting an absent record is not an error.
	require.NoError(t, st.DeleteRecord(ctx, "s1", day))
}

func testRecordOnlyWrite(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	r := attendance.NewRecord("s1", day, attendance.StatusPresent, 3)
	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(r), nil))

	got, err := st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.RepeatCount)

	sub, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, sub.TotalCount)

	require.NoError(t, st.DeleteRecord(ctx, "s1", day))
	got, err = st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testListRecordsFilter(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)
	mustSubject(t, st, "s2", "", false)

	for i, d := range []int{16, 12, 14} {
		r := attendance.NewRecord("s1", timeutil.Date(2026, 10, d), attendance.StatusPresent, i+1)
		require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(r), nil))
	}
	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(
		attendance.NewRecord("s2", day, attendance.StatusAbsent, 1)), nil))

	all, err := st.ListRecords(ctx, attendance.RecordFilter{SubjectID: "s1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, timeutil.Date(2026, 10, 12), all[0].Date)
	assert.Equal(t, timeutil.Date(2026, 10, 16), all[2].Date)

	ranged, err := st.ListRecords(ctx, attendance.RecordFilter{From: day, To: day})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	upper, err := st.ListRecords(ctx, attendance.RecordFilter{SubjectID: "s1", To: day})
	require.NoError(t, err)
	assert.Len(t, upper, 2)
}

func testSchedule(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)
	mustSubject(t, st, "s2", "", false)

	require.NoError(t, st.SetSchedule(ctx, "s1", []attendance.ScheduleEntry{
		{Weekday: time.Monday, IsScheduled: true},
		{Weekday: time.Thursday, IsScheduled: true},
	}))
	require.NoError(t, st.SetSchedule(ctx, "s2", []attendance.ScheduleEntry{
		{Weekday: time.Monday, IsScheduled: true},
	}))

	entries, err := st.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: "s1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].SubjectID)

	monday := time.Monday
	byDay, err := st.ListSchedule(ctx, attendance.ScheduleFilter{Weekday: &monday})
	require.NoError(t, err)
	assert.Len(t, byDay, 2)

	// Replacing drops the old entries.
	require.NoError(t, st.SetSchedule(ctx, "s1", []attendance.ScheduleEntry{
		{Weekday: time.Friday, IsScheduled: true},
	}))
	entries, err = st.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: "s1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Friday, entries[0].Weekday)

	assert.True(t, shared.IsNotFound(st.SetSchedule(ctx, "missing", nil)))
}

func testDeleteCascades(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "f1", "", true)
	mustSubject(t, st, "s1", "f1", false)

	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(
		attendance.NewRecord("s1", day, attendance.StatusPresent, 1)), nil))
	require.NoError(t, st.SetSchedule(ctx, "s1", []attendance.ScheduleEntry{{Weekday: time.Monday, IsScheduled: true}}))

	require.NoError(t, st.DeleteSubject(ctx, "f1"))

	_, err := st.GetSubject(ctx, "s1")
	assert.True(t, shared.IsNotFound(err))

	recs, err := st.ListRecords(ctx, attendance.RecordFilter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, recs)

	entries, err := st.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testUpdateKeepsCounters(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	sub := mustSubject(t, st, "s1", "", false)
	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(
		attendance.NewRecord("s1", day, attendance.StatusPresent, 1)),
		&attendance.CounterWrite{SubjectID: "s1", Next: attendance.Counters{Present: 1}}))

	sub.Name = "Renamed"
	sub.RequiredAttendance = 60
	sub.SetCounters(attendance.Counters{Present: 99})
	require.NoError(t, st.UpdateSubject(ctx, sub))

	got, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 60, got.RequiredAttendance)
	assert.Equal(t, attendance.Counters{Present: 1}, got.Counters())

	missing := *sub
	missing.ID = "missing"
	assert.True(t, shared.IsNotFound(st.UpdateSubject(ctx, &missing)))
}

func testWriteUnknownSubject(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	err := st.WriteTransaction(ctx,
		attendance.PutRecordWrite(attendance.NewRecord("ghost", day, attendance.StatusPresent, 1)),
		&attendance.CounterWrite{SubjectID: "ghost", Next: attendance.Counters{Present: 1}})
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}

func testListSubjectsByParent(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "f1", "", true)
	mustSubject(t, st, "a", "f1", false)
	mustSubject(t, st, "b", "f1", false)
	mustSubject(t, st, "c", "", false)

	all, err := st.ListSubjects(ctx, attendance.SubjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	children, err := st.ListSubjects(ctx, attendance.SubjectFilter{ParentID: "f1"})
	require.NoError(t, err)
	assert.Len(t, children, 2)

	roots, err := st.ListSubjects(ctx, attendance.SubjectFilter{OnlyRoots: true})
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func testDateNormalized(t *testing.T, st attendance.Store) {
	ctx := context.Background()
	mustSubject(t, st, "s1", "", false)

	late := time.Date(2026, 10, 14, 23, 15, 0, 0, time.UTC)
	require.NoError(t, st.WriteTransaction(ctx, attendance.PutRecordWrite(
		attendance.NewRecord("s1", late, attendance.StatusNoClass, 1)), nil))

	got, err := st.GetRecord(ctx, "s1", time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Date.Equal(day))
}
