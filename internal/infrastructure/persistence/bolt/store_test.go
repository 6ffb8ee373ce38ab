package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/storetest"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "data", "attendance.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) attendance.Store {
		return openTemp(t)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.db")
	ctx := context.Background()

	st, err := Open(Config{Path: path})
	require.NoError(t, err)

	sub, err := attendance.NewSubject("s1", "Chemistry", 80, "", false)
	require.NoError(t, err)
	require.NoError(t, st.CreateSubject(ctx, sub))

	day := timeutil.Date(2026, 10, 14)
	require.NoError(t, st.WriteTransaction(ctx,
		attendance.PutRecordWrite(attendance.NewRecord("s1", day, attendance.StatusAbsent, 1)),
		&attendance.CounterWrite{SubjectID: "s1", Next: attendance.Counters{Absent: 1}}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetSubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Counters{Absent: 1}, got.Counters())

	rec, err := st.GetRecord(ctx, "s1", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
}

func TestStore_PrefixDoesNotLeakAcrossSubjects(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s10"} {
		sub, err := attendance.NewSubject(id, id, 75, "", false)
		require.NoError(t, err)
		require.NoError(t, st.CreateSubject(ctx, sub))
		require.NoError(t, st.WriteTransaction(ctx,
			attendance.PutRecordWrite(attendance.NewRecord(id, timeutil.Date(2026, 10, 1), attendance.StatusPresent, 1)), nil))
	}

	recs, err := st.ListRecords(ctx, attendance.RecordFilter{SubjectID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "s1", recs[0].SubjectID)
}
