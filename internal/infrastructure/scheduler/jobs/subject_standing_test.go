package jobs

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/memory"
)

func addSubject(t *testing.T, store *memory.Store, id string, required int, c attendance.Counters, folder bool) {
	t.Helper()
	sub, err := attendance.NewSubject(id, id, required, "", folder)
	require.NoError(t, err)
	sub.SetCounters(c)
	require.NoError(t, store.CreateSubject(context.Background(), sub))
}

func TestSubjectStandingJob(t *testing.T) {
	store := memory.New()
	addSubject(t, store, "physics", 75, attendance.Counters{Present: 3, Absent: 1}, false)
	addSubject(t, store, "math", 75, attendance.Counters{Present: 1, Absent: 2}, false)
	addSubject(t, store, "art", 75, attendance.Counters{}, false)
	addSubject(t, store, "year-1", 75, attendance.Counters{}, true)

	reg := prometheus.NewRegistry()
	job := NewSubjectStandingJob(store, metrics.New(reg), nil)
	assert.Equal(t, SubjectStandingJobName, job.Name())

	st, err := job.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Standing{OK: 1, BelowTarget: 1, NoClasses: 1}, st)

	require.NoError(t, job.Run(context.Background()))

	expected := `
# HELP attendance_subjects Markable subjects by standing against their required attendance (ok, below_target, no_classes).
# TYPE attendance_subjects gauge
attendance_subjects{standing="below_target"} 1
attendance_subjects{standing="no_classes"} 1
attendance_subjects{standing="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "attendance_subjects"))
}
