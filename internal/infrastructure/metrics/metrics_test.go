package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveMark("create", "present")
	m.ObserveMark("create", "present")
	m.ObserveMarkFailure("persistence")
	m.ObserveHistory("undo", "empty")
	m.ObserveConflictRetry()
	m.SetLedgerDepth(3, 1)
	m.ObserveEvent("attendance.marked")
	m.Time("mark")()
	m.SetSubjectStanding(4, 2, 1)
	m.ObserveJob("subject_standing", "success")
	m.ObserveThresholdCrossing("below")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.marksTotal.WithLabelValues("create", "present")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.markFailures.WithLabelValues("persistence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.historyTotal.WithLabelValues("undo", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictRetries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ledgerDepth.WithLabelValues("undo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("attendance.marked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.subjects.WithLabelValues("below_target")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("subject_standing", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.crossings.WithLabelValues("below")))

	n, err := testutil.GatherAndCount(reg, "attendance_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMark("create", "present")
		m.ObserveMarkFailure("x")
		m.ObserveHistory("redo", "applied")
		m.ObserveConflictRetry()
		m.SetLedgerDepth(1, 1)
		m.ObserveEvent("x")
		m.SetSubjectStanding(1, 1, 1)
		m.ObserveJob("x", "failure")
		m.ObserveThresholdCrossing("recovered")
		m.Time("mark")()
	})
}
