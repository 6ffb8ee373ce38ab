// Package metrics exposes Prometheus instruments for the attendance core.
// All methods are safe on a nil *Metrics so callers can run without them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

// Metrics groups the collectors registered by New.
type Metrics struct {
	marksTotal      *prometheus.CounterVec
	markFailures    *prometheus.CounterVec
	historyTotal    *prometheus.CounterVec
	conflictRetries prometheus.Counter
	ledgerDepth     *prometheus.GaugeVec
	opDuration      *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	subjects        *prometheus.GaugeVec
	jobRuns         *prometheus.CounterVec
	crossings       *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		marksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marks_total",
			Help:      "Committed attendance marks by transition kind and status.",
		}, []string{"kind", "status"}),
		markFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_failures_total",
			Help:      "Failed attendance marks by reason.",
		}, []string{"reason"}),
		historyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_operations_total",
			Help:      "Undo and redo calls by outcome (applied, empty, failed).",
		}, []string{"operation", "outcome"}),
		conflictRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_conflict_retries_total",
			Help:      "Read-compute-write retries caused by concurrent counter updates.",
		}),
		ledgerDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_depth",
			Help:      "Current size of the undo and redo stacks.",
		}, []string{"stack"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of core operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the event bus by type.",
		}, []string{"type"}),
		subjects: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subjects",
			Help:      "Markable subjects by standing against their required attendance (ok, below_target, no_classes).",
		}, []string{"standing"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		crossings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_crossings_total",
			Help:      "Subjects crossing their required attendance (direction is below or recovered).",
		}, []string{"direction"}),
	}
}

// ObserveMark counts a committed mark.
func (m *Metrics) ObserveMark(kind, status string) {
	if m == nil {
		return
	}
	m.marksTotal.WithLabelValues(kind, status).Inc()
}

// ObserveMarkFailure counts a failed mark.
func (m *Metrics) ObserveMarkFailure(reason string) {
	if m == nil {
		return
	}
	m.markFailures.WithLabelValues(reason).Inc()
}

// ObserveHistory counts an undo or redo call.
func (m *Metrics) ObserveHistory(operation, outcome string) {
	if m == nil {
		return
	}
	m.historyTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveConflictRetry counts a CAS retry.
func (m *Metrics) ObserveConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// SetLedgerDepth publishes the stack sizes.
func (m *Metrics) SetLedgerDepth(undo, redo int) {
	if m == nil {
		return
	}
	m.ledgerDepth.WithLabelValues("undo").Set(float64(undo))
	m.ledgerDepth.WithLabelValues("redo").Set(float64(redo))
}

// ObserveEvent counts a published event.
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// SetSubjectStanding publishes the latest subject summary.
func (m *Metrics) SetSubjectStanding(ok, belowTarget, noClasses int) {
	if m == nil {
		return
	}
	m.subjects.WithLabelValues("ok").Set(float64(ok))
	m.subjects.WithLabelValues("below_target").Set(float64(belowTarget))
	m.subjects.WithLabelValues("no_classes").Set(float64(noClasses))
}

// ObserveJob counts a background job run; outcome is success or failure.
func (m *Metrics) ObserveJob(job, outcome string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

// ObserveThresholdCrossing counts a subject crossing its requirement.
func (m *Metrics) ObserveThresholdCrossing(direction string) {
	if m == nil {
		return
	}
	m.crossings.WithLabelValues(direction).Inc()
}

// Time starts a latency measurement; call the returned func when done.
func (m *Metrics) Time(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
