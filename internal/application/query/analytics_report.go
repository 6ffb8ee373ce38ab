// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/analytics"
	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BUILD ANALYTICS QUERY
// Everything the dashboard shows for one subject: percentage, streaks,
// weekly trend and semester-end forecasts.
// ══════════════════════════════════════════════════════════════════════════════

// BuildAnalyticsQuery selects the subject to report on.
type BuildAnalyticsQuery struct {
	SubjectID string

	// HorizonEnd is the last day counted as remaining. Zero means today
	// plus the handler's horizon (analytics.DefaultHorizonMonths unless
	// configured).
	HorizonEnd time.Time
}

// AnalyticsReportDTO is the analytics report for one subject.
type AnalyticsReportDTO struct {
	SubjectID          string `json:"subject_id"`
	Name               string `json:"name"`
	RequiredAttendance int    `json:"required_attendance"`

	PresentCount int `json:"present_count"`
	AbsentCount  int `json:"absent_count"`
	TotalCount   int `json:"total_count"`

	AttendancePercent float64 `json:"attendance_percent"`
	MeetsThreshold    bool    `json:"meets_threshold"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	// WeeklyTrend holds the last four Monday-Sunday weeks, oldest first.
	WeeklyTrend [analytics.TrendWeeks]float64 `json:"weekly_trend"`

	Today            time.Time `json:"today"`
	HorizonEnd       time.Time `json:"horizon_end"`
	RemainingClasses int       `json:"remaining_classes"`

	OptimisticForecast float64 `json:"optimistic_forecast"`
	RealisticForecast  float64 `json:"realistic_forecast"`

	// ClassesToReachThreshold is -1 when the threshold cannot be reached.
	ClassesToReachThreshold int `json:"classes_to_reach_threshold"`

	// AffordableAbsences is -1 when the threshold is 0.
	AffordableAbsences int `json:"affordable_absences"`
}

// BuildAnalyticsHandler handles BuildAnalyticsQuery.
type BuildAnalyticsHandler struct {
	store   attendance.Store
	clock   timeutil.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics

	horizonMonths int
}

// NewBuildAnalyticsHandler creates a BuildAnalyticsHandler.
func NewBuildAnalyticsHandler(store attendance.Store, clock timeutil.Clock, log *logger.Logger, m *metrics.Metrics) *BuildAnalyticsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BuildAnalyticsHandler{
		store:   store,
		clock:   clock,
		logger:  log.With(logger.Component("analytics")),
		metrics: m,

		horizonMonths: analytics.DefaultHorizonMonths,
	}
}

// WithHorizonMonths sets how far ahead a query without HorizonEnd projects.
func (h *BuildAnalyticsHandler) WithHorizonMonths(months int) *BuildAnalyticsHandler {
	h.horizonMonths = months
	return h
}

// Handle builds the report. It reads the subject, its records and its
// schedule; the computation itself is pure.
func (h *BuildAnalyticsHandler) Handle(ctx context.Context, q BuildAnalyticsQuery) (*AnalyticsReportDTO, error) {
	defer h.metrics.Time("analytics")()

	if q.SubjectID == "" {
		return nil, shared.NewDomainError("analytics", "Build", shared.ErrEmptyValue, "subject_id is required")
	}

	sub, err := h.store.GetSubject(ctx, q.SubjectID)
	if err != nil {
		return nil, readError("BuildAnalytics", err)
	}
	if sub.IsFolder {
		return nil, shared.NewDomainError("analytics", "Build", shared.ErrInvalidInput, "analytics are reported per subject, not per folder")
	}

	records, err := h.store.ListRecords(ctx, attendance.RecordFilter{SubjectID: sub.ID})
	if err != nil {
		return nil, readError("BuildAnalytics", err)
	}
	schedule, err := h.store.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: sub.ID})
	if err != nil {
		return nil, readError("BuildAnalytics", err)
	}

	today := timeutil.Today(h.clock)
	horizon := timeutil.DateOf(q.HorizonEnd)
	if q.HorizonEnd.IsZero() {
		horizon = analytics.HorizonAfter(today, h.horizonMonths)
	}

	report := Build(sub, records, schedule, today, horizon)
	h.logger.Debug("analytics built",
		logger.SubjectID(sub.ID),
		logger.Int("records", len(records)),
		logger.Int("remaining", report.RemainingClasses),
	)
	return report, nil
}

// Build assembles a report from already-loaded data.
func Build(sub *attendance.Subject, records []attendance.Record, schedule []attendance.ScheduleEntry, today, horizon time.Time) *AnalyticsReportDTO {
	remaining := analytics.RemainingScheduledClasses(schedule, today, horizon)

	return &AnalyticsReportDTO{
		SubjectID:               sub.ID,
		Name:                    sub.Name,
		RequiredAttendance:      sub.RequiredAttendance,
		PresentCount:            sub.PresentCount,
		AbsentCount:             sub.AbsentCount,
		TotalCount:              sub.TotalCount,
		AttendancePercent:       sub.AttendancePercent(),
		MeetsThreshold:          sub.MeetsThreshold(),
		CurrentStreak:           analytics.CurrentStreak(records),
		LongestStreak:           analytics.LongestStreak(records),
		WeeklyTrend:             analytics.WeeklyTrend(records, today),
		Today:                   today,
		HorizonEnd:              horizon,
		RemainingClasses:        remaining,
		OptimisticForecast:      analytics.PredictSemesterEnd(sub, remaining, true),
		RealisticForecast:       analytics.PredictSemesterEnd(sub, remaining, false),
		ClassesToReachThreshold: analytics.ClassesToReachThreshold(sub),
		AffordableAbsences:      analytics.AffordableAbsences(sub),
	}
}
