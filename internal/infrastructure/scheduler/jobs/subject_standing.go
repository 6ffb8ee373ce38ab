// Package jobs contains the background jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

// SubjectStandingJobName is the job name and metric label.
const SubjectStandingJobName = "subject_standing"

// Standing counts markable subjects by how they compare to their target.
type Standing struct {
	OK          int
	BelowTarget int
	NoClasses   int
}

// SubjectStandingJob recomputes the subject standing gauge from the
// store's counters, so dashboards can alert on subjects at risk.
type SubjectStandingJob struct {
	store   attendance.Store
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewSubjectStandingJob creates the job.
func NewSubjectStandingJob(store attendance.Store, m *metrics.Metrics, log *logger.Logger) *SubjectStandingJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SubjectStandingJob{store: store, metrics: m, logger: log.With(logger.Component("jobs"))}
}

// Name implements scheduler.Job.
func (j *SubjectStandingJob) Name() string { return SubjectStandingJobName }

// Run implements scheduler.Job.
func (j *SubjectStandingJob) Run(ctx context.Context) error {
	st, err := j.Compute(ctx)
	if err != nil {
		return err
	}
	j.metrics.SetSubjectStanding(st.OK, st.BelowTarget, st.NoClasses)
	j.logger.Debug("subject standing refreshed",
		logger.Int("ok", st.OK),
		logger.Int("below_target", st.BelowTarget),
		logger.Int("no_classes", st.NoClasses),
	)
	return nil
}

// Compute reads every subject and classifies it. Folders are skipped.
func (j *SubjectStandingJob) Compute(ctx context.Context) (Standing, error) {
	subjects, err := j.store.ListSubjects(ctx, attendance.SubjectFilter{})
	if err != nil {
		return Standing{}, fmt.Errorf("list subjects: %w", err)
	}

	var st Standing
	for _, s := range subjects {
		switch {
		case s.IsFolder:
		case s.TotalCount == 0:
			st.NoClasses++
		case s.MeetsThreshold():
			st.OK++
		default:
			st.BelowTarget++
		}
	}
	return st, nil
}
