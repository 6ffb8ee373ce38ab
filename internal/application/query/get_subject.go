package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SUBJECT QUERY
// Reads a subject with its counters, through the cache when one is wired.
// ══════════════════════════════════════════════════════════════════════════════

// SubjectCache is the read-through cache GetSubjectHandler uses. Get
// returns an error for a miss; any error is treated as a miss.
type SubjectCache interface {
	Get(ctx context.Context, subjectID string) (*attendance.Subject, error)
	Set(ctx context.Context, sub *attendance.Subject) error
}

// GetSubjectHandler handles subject reads.
type GetSubjectHandler struct {
	store  attendance.Store
	cache  SubjectCache
	logger *logger.Logger
}

// NewGetSubjectHandler creates a GetSubjectHandler. cache may be nil.
func NewGetSubjectHandler(store attendance.Store, cache SubjectCache, log *logger.Logger) *GetSubjectHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetSubjectHandler{store: store, cache: cache, logger: log.With(logger.Component("subjects"))}
}

// Handle returns the subject. Cache failures never fail the read.
func (h *GetSubjectHandler) Handle(ctx context.Context, subjectID string) (*attendance.Subject, error) {
	if subjectID == "" {
		return nil, shared.NewDomainError("subject", "Get", shared.ErrEmptyValue, "subject_id is required")
	}

	if h.cache != nil {
		if sub, err := h.cache.Get(ctx, subjectID); err == nil && sub != nil {
			return sub, nil
		}
	}

	sub, err := h.store.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, readError("GetSubject", err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, sub); err != nil {
			h.logger.Warn("failed to cache subject", logger.SubjectID(sub.ID), logger.Err(err))
		}
	}
	return sub, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST RECORDS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListRecordsQuery selects records by subject, date range, or both.
type ListRecordsQuery struct {
	SubjectID string
	From      time.Time
	To        time.Time
}

// Validate validates the query.
func (q ListRecordsQuery) Validate() error {
	if q.SubjectID == "" && q.From.IsZero() && q.To.IsZero() {
		return shared.NewDomainError("attendance", "ListRecords", shared.ErrInvalidInput, "subject_id or a date range is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return shared.NewDomainError("attendance", "ListRecords", shared.ErrInvalidInput, "to is before from")
	}
	return nil
}

// ListRecordsHandler handles ListRecordsQuery.
type ListRecordsHandler struct {
	store attendance.Store
}

// NewListRecordsHandler creates a ListRecordsHandler.
func NewListRecordsHandler(store attendance.Store) *ListRecordsHandler {
	return &ListRecordsHandler{store: store}
}

// Handle returns matching records ordered by date. A subject filter on an
// unknown subject is a not-found error rather than an empty list.
func (h *ListRecordsHandler) Handle(ctx context.Context, q ListRecordsQuery) ([]attendance.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.SubjectID != "" {
		if _, err := h.store.GetSubject(ctx, q.SubjectID); err != nil {
			return nil, readError("ListRecords", err)
		}
	}

	recs, err := h.store.ListRecords(ctx, attendance.RecordFilter{
		SubjectID: q.SubjectID,
		From:      timeutil.DateOf(q.From),
		To:        timeutil.DateOf(q.To),
	})
	if err != nil {
		return nil, readError("ListRecords", err)
	}
	return recs, nil
}

// readError passes domain errors through and wraps the rest as persistence
// failures.
func readError(op string, err error) error {
	if shared.IsNotFound(err) || shared.IsValidation(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("query", op, shared.ErrPersistence, fmt.Sprintf("read %s", op), err)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST SCHEDULE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListScheduleHandler returns the weekdays a subject meets on.
type ListScheduleHandler struct {
	store attendance.Store
}

// NewListScheduleHandler creates a ListScheduleHandler.
func NewListScheduleHandler(store attendance.Store) *ListScheduleHandler {
	return &ListScheduleHandler{store: store}
}

// Handle returns the subject's schedule entries.
func (h *ListScheduleHandler) Handle(ctx context.Context, subjectID string) ([]attendance.ScheduleEntry, error) {
	if subjectID == "" {
		return nil, shared.NewDomainError("schedule", "List", shared.ErrEmptyValue, "subject_id is required")
	}
	if _, err := h.store.GetSubject(ctx, subjectID); err != nil {
		return nil, readError("ListSchedule", err)
	}
	entries, err := h.store.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: subjectID})
	if err != nil {
		return nil, readError("ListSchedule", err)
	}
	return entries, nil
}
