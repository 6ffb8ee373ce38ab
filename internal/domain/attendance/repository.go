package attendance

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY STORE PORT
// Implementations live in infrastructure/persistence (postgres, bolt, memory).
// ══════════════════════════════════════════════════════════════════════════════

// WriteOp says what a RecordWrite does with the (subject, date) row.
type WriteOp int

const (
	// WriteNone leaves the record untouched.
	WriteNone WriteOp = iota
	// WritePut inserts or replaces the record.
	WritePut
	// WriteDelete removes the record if present.
	WriteDelete
)

// RecordWrite is the record half of a transactional write.
type RecordWrite struct {
	Op     WriteOp
	Record Record
}

// PutRecordWrite inserts or replaces r.
func PutRecordWrite(r Record) RecordWrite {
	return RecordWrite{Op: WritePut, Record: r}
}

// DeleteRecordWrite removes the record for (subjectID, date).
func DeleteRecordWrite(subjectID string, date time.Time) RecordWrite {
	return RecordWrite{Op: WriteDelete, Record: NewRecord(subjectID, date, 0, 0)}
}

// CounterWrite is the counter half of a transactional write. It is a
// compare-and-swap: the store applies Next only if the subject's counters
// still equal Expected, otherwise it fails with ErrConcurrentModification.
type CounterWrite struct {
	SubjectID string
	Expected  Counters
	Next      Counters
}

// RecordFilter selects records by subject, by date range, or both.
// Zero From/To mean unbounded.
type RecordFilter struct {
	SubjectID string
	From      time.Time
	To        time.Time
}

// ScheduleFilter selects schedule entries by subject or weekday.
type ScheduleFilter struct {
	SubjectID string
	Weekday   *time.Weekday
}

// SubjectFilter selects subjects. ParentID "" with OnlyRoots lists top level.
type SubjectFilter struct {
	ParentID  string
	OnlyRoots bool
}

// Store is the entity store the core consumes.
type Store interface {
	// GetSubject returns shared.ErrSubjectNotFound when the id is unknown.
	GetSubject(ctx context.Context, id string) (*Subject, error)

	// GetRecord returns (nil, nil) when no record exists for the pair.
	GetRecord(ctx context.Context, subjectID string, date time.Time) (*Record, error)

	// WriteTransaction applies the record write and the counter write
	// atomically. counters may be nil for a record-only write.
	WriteTransaction(ctx context.Context, rec RecordWrite, counters *CounterWrite) error

	// DeleteRecord removes a record without touching counters.
	DeleteRecord(ctx context.Context, subjectID string, date time.Time) error

	// ListRecords returns matching records ordered by date ascending.
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error)

	// ListSchedule returns matching schedule entries.
	ListSchedule(ctx context.Context, filter ScheduleFilter) ([]ScheduleEntry, error)

	SubjectStore
}

// SubjectStore holds subject lifecycle operations.
type SubjectStore interface {
	CreateSubject(ctx context.Context, s *Subject) error

	// UpdateSubject persists name, threshold and parent. Counters are not
	// written here; they move only through WriteTransaction.
	UpdateSubject(ctx context.Context, s *Subject) error

	// DeleteSubject removes the subject with its records and schedule.
	DeleteSubject(ctx context.Context, id string) error

	ListSubjects(ctx context.Context, filter SubjectFilter) ([]*Subject, error)

	// SetSchedule replaces all schedule entries of a subject.
	SetSchedule(ctx context.Context, subjectID string, entries []ScheduleEntry) error
}
