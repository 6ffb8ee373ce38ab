// Package attendance contains the attendance domain model: subjects with
// their rolling counters, dated attendance records, the weekly schedule and
// the transition matrix that keeps records and counters reconciled.
// There are no external dependencies here.
package attendance

import (
	"strings"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the outcome recorded for a subject on a date.
type Status int

const (
	StatusPresent Status = iota + 1
	StatusAbsent
	StatusNoClass
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusAbsent:
		return "absent"
	case StatusNoClass:
		return "no_class"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the three known statuses.
func (s Status) IsValid() bool {
	return s == StatusPresent || s == StatusAbsent || s == StatusNoClass
}

// ParseStatus parses a wire name ("present", "absent", "no_class").
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "present", "p":
		return StatusPresent, nil
	case "absent", "a":
		return StatusAbsent, nil
	case "no_class", "noclass", "no-class", "n":
		return StatusNoClass, nil
	default:
		return 0, shared.ErrInvalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OptionalStatus is a Status that may be absent ("no record for that date").
type OptionalStatus struct {
	Status Status
	Valid  bool
}

// Some wraps a status.
func Some(s Status) OptionalStatus {
	return OptionalStatus{Status: s, Valid: true}
}

// None is the absent status.
func None() OptionalStatus {
	return OptionalStatus{}
}

// String renders the status or "none".
func (o OptionalStatus) String() string {
	if !o.Valid {
		return "none"
	}
	return o.Status.String()
}

// MarshalJSON encodes an absent status as null.
func (o OptionalStatus) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(`"` + o.Status.String() + `"`), nil
}

// UnmarshalJSON accepts null or a status name.
func (o *OptionalStatus) UnmarshalJSON(b []byte) error {
	v := strings.Trim(string(b), `"`)
	if v == "null" || v == "" {
		*o = None()
		return nil
	}
	s, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*o = Some(s)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT
// ══════════════════════════════════════════════════════════════════════════════

// Counters are the per-subject aggregates. Total is always Present+Absent.
type Counters struct {
	Present int `json:"present_count"`
	Absent  int `json:"absent_count"`
}

// Total returns Present + Absent.
func (c Counters) Total() int {
	return c.Present + c.Absent
}

// Apply adds a delta to the counters.
func (c Counters) Apply(d Delta) Counters {
	return Counters{Present: c.Present + d.Present, Absent: c.Absent + d.Absent}
}

// Subject is a course the user tracks attendance for, or a folder grouping
// such courses.
type Subject struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RequiredAttendance int       `json:"required_attendance"`
	PresentCount       int       `json:"present_count"`
	AbsentCount        int       `json:"absent_count"`
	TotalCount         int       `json:"total_count"`
	ParentID           string    `json:"parent_id,omitempty"`
	IsFolder           bool      `json:"is_folder"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultRequiredAttendance is the threshold used when none is given.
const DefaultRequiredAttendance = 75

// NewSubject creates a subject with zeroed counters.
func NewSubject(id, name string, required int, parentID string, isFolder bool) (*Subject, error) {
	now := time.Now().UTC()
	s := &Subject{
		ID:                 id,
		Name:               strings.TrimSpace(name),
		RequiredAttendance: required,
		ParentID:           parentID,
		IsFolder:           isFolder,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the subject's own invariants.
func (s *Subject) Validate() error {
	if s.Name == "" {
		return shared.ErrEmptySubjectName
	}
	if s.RequiredAttendance < 0 || s.RequiredAttendance > 100 {
		return shared.ErrInvalidThreshold
	}
	if s.IsFolder && s.ParentID != "" {
		return shared.ErrFolderNesting
	}
	if s.TotalCount != s.PresentCount+s.AbsentCount {
		return shared.ErrCounterInvariant
	}
	return nil
}

// Counters returns the subject's aggregates.
func (s *Subject) Counters() Counters {
	return Counters{Present: s.PresentCount, Absent: s.AbsentCount}
}

// SetCounters overwrites the aggregates, keeping Total consistent.
func (s *Subject) SetCounters(c Counters) {
	s.PresentCount = c.Present
	s.AbsentCount = c.Absent
	s.TotalCount = c.Total()
}

// AttendancePercent returns Present/Total*100, or 0 without any classes.
func (s *Subject) AttendancePercent() float64 {
	if s.TotalCount <= 0 {
		return 0
	}
	return float64(s.PresentCount) / float64(s.TotalCount) * 100
}

// MeetsThreshold reports whether the subject is at or above its requirement.
func (s *Subject) MeetsThreshold() bool {
	return s.AttendancePercent() >= float64(s.RequiredAttendance)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is the single attendance entry for (SubjectID, Date).
type Record struct {
	SubjectID   string    `json:"subject_id"`
	Date        time.Time `json:"date"`
	Status      Status    `json:"status"`
	RepeatCount int       `json:"repeat_count"`
}

// NewRecord creates a record with the date normalized to a civil date.
func NewRecord(subjectID string, date time.Time, status Status, repeat int) Record {
	return Record{
		SubjectID:   subjectID,
		Date:        timeutil.DateOf(date),
		Status:      status,
		RepeatCount: repeat,
	}
}

// Validate checks status and repeat count.
func (r Record) Validate() error {
	if !r.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	if r.RepeatCount < 1 {
		return shared.ErrInvalidRepeatCount
	}
	return nil
}

// Key returns the natural key of the record.
func (r Record) Key() RecordKey {
	return RecordKey{SubjectID: r.SubjectID, Date: timeutil.DateOf(r.Date)}
}

// RecordKey is the (subject, date) natural key.
type RecordKey struct {
	SubjectID string
	Date      time.Time
}

// String renders the key as "subject/YYYY-MM-DD".
func (k RecordKey) String() string {
	return k.SubjectID + "/" + timeutil.FormatDate(k.Date)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleEntry says whether a subject meets on a given weekday.
type ScheduleEntry struct {
	SubjectID   string       `json:"subject_id"`
	Weekday     time.Weekday `json:"weekday"`
	IsScheduled bool         `json:"is_scheduled"`
}

// Validate checks the weekday range.
func (e ScheduleEntry) Validate() error {
	if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
		return shared.ErrInvalidWeekday
	}
	return nil
}
