package attendance

import (
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION MATRIX
// ══════════════════════════════════════════════════════════════════════════════

// Delta is a signed change to a subject's counters. Total moves with
// Present+Absent and is never stored separately.
type Delta struct {
	Present int
	Absent  int
}

// Total returns the change in total count.
func (d Delta) Total() int {
	return d.Present + d.Absent
}

// Add sums two deltas.
func (d Delta) Add(o Delta) Delta {
	return Delta{Present: d.Present + o.Present, Absent: d.Absent + o.Absent}
}

// Scale multiplies a delta by n.
func (d Delta) Scale(n int) Delta {
	return Delta{Present: d.Present * n, Absent: d.Absent * n}
}

// CreateDelta is the contribution of a single mark with the given status.
func CreateDelta(s Status) Delta {
	switch s {
	case StatusPresent:
		return Delta{Present: 1}
	case StatusAbsent:
		return Delta{Absent: 1}
	default:
		return Delta{}
	}
}

// ReversalDelta undoes the contribution of a record: count marks of status s.
func ReversalDelta(s Status, count int) Delta {
	return CreateDelta(s).Scale(-count)
}

// TransitionKind names the branch of the matrix a mark falls into.
type TransitionKind int

const (
	// TransitionCreate: no record existed for the date.
	TransitionCreate TransitionKind = iota + 1
	// TransitionRepeat: the same status was marked again.
	TransitionRepeat
	// TransitionReplace: a different status replaces the old one.
	TransitionReplace
)

// String returns a short name for logs.
func (k TransitionKind) String() string {
	switch k {
	case TransitionCreate:
		return "create"
	case TransitionRepeat:
		return "repeat"
	case TransitionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Transition is the outcome of applying a mark to the current state.
type Transition struct {
	Kind     TransitionKind
	Record   Record   // record to persist
	Delta    Delta    // net change applied to the counters
	Before   Counters // counters read before the mark
	After    Counters // Before + Delta
	Snapshot Action   // everything needed to reverse the mark
}

// Plan computes the transition for marking newStatus on (subject, date)
// given the record currently stored for that pair (nil when absent).
// It is pure: nothing is written.
func Plan(subject *Subject, old *Record, date time.Time, newStatus Status) (Transition, error) {
	if !newStatus.IsValid() {
		return Transition{}, shared.ErrInvalidStatus
	}
	if old != nil {
		if old.RepeatCount <= 0 {
			return Transition{}, shared.ErrCorruptRecord
		}
		if !old.Status.IsValid() {
			return Transition{}, shared.ErrCorruptRecord
		}
	}

	day := timeutil.DateOf(date)
	before := subject.Counters()
	t := Transition{Before: before}

	switch {
	case old == nil:
		t.Kind = TransitionCreate
		t.Record = NewRecord(subject.ID, day, newStatus, 1)
		t.Delta = CreateDelta(newStatus)
	case old.Status == newStatus:
		t.Kind = TransitionRepeat
		t.Record = NewRecord(subject.ID, day, newStatus, old.RepeatCount+1)
		t.Delta = CreateDelta(newStatus)
	default:
		t.Kind = TransitionReplace
		t.Record = NewRecord(subject.ID, day, newStatus, 1)
		t.Delta = ReversalDelta(old.Status, old.RepeatCount).Add(CreateDelta(newStatus))
	}

	t.After = before.Apply(t.Delta)
	if t.After.Present < 0 || t.After.Absent < 0 {
		// The stored record claims more marks than the counters hold.
		return Transition{}, shared.WrapError("attendance", "Reconcile", shared.ErrReconciliation,
			"reversal would drive counters negative", nil)
	}

	t.Snapshot = NewAction(subject.ID, day, old, newStatus, before)
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION (ledger entry)
// ══════════════════════════════════════════════════════════════════════════════

// Action captures the state strictly before a mark so the mark can be
// reversed exactly. It is never mutated after creation.
type Action struct {
	Seq             uint64         `json:"seq"`
	SubjectID       string         `json:"subject_id"`
	Date            time.Time      `json:"date"`
	OldStatus       OptionalStatus `json:"old_status"`
	OldRepeatCount  int            `json:"old_repeat_count"`
	NewStatus       Status         `json:"new_status"`
	OldPresentCount int            `json:"old_present_count"`
	OldAbsentCount  int            `json:"old_absent_count"`
}

// NewAction builds the snapshot for a mark.
func NewAction(subjectID string, date time.Time, old *Record, newStatus Status, before Counters) Action {
	a := Action{
		SubjectID:       subjectID,
		Date:            timeutil.DateOf(date),
		NewStatus:       newStatus,
		OldPresentCount: before.Present,
		OldAbsentCount:  before.Absent,
	}
	if old != nil {
		a.OldStatus = Some(old.Status)
		a.OldRepeatCount = old.RepeatCount
	}
	return a
}

// Key returns the (subject, date) the action touched.
func (a Action) Key() RecordKey {
	return RecordKey{SubjectID: a.SubjectID, Date: a.Date}
}

// OldCounters returns the counters to restore on undo.
func (a Action) OldCounters() Counters {
	return Counters{Present: a.OldPresentCount, Absent: a.OldAbsentCount}
}

// RestoreWrite returns the record write that puts the (subject, date) back
// to how it was before the action.
func (a Action) RestoreWrite() RecordWrite {
	if !a.OldStatus.Valid {
		return DeleteRecordWrite(a.SubjectID, a.Date)
	}
	return PutRecordWrite(NewRecord(a.SubjectID, a.Date, a.OldStatus.Status, a.OldRepeatCount))
}
