package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK STATUS COMMAND
// Marks a subject Present, Absent or NoClass on a date and reconciles the
// subject's counters in the same store transaction.
// ══════════════════════════════════════════════════════════════════════════════

// MarkStatusCommand contains the data to mark attendance.
type MarkStatusCommand struct {
	SubjectID string

	// Date is reduced to its civil date. Zero means today.
	Date time.Time

	Status attendance.Status
}

// Validate validates the command.
func (c MarkStatusCommand) Validate() error {
	if c.SubjectID == "" {
		return shared.NewDomainError("attendance", "MarkStatus", shared.ErrEmptyValue, "subject_id is required")
	}
	if !c.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return nil
}

// MarkStatusResult describes the committed mark. Callers that need fresh
// aggregates re-read the subject; Counters is what this write committed.
type MarkStatusResult struct {
	SubjectID string
	Date      time.Time
	Kind      attendance.TransitionKind
	Record    attendance.Record
	Counters  attendance.Counters
	Action    attendance.Action
}

// MarkStatus applies the transition matrix for cmd and records the mark in
// the ledger once the write has committed.
func (e *Engine) MarkStatus(ctx context.Context, cmd MarkStatusCommand) (*MarkStatusResult, error) {
	defer e.metrics.Time("mark")()

	if err := cmd.Validate(); err != nil {
		e.metrics.ObserveMarkFailure(failureReason(err))
		return nil, err
	}

	date := cmd.Date
	if date.IsZero() {
		date = timeutil.Today(e.clock)
	}
	date = timeutil.DateOf(date)

	log := e.logger.With(
		logger.Operation("mark"),
		logger.SubjectID(cmd.SubjectID),
		logger.Date(date),
		logger.Status(cmd.Status),
	)

	unlock, err := e.lockSubject(ctx, "MarkStatus", cmd.SubjectID)
	if err != nil {
		e.metrics.ObserveMarkFailure(failureReason(err))
		return nil, err
	}

	t, err := e.reconcile(ctx, "MarkStatus", cmd.SubjectID, date, cmd.Status)
	if err != nil {
		unlock()
		e.metrics.ObserveMarkFailure(failureReason(err))
		log.Warn("mark failed", logger.Err(err))
		return nil, err
	}
	action := e.ledger.RecordAction(t.Snapshot)
	unlock()

	e.observeLedger()
	e.metrics.ObserveMark(t.Kind.String(), cmd.Status.String())
	log.Info("attendance marked",
		logger.String("kind", t.Kind.String()),
		logger.RepeatCount(t.Record.RepeatCount),
		logger.Int("present", t.After.Present),
		logger.Int("absent", t.After.Absent),
	)
	e.publish(shared.EventAttendanceMarked, cmd.SubjectID, date, cmd.Status.String(), t.After)

	return &MarkStatusResult{
		SubjectID: cmd.SubjectID,
		Date:      date,
		Kind:      t.Kind,
		Record:    t.Record,
		Counters:  t.After,
		Action:    action,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SET STATUS WITHOUT RECONCILIATION
// Writes a record verbatim and never touches counters. Used to repair data
// and by imports that carry their own aggregates.
// ══════════════════════════════════════════════════════════════════════════════

// SetStatusCommand contains a record to write as given.
type SetStatusCommand struct {
	SubjectID   string
	Date        time.Time
	Status      attendance.Status
	RepeatCount int
}

// Validate validates the command.
func (c SetStatusCommand) Validate() error {
	if c.SubjectID == "" {
		return shared.NewDomainError("attendance", "SetStatus", shared.ErrEmptyValue, "subject_id is required")
	}
	if c.Date.IsZero() {
		return shared.NewDomainError("attendance", "SetStatus", shared.ErrEmptyValue, "date is required")
	}
	return attendance.NewRecord(c.SubjectID, c.Date, c.Status, c.RepeatCount).Validate()
}

// SetStatusWithoutReconciliation writes the record for (subject, date)
// exactly as given. The ledger is not involved.
func (e *Engine) SetStatusWithoutReconciliation(ctx context.Context, cmd SetStatusCommand) (*attendance.Record, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_status: %w", err)
	}
	rec := attendance.NewRecord(cmd.SubjectID, cmd.Date, cmd.Status, cmd.RepeatCount)

	unlock, err := e.lockSubject(ctx, "SetStatus", cmd.SubjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := e.store.GetSubject(ctx, cmd.SubjectID)
	if err != nil {
		return nil, storeError("SetStatus", err)
	}
	if sub.IsFolder {
		return nil, shared.ErrFolderNotAttendable
	}

	if err := e.store.WriteTransaction(ctx, attendance.PutRecordWrite(rec), nil); err != nil {
		return nil, storeError("SetStatus", err)
	}

	e.logger.Info("record written without reconciliation",
		logger.SubjectID(rec.SubjectID),
		logger.Date(rec.Date),
		logger.Status(rec.Status),
		logger.RepeatCount(rec.RepeatCount),
	)
	e.publish(shared.EventAttendanceMarked, rec.SubjectID, rec.Date, rec.Status.String(), sub.Counters())
	return &rec, nil
}
