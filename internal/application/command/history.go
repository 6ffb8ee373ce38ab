package command

import (
	"context"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNDO / REDO
// Undo restores the snapshot verbatim. Redo re-executes the mark through the
// transition matrix.
// ══════════════════════════════════════════════════════════════════════════════

// maxStackRaces bounds how often Undo/Redo start over because another
// subject's action landed on the stack while we were taking the lock.
const maxStackRaces = 8

// HistoryResult describes an applied undo or redo.
type HistoryResult struct {
	Action attendance.Action

	// Counters are the subject counters after the operation.
	Counters attendance.Counters

	// Record is the record left for (subject, date); nil when undo removed it.
	Record *attendance.Record
}

// Undo reverts the most recent mark. ok is false when there is nothing to
// undo. On error the ledger is left as it was.
func (e *Engine) Undo(ctx context.Context) (*HistoryResult, bool, error) {
	defer e.metrics.Time("undo")()

	for i := 0; i < maxStackRaces; i++ {
		top, ok := e.ledger.PeekUndo()
		if !ok {
			e.metrics.ObserveHistory("undo", "empty")
			return nil, false, nil
		}

		unlock, err := e.lockSubject(ctx, "Undo", top.SubjectID)
		if err != nil {
			e.metrics.ObserveHistory("undo", "failed")
			return nil, false, err
		}

		action, ok := e.ledger.Undo()
		if !ok {
			unlock()
			e.metrics.ObserveHistory("undo", "empty")
			return nil, false, nil
		}
		if action.Seq != top.Seq {
			// The top changed before we held its subject; put it back.
			e.ledger.CancelUndo(action.Seq)
			unlock()
			continue
		}

		res, err := e.restore(ctx, action)
		if err != nil {
			e.cancelUndo(action, err)
			unlock()
			e.metrics.ObserveHistory("undo", "failed")
			return nil, false, err
		}
		unlock()

		e.observeLedger()
		e.metrics.ObserveHistory("undo", "applied")
		e.logger.Info("mark undone",
			logger.Operation("undo"),
			logger.SubjectID(action.SubjectID),
			logger.Date(action.Date),
			logger.String("restored_status", action.OldStatus.String()),
		)
		status := ""
		if res.Record != nil {
			status = res.Record.Status.String()
		}
		e.publish(shared.EventAttendanceUndone, action.SubjectID, action.Date, status, res.Counters)
		return res, true, nil
	}

	e.metrics.ObserveHistory("undo", "failed")
	return nil, false, shared.ErrConcurrentModification
}

// restore writes the action's snapshot back: counters verbatim and the old
// record (or no record) for the date, in one transaction.
func (e *Engine) restore(ctx context.Context, a attendance.Action) (*HistoryResult, error) {
	next := a.OldCounters()
	write := a.RestoreWrite()

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		sub, err := e.store.GetSubject(ctx, a.SubjectID)
		if err != nil {
			return storeError("Undo", err)
		}
		cw := &attendance.CounterWrite{SubjectID: a.SubjectID, Expected: sub.Counters(), Next: next}
		return storeError("Undo", e.store.WriteTransaction(ctx, write, cw))
	})
	if err != nil {
		return nil, err
	}

	res := &HistoryResult{Action: a, Counters: next}
	if write.Op == attendance.WritePut {
		rec := write.Record
		res.Record = &rec
	}
	return res, nil
}

func (e *Engine) cancelUndo(a attendance.Action, cause error) {
	if shared.IsNotFound(cause) {
		// The subject is gone; its entries can never be applied again.
		e.ledger.RemoveSubject(a.SubjectID)
		return
	}
	if !e.ledger.CancelUndo(a.Seq) {
		e.logger.Warn("undo failed and its entry could not be restored",
			logger.SubjectID(a.SubjectID),
			logger.Int64("seq", int64(a.Seq)),
		)
	}
}

// Redo re-applies the most recently undone mark. ok is false when there is
// nothing to redo. No new ledger entry is recorded: the entry is already
// back on the undo stack.
func (e *Engine) Redo(ctx context.Context) (*HistoryResult, bool, error) {
	defer e.metrics.Time("redo")()

	for i := 0; i < maxStackRaces; i++ {
		top, ok := e.ledger.PeekRedo()
		if !ok {
			e.metrics.ObserveHistory("redo", "empty")
			return nil, false, nil
		}

		unlock, err := e.lockSubject(ctx, "Redo", top.SubjectID)
		if err != nil {
			e.metrics.ObserveHistory("redo", "failed")
			return nil, false, err
		}

		action, ok := e.ledger.Redo()
		if !ok {
			unlock()
			e.metrics.ObserveHistory("redo", "empty")
			return nil, false, nil
		}
		if action.Seq != top.Seq {
			e.ledger.CancelRedo(action.Seq)
			unlock()
			continue
		}

		t, err := e.reconcile(ctx, "Redo", action.SubjectID, action.Date, action.NewStatus)
		if err != nil {
			e.cancelRedo(action, err)
			unlock()
			e.metrics.ObserveHistory("redo", "failed")
			return nil, false, err
		}
		unlock()

		e.observeLedger()
		e.metrics.ObserveHistory("redo", "applied")
		e.logger.Info("mark redone",
			logger.Operation("redo"),
			logger.SubjectID(action.SubjectID),
			logger.Date(action.Date),
			logger.Status(action.NewStatus),
		)
		e.publish(shared.EventAttendanceRedone, action.SubjectID, action.Date, action.NewStatus.String(), t.After)

		rec := t.Record
		return &HistoryResult{Action: action, Counters: t.After, Record: &rec}, true, nil
	}

	e.metrics.ObserveHistory("redo", "failed")
	return nil, false, shared.ErrConcurrentModification
}

func (e *Engine) cancelRedo(a attendance.Action, cause error) {
	if shared.IsNotFound(cause) {
		e.ledger.RemoveSubject(a.SubjectID)
		return
	}
	if !e.ledger.CancelRedo(a.Seq) {
		e.logger.Warn("redo failed and its entry could not be restored",
			logger.SubjectID(a.SubjectID),
			logger.Int64("seq", int64(a.Seq)),
		)
	}
}

// History returns the current undo and redo stacks, tops first.
func (e *Engine) History() ledger.State {
	return e.ledger.Snapshot()
}

// ClearHistory empties the ledger. Stored data is not touched.
func (e *Engine) ClearHistory() {
	e.ledger.Clear()
	e.observeLedger()
}
