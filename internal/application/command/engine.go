// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/lock"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/retry"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Deps are the collaborators shared by the command handlers. Only Store is
// required; everything else has a working default.
type Deps struct {
	Store     attendance.Store
	Ledger    *ledger.Ledger
	Locker    lock.Locker
	Publisher shared.EventPublisher
	Retrier   *retry.Retrier
	Clock     timeutil.Clock
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Ledger == nil {
		d.Ledger = ledger.New(0)
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Retrier == nil {
		m, log := d.Metrics, d.Logger
		d.Retrier = retry.StoreRetrier(shared.IsRetryable, retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			m.ObserveConflictRetry()
			log.Debug("retrying after counter conflict",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}))
	}
	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine is the status transition engine. Every write to a subject's
// records runs under that subject's lock, so the ledger sees actions in the
// order their counter writes committed.
type Engine struct {
	store     attendance.Store
	ledger    *ledger.Ledger
	locker    lock.Locker
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	clock     timeutil.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates an Engine.
func NewEngine(deps Deps) *Engine {
	deps = deps.withDefaults()
	return &Engine{
		store:     deps.Store,
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		retrier:   deps.Retrier,
		clock:     deps.Clock,
		logger:    deps.Logger.With(logger.Component("engine")),
		metrics:   deps.Metrics,
	}
}

// Ledger returns the session ledger the engine records into.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// reconcile runs the read-compute-write for one mark. The caller holds the
// subject lock. Counter conflicts from other processes are retried.
func (e *Engine) reconcile(ctx context.Context, op, subjectID string, date time.Time, status attendance.Status) (attendance.Transition, error) {
	var result attendance.Transition

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		sub, err := e.store.GetSubject(ctx, subjectID)
		if err != nil {
			return storeError(op, err)
		}
		if sub.IsFolder {
			return shared.ErrFolderNotAttendable
		}

		old, err := e.store.GetRecord(ctx, subjectID, date)
		if err != nil {
			return storeError(op, err)
		}

		t, err := attendance.Plan(sub, old, date, status)
		if err != nil {
			return err
		}

		write := &attendance.CounterWrite{SubjectID: subjectID, Expected: t.Before, Next: t.After}
		if err := e.store.WriteTransaction(ctx, attendance.PutRecordWrite(t.Record), write); err != nil {
			return storeError(op, err)
		}

		result = t
		return nil
	})
	return result, err
}

func (e *Engine) lockSubject(ctx context.Context, op, subjectID string) (lock.Unlock, error) {
	unlock, err := e.locker.Lock(ctx, subjectID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, shared.WrapError("attendance", op, shared.ErrPersistence, "acquire subject lock", err)
	}
	return unlock, nil
}

func (e *Engine) publish(eventType shared.EventType, subjectID string, date time.Time, status string, c attendance.Counters) {
	publish(e.publisher, e.logger, shared.NewSubjectChangedEvent(eventType, subjectID, timeutil.FormatDate(date), status, c.Present, c.Absent))
}

func (e *Engine) observeLedger() {
	undo, redo := e.ledger.Depth()
	e.metrics.SetLedgerDepth(undo, redo)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// storeError passes domain errors through and wraps everything else as a
// persistence failure.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsNotFound(err), shared.IsRetryable(err), shared.IsReconciliation(err),
		shared.IsValidation(err), shared.IsAlreadyExists(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return shared.WrapError("attendance", op, shared.ErrPersistence, "entity store failure", err)
	}
}

// failureReason maps an error to a metrics label.
func failureReason(err error) string {
	switch {
	case shared.IsNotFound(err):
		return "not_found"
	case shared.IsValidation(err):
		return "invalid"
	case shared.IsReconciliation(err):
		return "reconciliation"
	case shared.IsRetryable(err):
		return "conflict"
	case shared.IsPersistence(err):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func publish(p shared.EventPublisher, log *logger.Logger, event shared.Event) {
	if err := p.Publish(event); err != nil {
		log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.SubjectID(event.AggregateID()),
			logger.Err(err),
		)
	}
}
