package command

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

var today = timeutil.Date(2026, 10, 14)

// ──────────────────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────────────────

// flakyStore fails writes on demand.
type flakyStore struct {
	*memory.Store
	failWrites   atomic.Bool
	conflicts    atomic.Int32 // next N writes report a counter conflict
	writeAttempt atomic.Int32
}

func (s *flakyStore) WriteTransaction(ctx context.Context, rec attendance.RecordWrite, cw *attendance.CounterWrite) error {
	s.writeAttempt.Add(1)
	if s.failWrites.Load() {
		return errors.New("disk full")
	}
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return shared.ErrConcurrentModification
	}
	return s.Store.WriteTransaction(ctx, rec, cw)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// harness
// ──────────────────────────────────────────────────────────────────────────────

type harness struct {
	store    *flakyStore
	engine   *Engine
	subjects *SubjectHandler
	events   *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &flakyStore{Store: memory.New()}
	pub := &recordingPublisher{}
	deps := Deps{
		Store:     store,
		Ledger:    ledger.New(0),
		Publisher: pub,
		Clock:     timeutil.FixedClock{At: today.Add(15 * time.Hour)},
	}
	return &harness{
		store:    store,
		engine:   NewEngine(deps),
		subjects: NewSubjectHandler(deps),
		events:   pub,
	}
}

func (h *harness) subject(t *testing.T, name string) *attendance.Subject {
	t.Helper()
	sub, err := h.subjects.Create(context.Background(), CreateSubjectCommand{Name: name})
	require.NoError(t, err)
	return sub
}

func (h *harness) mark(t *testing.T, id string, date time.Time, s attendance.Status) *MarkStatusResult {
	t.Helper()
	res, err := h.engine.MarkStatus(context.Background(), MarkStatusCommand{SubjectID: id, Date: date, Status: s})
	require.NoError(t, err)
	return res
}

func (h *harness) counters(t *testing.T, id string) attendance.Counters {
	t.Helper()
	sub, err := h.store.GetSubject(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, sub.PresentCount+sub.AbsentCount, sub.TotalCount, "total must equal present + absent")
	return sub.Counters()
}

func (h *harness) records(t *testing.T, id string) []attendance.Record {
	t.Helper()
	recs, err := h.store.ListRecords(context.Background(), attendance.RecordFilter{SubjectID: id})
	require.NoError(t, err)
	return recs
}

// countersFromRecords is what the counters must equal after any sequence of
// reconciled marks, undos and redos.
func countersFromRecords(recs []attendance.Record) attendance.Counters {
	var c attendance.Counters
	for _, r := range recs {
		c = c.Apply(attendance.CreateDelta(r.Status).Scale(r.RepeatCount))
	}
	return c
}

// ──────────────────────────────────────────────────────────────────────────────
// mark
// ──────────────────────────────────────────────────────────────────────────────

func TestMarkStatus_TransitionMatrix(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Physics")

	res := h.mark(t, sub.ID, today, attendance.StatusPresent)
	assert.Equal(t, attendance.TransitionCreate, res.Kind)
	assert.Equal(t, attendance.Counters{Present: 1}, h.counters(t, sub.ID))

	res = h.mark(t, sub.ID, today, attendance.StatusAbsent)
	assert.Equal(t, attendance.TransitionReplace, res.Kind)
	assert.Equal(t, attendance.Counters{Absent: 1}, h.counters(t, sub.ID))

	res = h.mark(t, sub.ID, today, attendance.StatusNoClass)
	assert.Equal(t, attendance.TransitionReplace, res.Kind)
	assert.Equal(t, attendance.Counters{}, h.counters(t, sub.ID))

	recs := h.records(t, sub.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.StatusNoClass, recs[0].Status)
	assert.Equal(t, 1, recs[0].RepeatCount)
}

func TestMarkStatus_RepeatAccumulates(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Chemistry")

	h.mark(t, sub.ID, today, attendance.StatusPresent)
	res := h.mark(t, sub.ID, today, attendance.StatusPresent)

	assert.Equal(t, attendance.TransitionRepeat, res.Kind)
	assert.Equal(t, 2, res.Record.RepeatCount)
	assert.Equal(t, attendance.Counters{Present: 2}, h.counters(t, sub.ID))

	// Replacing reverses the whole repeat count.
	h.mark(t, sub.ID, today, attendance.StatusAbsent)
	assert.Equal(t, attendance.Counters{Absent: 1}, h.counters(t, sub.ID))
}

func TestMarkStatus_ZeroDateMeansToday(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "History")

	res := h.mark(t, sub.ID, time.Time{}, attendance.StatusPresent)
	assert.Equal(t, today, res.Date)
	assert.Equal(t, today, res.Record.Date)
}

func TestMarkStatus_NormalizesDate(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "History")

	h.mark(t, sub.ID, today.Add(9*time.Hour), attendance.StatusPresent)
	h.mark(t, sub.ID, today.Add(20*time.Hour), attendance.StatusPresent)

	recs := h.records(t, sub.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].RepeatCount)
}

func TestMarkStatus_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.MarkStatus(ctx, MarkStatusCommand{SubjectID: "missing", Date: today, Status: attendance.StatusPresent})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.engine.MarkStatus(ctx, MarkStatusCommand{SubjectID: "x", Date: today})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = h.engine.MarkStatus(ctx, MarkStatusCommand{Date: today, Status: attendance.StatusPresent})
	assert.True(t, shared.IsValidation(err))

	folder, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Semester 1", IsFolder: true})
	require.NoError(t, err)
	_, err = h.engine.MarkStatus(ctx, MarkStatusCommand{SubjectID: folder.ID, Date: today, Status: attendance.StatusPresent})
	assert.ErrorIs(t, err, shared.ErrFolderNotAttendable)

	assert.False(t, h.engine.Ledger().CanUndo())
}

func TestMarkStatus_CorruptRecordFailsFast(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Biology")
	ctx := context.Background()

	corrupt := attendance.NewRecord(sub.ID, today, attendance.StatusPresent, 0)
	require.NoError(t, h.store.Store.WriteTransaction(ctx, attendance.PutRecordWrite(corrupt), nil))

	_, err := h.engine.MarkStatus(ctx, MarkStatusCommand{SubjectID: sub.ID, Date: today, Status: attendance.StatusAbsent})
	assert.True(t, shared.IsReconciliation(err))
	assert.Equal(t, attendance.Counters{}, h.counters(t, sub.ID))
	assert.False(t, h.engine.Ledger().CanUndo())
}

func TestMarkStatus_StoreFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Biology")
	h.mark(t, sub.ID, today, attendance.StatusPresent)

	h.store.failWrites.Store(true)
	_, err := h.engine.MarkStatus(context.Background(), MarkStatusCommand{SubjectID: sub.ID, Date: today, Status: attendance.StatusAbsent})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	assert.Equal(t, attendance.Counters{Present: 1}, h.counters(t, sub.ID))
	st := h.engine.History()
	assert.Len(t, st.Undo, 1)
	assert.Empty(t, st.Redo)
}

func TestMarkStatus_RetriesCounterConflicts(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Biology")

	h.store.conflicts.Store(2)
	h.store.writeAttempt.Store(0)
	h.mark(t, sub.ID, today, attendance.StatusPresent)

	assert.Equal(t, int32(3), h.store.writeAttempt.Load())
	assert.Equal(t, attendance.Counters{Present: 1}, h.counters(t, sub.ID))
	assert.Len(t, h.engine.History().Undo, 1)
}

func TestMarkStatus_GivesUpOnPersistentConflict(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Biology")

	h.store.conflicts.Store(100)
	_, err := h.engine.MarkStatus(context.Background(), MarkStatusCommand{SubjectID: sub.ID, Date: today, Status: attendance.StatusPresent})
	assert.True(t, shared.IsRetryable(err))
	assert.False(t, h.engine.Ledger().CanUndo())
}

func TestMarkStatus_PublishesEvent(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Art")
	h.mark(t, sub.ID, today, attendance.StatusPresent)

	require.Len(t, h.events.events, 2)
	ev, ok := h.events.events[1].(shared.SubjectChangedEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventAttendanceMarked, ev.EventType())
	assert.Equal(t, sub.ID, ev.AggregateID())
	assert.Equal(t, "2026-10-14", ev.Date)
	assert.Equal(t, 1, ev.PresentCount)
	assert.Equal(t, 1, ev.TotalCount)
}

func TestMarkStatus_ConcurrentMarksKeepInvariant(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Maths")
	ctx := context.Background()

	const workers = 24
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := attendance.StatusPresent
			if i%3 == 0 {
				status = attendance.StatusAbsent
			}
			_, err := h.engine.MarkStatus(ctx, MarkStatusCommand{
				SubjectID: sub.ID,
				Date:      timeutil.AddDays(today, -(i % 4)),
				Status:    status,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, countersFromRecords(h.records(t, sub.ID)), h.counters(t, sub.ID))
	assert.Len(t, h.engine.History().Undo, workers)

	// Undoing everything must land exactly on the empty state.
	for i := 0; i < workers; i++ {
		_, ok, err := h.engine.Undo(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, attendance.Counters{}, h.counters(t, sub.ID))
	assert.Empty(t, h.records(t, sub.ID))
}

// ──────────────────────────────────────────────────────────────────────────────
// set without reconciliation
// ──────────────────────────────────────────────────────────────────────────────

func TestSetStatusWithoutReconciliation(t *testing.T) {
	h := newHarness(t)
	sub := h.subject(t, "Music")
	ctx := context.Background()
	h.mark(t, sub.ID, today, attendance.StatusPresent)

	rec, err := h.engine.SetStatusWithoutReconciliation(ctx, SetStatusCommand{
		SubjectID: sub.ID, Date: today, Status: attendance.StatusAbsent, RepeatCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RepeatCount)

	assert.Equal(t, attendance.Counters{Present: 1}, h.counters(t, sub.ID))
	recs := h.records(t, sub.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.StatusAbsent, recs[0].Status)
	assert.Len(t, h.engine.History().Undo, 1)

	_, err = h.engine.SetStatusWithoutReconciliation(ctx, SetStatusCommand{
		SubjectID: sub.ID, Date: today, Status: attendance.StatusAbsent, RepeatCount: 0,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidRepeatCount)

	_, err = h.engine.SetStatusWithoutReconciliation(ctx, SetStatusCommand{
		SubjectID: "missing", Date: today, Status: attendance.StatusAbsent, RepeatCount: 1,
	})
	assert.True(t, shared.IsNotFound(err))
}

// ──────────────────────────────────────────────────────────────────────────────
// random walk
// ──────────────────────────────────────────────────────────────────────────────

func TestEngine_RandomWalkKeepsCountersConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	subs := []*attendance.Subject{h.subject(t, "A"), h.subject(t, "B")}
	statuses := []attendance.Status{attendance.StatusPresent, attendance.StatusAbsent, attendance.StatusNoClass}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 400; step++ {
		switch rng.Intn(5) {
		case 0:
			_, _, err := h.engine.Undo(ctx)
			require.NoError(t, err)
		case 1:
			_, _, err := h.engine.Redo(ctx)
			require.NoError(t, err)
		default:
			sub := subs[rng.Intn(len(subs))]
			h.mark(t, sub.ID, timeutil.AddDays(today, -rng.Intn(5)), statuses[rng.Intn(len(statuses))])
		}

		for _, sub := range subs {
			require.Equal(t, countersFromRecords(h.records(t, sub.ID)), h.counters(t, sub.ID),
				fmt.Sprintf("step %d subject %s", step, sub.Name))
		}
	}
}
