package eventhandler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/messaging"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
)

type fakeSubjects struct {
	mu   sync.Mutex
	subs map[string]*attendance.Subject
	err  error
}

func (f *fakeSubjects) GetSubject(_ context.Context, id string) (*attendance.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubjects) set(id string, required, present, absent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &attendance.Subject{ID: id, Name: id, RequiredAttendance: required}
	s.SetCounters(attendance.Counters{Present: present, Absent: absent})
	f.subs[id] = s
}

func marked(id string) shared.Event {
	return shared.NewSubjectChangedEvent(shared.EventAttendanceMarked, id, "2026-10-14", "present", 0, 0)
}

func TestOnAttendanceChanged_ReportsCrossings(t *testing.T) {
	store := &fakeSubjects{subs: map[string]*attendance.Subject{}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := NewOnAttendanceChangedHandler(store, m, nil)

	var got []Crossing
	h.OnCrossing = func(c Crossing) { got = append(got, c) }

	// First sighting only records the standing.
	store.set("physics", 75, 3, 1)
	require.NoError(t, h.Handle(marked("physics")))
	assert.Empty(t, got)

	// 3 of 5 is 60%, below 75%.
	store.set("physics", 75, 3, 2)
	require.NoError(t, h.Handle(marked("physics")))
	require.Len(t, got, 1)
	assert.Equal(t, DirectionBelow, got[0].Direction)
	assert.InDelta(t, 60.0, got[0].Percent, 0.001)
	assert.Equal(t, 75, got[0].Required)

	// Still below: no new crossing.
	store.set("physics", 75, 3, 3)
	require.NoError(t, h.Handle(marked("physics")))
	assert.Len(t, got, 1)

	// Lowering the requirement recovers the subject.
	store.set("physics", 50, 3, 3)
	require.NoError(t, h.Handle(shared.NewSubjectChangedEvent(shared.EventSubjectUpdated, "physics", "", "", 3, 3)))
	require.Len(t, got, 2)
	assert.Equal(t, DirectionRecovered, got[1].Direction)

	expected := `
# HELP attendance_threshold_crossings_total Subjects crossing their required attendance (direction is below or recovered).
# TYPE attendance_threshold_crossings_total counter
attendance_threshold_crossings_total{direction="below"} 1
attendance_threshold_crossings_total{direction="recovered"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "attendance_threshold_crossings_total"))
}

func TestOnAttendanceChanged_ForgetsDeletedSubjects(t *testing.T) {
	store := &fakeSubjects{subs: map[string]*attendance.Subject{}}
	h := NewOnAttendanceChangedHandler(store, nil, nil)
	var crossings int
	h.OnCrossing = func(Crossing) { crossings++ }

	store.set("math", 75, 4, 0)
	require.NoError(t, h.Handle(marked("math")))
	require.NoError(t, h.Handle(shared.NewSubjectChangedEvent(shared.EventSubjectDeleted, "math", "", "", 0, 0)))

	// After deletion the next event is a first sighting again.
	store.set("math", 75, 0, 4)
	require.NoError(t, h.Handle(marked("math")))
	assert.Zero(t, crossings)

	// Unknown subjects are ignored.
	assert.NoError(t, h.Handle(marked("ghost")))
}

func TestOnAttendanceChanged_StoreErrorIsReturned(t *testing.T) {
	boom := errors.New("db down")
	h := NewOnAttendanceChangedHandler(&fakeSubjects{err: boom}, nil, nil)
	assert.ErrorIs(t, h.Handle(marked("x")), boom)
}

func TestOnAttendanceChanged_RegisterOnBus(t *testing.T) {
	store := &fakeSubjects{subs: map[string]*attendance.Subject{}}
	h := NewOnAttendanceChangedHandler(store, nil, nil)
	var crossings int
	h.OnCrossing = func(Crossing) { crossings++ }

	cfg := messaging.DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	bus := messaging.NewInMemoryEventBus(cfg)
	defer bus.Close()
	require.NoError(t, h.Register(bus))

	store.set("chem", 75, 1, 0)
	require.NoError(t, bus.Publish(marked("chem")))
	store.set("chem", 75, 1, 1)
	require.NoError(t, bus.Publish(shared.NewSubjectChangedEvent(shared.EventAttendanceUndone, "chem", "2026-10-14", "", 1, 1)))

	assert.Equal(t, 1, crossings)
}
