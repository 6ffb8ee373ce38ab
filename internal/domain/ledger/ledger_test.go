package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

func action(subject string, day int, status attendance.Status) attendance.Action {
	return attendance.NewAction(subject, timeutil.Date(2026, 10, day), nil, status, attendance.Counters{})
}

func TestLedger_UndoRedoOrder(t *testing.T) {
	l := New(0)
	a1 := l.RecordAction(action("s", 1, attendance.StatusPresent))
	a2 := l.RecordAction(action("s", 2, attendance.StatusAbsent))

	assert.NotEqual(t, a1.Seq, a2.Seq)

	got, ok := l.Undo()
	require.True(t, ok)
	assert.Equal(t, a2, got)

	got, ok = l.Undo()
	require.True(t, ok)
	assert.Equal(t, a1, got)

	_, ok = l.Undo()
	assert.False(t, ok)

	got, ok = l.Redo()
	require.True(t, ok)
	assert.Equal(t, a1, got)

	got, ok = l.Redo()
	require.True(t, ok)
	assert.Equal(t, a2, got)

	_, ok = l.Redo()
	assert.False(t, ok)
}

func TestLedger_RecordClearsRedo(t *testing.T) {
	l := New(0)
	l.RecordAction(action("s", 1, attendance.StatusPresent))
	l.RecordAction(action("s", 2, attendance.StatusPresent))
	_, _ = l.Undo()
	require.True(t, l.CanRedo())

	l.RecordAction(action("s", 3, attendance.StatusAbsent))
	assert.False(t, l.CanRedo())

	st := l.Snapshot()
	require.Len(t, st.Undo, 2)
	assert.Equal(t, timeutil.Date(2026, 10, 3), st.Undo[0].Date)
	assert.Equal(t, timeutil.Date(2026, 10, 1), st.Undo[1].Date)
}

func TestLedger_EmptyIsNoop(t *testing.T) {
	l := New(0)
	assert.False(t, l.CanUndo())
	assert.False(t, l.CanRedo())

	_, ok := l.Undo()
	assert.False(t, ok)
	_, ok = l.Redo()
	assert.False(t, ok)
}

func TestLedger_CancelUndo(t *testing.T) {
	l := New(0)
	l.RecordAction(action("s", 1, attendance.StatusPresent))

	a, ok := l.Undo()
	require.True(t, ok)
	assert.True(t, l.CancelUndo(a.Seq))
	assert.True(t, l.CanUndo())
	assert.False(t, l.CanRedo())

	// Once a new mark discarded the redo stack there is nothing to cancel.
	a, _ = l.Undo()
	l.RecordAction(action("s", 2, attendance.StatusAbsent))
	assert.False(t, l.CancelUndo(a.Seq))
}

func TestLedger_CancelRedo(t *testing.T) {
	l := New(0)
	l.RecordAction(action("s", 1, attendance.StatusPresent))
	_, _ = l.Undo()

	a, ok := l.Redo()
	require.True(t, ok)
	assert.True(t, l.CancelRedo(a.Seq))
	assert.True(t, l.CanRedo())
	assert.False(t, l.CanUndo())
	assert.False(t, l.CancelRedo(a.Seq))
}

func TestLedger_MaxDepthDropsOldest(t *testing.T) {
	l := New(2)
	l.RecordAction(action("s", 1, attendance.StatusPresent))
	l.RecordAction(action("s", 2, attendance.StatusPresent))
	l.RecordAction(action("s", 3, attendance.StatusPresent))

	st := l.Snapshot()
	require.Len(t, st.Undo, 2)
	assert.Equal(t, timeutil.Date(2026, 10, 3), st.Undo[0].Date)
	assert.Equal(t, timeutil.Date(2026, 10, 2), st.Undo[1].Date)
}

func TestLedger_RemoveSubject(t *testing.T) {
	l := New(0)
	l.RecordAction(action("a", 1, attendance.StatusPresent))
	l.RecordAction(action("b", 2, attendance.StatusPresent))
	l.RecordAction(action("a", 3, attendance.StatusPresent))
	l.RecordAction(action("b", 4, attendance.StatusPresent))
	_, _ = l.Undo() // b/4 moves to redo

	assert.Equal(t, 2, l.RemoveSubject("a"))

	st := l.Snapshot()
	require.Len(t, st.Undo, 1)
	require.Len(t, st.Redo, 1)
	assert.Equal(t, "b", st.Undo[0].SubjectID)
	assert.Equal(t, timeutil.Date(2026, 10, 4), st.Redo[0].Date)
}

func TestLedger_Clear(t *testing.T) {
	l := New(0)
	l.RecordAction(action("s", 1, attendance.StatusPresent))
	l.RecordAction(action("s", 2, attendance.StatusPresent))
	_, _ = l.Undo()

	l.Clear()
	assert.False(t, l.CanUndo())
	assert.False(t, l.CanRedo())
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.RecordAction(action("s", i%28+1, attendance.StatusPresent))
		}(i)
	}
	wg.Wait()

	st := l.Snapshot()
	assert.Len(t, st.Undo, 50)
	seen := make(map[uint64]bool)
	for _, a := range st.Undo {
		assert.False(t, seen[a.Seq])
		seen[a.Seq] = true
	}
}

func TestLedger_PeekAndDepth(t *testing.T) {
	l := New(0)
	_, ok := l.PeekUndo()
	assert.False(t, ok)
	_, ok = l.PeekRedo()
	assert.False(t, ok)

	a1 := l.RecordAction(action("s", 1, attendance.StatusPresent))
	a2 := l.RecordAction(action("s", 2, attendance.StatusAbsent))

	top, ok := l.PeekUndo()
	require.True(t, ok)
	assert.Equal(t, a2.Seq, top.Seq)

	undo, redo := l.Depth()
	assert.Equal(t, 2, undo)
	assert.Equal(t, 0, redo)

	l.Undo()
	top, ok = l.PeekRedo()
	require.True(t, ok)
	assert.Equal(t, a2.Seq, top.Seq)
	top, ok = l.PeekUndo()
	require.True(t, ok)
	assert.Equal(t, a1.Seq, top.Seq)

	undo, redo = l.Depth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 1, redo)
}
