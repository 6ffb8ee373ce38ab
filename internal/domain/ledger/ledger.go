// Package ledger holds the session-scoped undo/redo history of attendance
// marks. Entries are immutable snapshots; the ledger never touches storage.
package ledger

import (
	"sync"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
)

// Ledger is a pair of LIFO stacks laid out in one slice: entries[:cursor]
// is the undo stack (top at cursor-1) and entries[cursor:] is the redo
// stack (top at cursor). Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	entries  []attendance.Action
	cursor   int
	nextSeq  uint64
	maxDepth int
}

// New creates a ledger. maxDepth <= 0 means unbounded; otherwise the oldest
// undo entries are dropped once the undo stack grows past maxDepth.
func New(maxDepth int) *Ledger {
	return &Ledger{maxDepth: maxDepth, nextSeq: 1}
}

// RecordAction pushes a freshly committed mark onto the undo stack and
// discards the redo stack. The stored copy, with its sequence number, is
// returned.
func (l *Ledger) RecordAction(a attendance.Action) attendance.Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	a.Seq = l.nextSeq
	l.nextSeq++

	l.entries = append(l.entries[:l.cursor], a)
	l.cursor++

	if l.maxDepth > 0 && l.cursor > l.maxDepth {
		drop := l.cursor - l.maxDepth
		l.entries = append(l.entries[:0], l.entries[drop:]...)
		l.cursor -= drop
	}
	return a
}

// Undo pops the top of the undo stack and moves it to the redo stack.
func (l *Ledger) Undo() (attendance.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == 0 {
		return attendance.Action{}, false
	}
	l.cursor--
	return l.entries[l.cursor], true
}

// Redo pops the top of the redo stack and moves it back to the undo stack.
func (l *Ledger) Redo() (attendance.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == len(l.entries) {
		return attendance.Action{}, false
	}
	a := l.entries[l.cursor]
	l.cursor++
	return a, true
}

// PeekUndo returns the top of the undo stack without moving it.
func (l *Ledger) PeekUndo() (attendance.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == 0 {
		return attendance.Action{}, false
	}
	return l.entries[l.cursor-1], true
}

// PeekRedo returns the top of the redo stack without moving it.
func (l *Ledger) PeekRedo() (attendance.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == len(l.entries) {
		return attendance.Action{}, false
	}
	return l.entries[l.cursor], true
}

// CancelUndo reverts a prior Undo whose write failed. It succeeds only while
// seq is still on top of the redo stack; if the stacks moved in between the
// entry stays where it is and false is returned.
func (l *Ledger) CancelUndo(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor < len(l.entries) && l.entries[l.cursor].Seq == seq {
		l.cursor++
		return true
	}
	return false
}

// CancelRedo reverts a prior Redo whose write failed, under the same
// conditions as CancelUndo.
func (l *Ledger) CancelRedo(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor > 0 && l.entries[l.cursor-1].Seq == seq {
		l.cursor--
		return true
	}
	return false
}

// CanUndo reports whether the undo stack is non-empty.
func (l *Ledger) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (l *Ledger) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)
}

// Depth returns the sizes of the undo and redo stacks.
func (l *Ledger) Depth() (undo, redo int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor, len(l.entries) - l.cursor
}

// Clear empties both stacks.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.cursor = 0
}

// RemoveSubject drops every entry that refers to subjectID, e.g. after the
// subject was deleted. It returns the number of entries removed.
func (l *Ledger) RemoveSubject(subjectID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	cursor := l.cursor
	removed := 0
	for i, a := range l.entries {
		if a.SubjectID == subjectID {
			removed++
			if i < l.cursor {
				cursor--
			}
			continue
		}
		kept = append(kept, a)
	}
	l.entries = kept
	l.cursor = cursor
	return removed
}

// State is a point-in-time view of both stacks, tops first.
type State struct {
	Undo []attendance.Action `json:"undo"`
	Redo []attendance.Action `json:"redo"`
}

// CanUndo reports whether the undo stack was non-empty.
func (s State) CanUndo() bool { return len(s.Undo) > 0 }

// CanRedo reports whether the redo stack was non-empty.
func (s State) CanRedo() bool { return len(s.Redo) > 0 }

// Snapshot copies both stacks.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := State{
		Undo: make([]attendance.Action, 0, l.cursor),
		Redo: make([]attendance.Action, 0, len(l.entries)-l.cursor),
	}
	for i := l.cursor - 1; i >= 0; i-- {
		st.Undo = append(st.Undo, l.entries[i])
	}
	st.Redo = append(st.Redo, l.entries[l.cursor:]...)
	return st
}
