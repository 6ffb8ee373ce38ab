package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestSubjectHandler_Create(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "  Physics  "})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "Physics", sub.Name)
	assert.Equal(t, attendance.DefaultRequiredAttendance, sub.RequiredAttendance)
	assert.Equal(t, attendance.Counters{}, sub.Counters())

	zero, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Optional", RequiredAttendance: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, zero.RequiredAttendance)

	tests := []struct {
		name string
		cmd  CreateSubjectCommand
		want error
	}{
		{"empty name", CreateSubjectCommand{Name: " "}, shared.ErrEmptySubjectName},
		{"threshold above 100", CreateSubjectCommand{Name: "x", RequiredAttendance: intPtr(101)}, shared.ErrInvalidThreshold},
		{"threshold below 0", CreateSubjectCommand{Name: "x", RequiredAttendance: intPtr(-1)}, shared.ErrInvalidThreshold},
		{"parent is not a folder", CreateSubjectCommand{Name: "x", ParentID: sub.ID}, shared.ErrParentNotFolder},
		{"parent missing", CreateSubjectCommand{Name: "x", ParentID: "nope"}, shared.ErrSubjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.subjects.Create(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubjectHandler_FoldersNestOneLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	folder, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Semester 1", IsFolder: true})
	require.NoError(t, err)

	child, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Physics", ParentID: folder.ID})
	require.NoError(t, err)
	assert.Equal(t, folder.ID, child.ParentID)

	_, err = h.subjects.Create(ctx, CreateSubjectCommand{Name: "Nested", ParentID: folder.ID, IsFolder: true})
	assert.ErrorIs(t, err, shared.ErrFolderNesting)

	listed, err := h.subjects.List(ctx, attendance.SubjectFilter{ParentID: folder.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, child.ID, listed[0].ID)

	roots, err := h.subjects.List(ctx, attendance.SubjectFilter{OnlyRoots: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, folder.ID, roots[0].ID)
}

func TestSubjectHandler_UpdateKeepsCounters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.subject(t, "Physics")
	folder, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Year 2", IsFolder: true})
	require.NoError(t, err)
	h.mark(t, sub.ID, today, attendance.StatusPresent)

	updated, err := h.subjects.Update(ctx, UpdateSubjectCommand{
		ID:                 sub.ID,
		Name:               strPtr("Physics II"),
		RequiredAttendance: intPtr(80),
		ParentID:           strPtr(folder.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, "Physics II", updated.Name)
	assert.Equal(t, 80, updated.RequiredAttendance)
	assert.Equal(t, folder.ID, updated.ParentID)
	assert.Equal(t, attendance.Counters{Present: 1}, updated.Counters())

	_, err = h.subjects.Update(ctx, UpdateSubjectCommand{ID: sub.ID, RequiredAttendance: intPtr(120)})
	assert.ErrorIs(t, err, shared.ErrInvalidThreshold)

	_, err = h.subjects.Update(ctx, UpdateSubjectCommand{ID: folder.ID, ParentID: strPtr(folder.ID)})
	assert.ErrorIs(t, err, shared.ErrParentNotFolder)

	_, err = h.subjects.Update(ctx, UpdateSubjectCommand{ID: "missing", Name: strPtr("x")})
	assert.True(t, shared.IsNotFound(err))
}

func TestSubjectHandler_DeletePurgesHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	folder, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Semester", IsFolder: true})
	require.NoError(t, err)
	inside, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "Inside", ParentID: folder.ID})
	require.NoError(t, err)
	other := h.subject(t, "Other")

	h.mark(t, inside.ID, today, attendance.StatusPresent)
	h.mark(t, other.ID, today, attendance.StatusAbsent)
	h.mark(t, inside.ID, today, attendance.StatusPresent)

	ids, err := h.subjects.Delete(ctx, folder.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{folder.ID, inside.ID}, ids)

	_, err = h.store.GetSubject(ctx, inside.ID)
	assert.True(t, shared.IsNotFound(err))

	st := h.engine.History()
	require.Len(t, st.Undo, 1)
	assert.Equal(t, other.ID, st.Undo[0].SubjectID)

	res, ok, err := h.engine.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, other.ID, res.Action.SubjectID)

	_, err = h.subjects.Delete(ctx, folder.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestSubjectHandler_SetSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.subject(t, "Physics")

	entries, err := h.subjects.SetSchedule(ctx, SetScheduleCommand{
		SubjectID: sub.ID,
		Weekdays:  []time.Weekday{time.Wednesday, time.Monday, time.Wednesday},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, time.Monday, entries[0].Weekday)
	assert.Equal(t, time.Wednesday, entries[1].Weekday)

	stored, err := h.store.ListSchedule(ctx, attendance.ScheduleFilter{SubjectID: sub.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = h.subjects.SetSchedule(ctx, SetScheduleCommand{SubjectID: sub.ID, Weekdays: []time.Weekday{7}})
	assert.ErrorIs(t, err, shared.ErrInvalidWeekday)

	folder, err := h.subjects.Create(ctx, CreateSubjectCommand{Name: "F", IsFolder: true})
	require.NoError(t, err)
	_, err = h.subjects.SetSchedule(ctx, SetScheduleCommand{SubjectID: folder.ID, Weekdays: []time.Weekday{time.Monday}})
	assert.True(t, shared.IsValidation(err))

	assert.Contains(t, h.events.types(), shared.EventScheduleChanged)
}
