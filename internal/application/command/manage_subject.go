package command

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/lock"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT MANAGEMENT
// Create, update and delete subjects and folders, and set weekly schedules.
// Counters are never written here.
// ══════════════════════════════════════════════════════════════════════════════

// SubjectHandler handles subject lifecycle commands.
type SubjectHandler struct {
	store     attendance.Store
	ledger    *ledger.Ledger
	locker    lock.Locker
	publisher shared.EventPublisher
	logger    *logger.Logger
}

// NewSubjectHandler creates a SubjectHandler. Pass the same Ledger and
// Locker as the Engine so deletes purge history and exclude in-flight marks.
func NewSubjectHandler(deps Deps) *SubjectHandler {
	deps = deps.withDefaults()
	return &SubjectHandler{
		store:     deps.Store,
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		logger:    deps.Logger.With(logger.Component("subjects")),
	}
}

// CreateSubjectCommand contains the data for a new subject or folder.
type CreateSubjectCommand struct {
	Name string

	// RequiredAttendance defaults to attendance.DefaultRequiredAttendance.
	RequiredAttendance *int

	// ParentID places the subject inside a folder.
	ParentID string

	IsFolder bool
}

// Create creates a subject with zeroed counters.
func (h *SubjectHandler) Create(ctx context.Context, cmd CreateSubjectCommand) (*attendance.Subject, error) {
	required := attendance.DefaultRequiredAttendance
	if cmd.RequiredAttendance != nil {
		required = *cmd.RequiredAttendance
	}

	sub, err := attendance.NewSubject(uuid.NewString(), cmd.Name, required, cmd.ParentID, cmd.IsFolder)
	if err != nil {
		return nil, err
	}
	if err := h.checkParent(ctx, sub.ParentID); err != nil {
		return nil, err
	}

	if err := h.store.CreateSubject(ctx, sub); err != nil {
		return nil, storeError("CreateSubject", err)
	}

	h.logger.Info("subject created",
		logger.SubjectID(sub.ID),
		logger.String("name", sub.Name),
		logger.Bool("is_folder", sub.IsFolder),
	)
	publish(h.publisher, h.logger, shared.NewSubjectChangedEvent(shared.EventSubjectCreated, sub.ID, "", "", 0, 0))
	return sub, nil
}

// UpdateSubjectCommand changes a subject's metadata. Nil fields are left
// as they are; an empty ParentID moves the subject to the top level.
type UpdateSubjectCommand struct {
	ID                 string
	Name               *string
	RequiredAttendance *int
	ParentID           *string
}

// Update applies cmd and returns the stored subject.
func (h *SubjectHandler) Update(ctx context.Context, cmd UpdateSubjectCommand) (*attendance.Subject, error) {
	sub, err := h.store.GetSubject(ctx, cmd.ID)
	if err != nil {
		return nil, storeError("UpdateSubject", err)
	}

	if cmd.Name != nil {
		sub.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.RequiredAttendance != nil {
		sub.RequiredAttendance = *cmd.RequiredAttendance
	}
	if cmd.ParentID != nil && *cmd.ParentID != sub.ParentID {
		if *cmd.ParentID == sub.ID {
			return nil, shared.ErrParentNotFolder
		}
		sub.ParentID = *cmd.ParentID
		if err := h.checkParent(ctx, sub.ParentID); err != nil {
			return nil, err
		}
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	sub.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateSubject(ctx, sub); err != nil {
		return nil, storeError("UpdateSubject", err)
	}

	fresh, err := h.store.GetSubject(ctx, sub.ID)
	if err != nil {
		return nil, storeError("UpdateSubject", err)
	}
	publish(h.publisher, h.logger, shared.NewSubjectChangedEvent(shared.EventSubjectUpdated, fresh.ID, "", "", fresh.PresentCount, fresh.AbsentCount))
	return fresh, nil
}

// Delete removes a subject with its records and schedule. Deleting a folder
// removes the subjects inside it too. Ledger entries for every removed
// subject are purged. It returns the ids that were removed.
func (h *SubjectHandler) Delete(ctx context.Context, id string) ([]string, error) {
	sub, err := h.store.GetSubject(ctx, id)
	if err != nil {
		return nil, storeError("DeleteSubject", err)
	}

	ids := []string{id}
	if sub.IsFolder {
		children, err := h.store.ListSubjects(ctx, attendance.SubjectFilter{ParentID: id})
		if err != nil {
			return nil, storeError("DeleteSubject", err)
		}
		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)

	// Lock in a fixed order; marks take a single subject lock so this
	// cannot deadlock with them.
	unlocks := make([]lock.Unlock, 0, len(ids))
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()
	for _, sid := range ids {
		unlock, err := h.locker.Lock(ctx, sid)
		if err != nil {
			return nil, storeError("DeleteSubject", err)
		}
		unlocks = append(unlocks, unlock)
	}

	if err := h.store.DeleteSubject(ctx, id); err != nil {
		return nil, storeError("DeleteSubject", err)
	}

	purged := 0
	for _, sid := range ids {
		purged += h.ledger.RemoveSubject(sid)
		publish(h.publisher, h.logger, shared.NewSubjectChangedEvent(shared.EventSubjectDeleted, sid, "", "", 0, 0))
	}

	h.logger.Info("subject deleted",
		logger.SubjectID(id),
		logger.Int("removed_subjects", len(ids)),
		logger.Int("purged_history", purged),
	)
	return ids, nil
}

// List returns subjects, optionally restricted to one folder or the top
// level.
func (h *SubjectHandler) List(ctx context.Context, filter attendance.SubjectFilter) ([]*attendance.Subject, error) {
	subs, err := h.store.ListSubjects(ctx, filter)
	if err != nil {
		return nil, storeError("ListSubjects", err)
	}
	return subs, nil
}

// SetScheduleCommand replaces the weekdays a subject meets on.
type SetScheduleCommand struct {
	SubjectID string
	Weekdays  []time.Weekday
}

// SetSchedule replaces the subject's schedule. Duplicate weekdays collapse.
func (h *SubjectHandler) SetSchedule(ctx context.Context, cmd SetScheduleCommand) ([]attendance.ScheduleEntry, error) {
	sub, err := h.store.GetSubject(ctx, cmd.SubjectID)
	if err != nil {
		return nil, storeError("SetSchedule", err)
	}
	if sub.IsFolder {
		return nil, shared.NewDomainError("schedule", "SetSchedule", shared.ErrInvalidInput, "folders have no schedule")
	}

	seen := make(map[time.Weekday]bool, len(cmd.Weekdays))
	entries := make([]attendance.ScheduleEntry, 0, len(cmd.Weekdays))
	for _, wd := range cmd.Weekdays {
		e := attendance.ScheduleEntry{SubjectID: sub.ID, Weekday: wd, IsScheduled: true}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[wd] {
			continue
		}
		seen[wd] = true
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Weekday < entries[j].Weekday })

	if err := h.store.SetSchedule(ctx, sub.ID, entries); err != nil {
		return nil, storeError("SetSchedule", err)
	}

	publish(h.publisher, h.logger, shared.NewSubjectChangedEvent(shared.EventScheduleChanged, sub.ID, "", "", sub.PresentCount, sub.AbsentCount))
	return entries, nil
}

func (h *SubjectHandler) checkParent(ctx context.Context, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := h.store.GetSubject(ctx, parentID)
	if err != nil {
		return storeError("CheckParent", err)
	}
	if !parent.IsFolder {
		return shared.ErrParentNotFolder
	}
	return nil
}
