// Package memory is an in-process implementation of attendance.Store for
// tests and single-process development runs. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// Store keeps subjects, records and schedule entries in maps guarded by one
// RWMutex; WriteTransaction is atomic because it holds the write lock.
type Store struct {
	mu       sync.RWMutex
	subjects map[string]*attendance.Subject
	records  map[string]attendance.Record // keyed by RecordKey.String()
	schedule map[string][]attendance.ScheduleEntry
}

var _ attendance.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		subjects: make(map[string]*attendance.Subject),
		records:  make(map[string]attendance.Record),
		schedule: make(map[string][]attendance.ScheduleEntry),
	}
}

func copySubject(s *attendance.Subject) *attendance.Subject {
	c := *s
	return &c
}

// GetSubject implements attendance.Store.
func (s *Store) GetSubject(_ context.Context, id string) (*attendance.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subjects[id]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	return copySubject(sub), nil
}

// GetRecord implements attendance.Store.
func (s *Store) GetRecord(_ context.Context, subjectID string, date time.Time) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := attendance.RecordKey{SubjectID: subjectID, Date: timeutil.DateOf(date)}.String()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// WriteTransaction implements attendance.Store.
func (s *Store) WriteTransaction(_ context.Context, rec attendance.RecordWrite, counters *attendance.CounterWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before mutating anything.
	var sub *attendance.Subject
	if counters != nil {
		var ok bool
		sub, ok = s.subjects[counters.SubjectID]
		if !ok {
			return shared.ErrSubjectNotFound
		}
		if sub.Counters() != counters.Expected {
			return shared.ErrConcurrentModification
		}
	}
	if rec.Op == attendance.WritePut {
		if _, ok := s.subjects[rec.Record.SubjectID]; !ok {
			return shared.ErrSubjectNotFound
		}
	}

	key := rec.Record.Key().String()
	switch rec.Op {
	case attendance.WritePut:
		s.records[key] = attendance.NewRecord(rec.Record.SubjectID, rec.Record.Date, rec.Record.Status, rec.Record.RepeatCount)
	case attendance.WriteDelete:
		delete(s.records, key)
	}

	if sub != nil {
		sub.SetCounters(counters.Next)
		sub.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// DeleteRecord implements attendance.Store.
func (s *Store) DeleteRecord(_ context.Context, subjectID string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, attendance.RecordKey{SubjectID: subjectID, Date: timeutil.DateOf(date)}.String())
	return nil
}

// ListRecords implements attendance.Store.
func (s *Store) ListRecords(_ context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]attendance.Record, 0)
	for _, r := range s.records {
		if filter.SubjectID != "" && r.SubjectID != filter.SubjectID {
			continue
		}
		if !filter.From.IsZero() && r.Date.Before(timeutil.DateOf(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && r.Date.After(timeutil.DateOf(filter.To)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// ListSchedule implements attendance.Store.
func (s *Store) ListSchedule(_ context.Context, filter attendance.ScheduleFilter) ([]attendance.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]attendance.ScheduleEntry, 0)
	for subjectID, entries := range s.schedule {
		if filter.SubjectID != "" && subjectID != filter.SubjectID {
			continue
		}
		for _, e := range entries {
			if filter.Weekday != nil && e.Weekday != *filter.Weekday {
				continue
			}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID == out[j].SubjectID {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}

// CreateSubject implements attendance.SubjectStore.
func (s *Store) CreateSubject(_ context.Context, sub *attendance.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[sub.ID]; ok {
		return shared.ErrSubjectExists
	}
	if sub.ParentID != "" {
		if _, ok := s.subjects[sub.ParentID]; !ok {
			return shared.ErrSubjectNotFound
		}
	}
	s.subjects[sub.ID] = copySubject(sub)
	return nil
}

// UpdateSubject implements attendance.SubjectStore.
func (s *Store) UpdateSubject(_ context.Context, sub *attendance.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subjects[sub.ID]
	if !ok {
		return shared.ErrSubjectNotFound
	}
	cur.Name = sub.Name
	cur.RequiredAttendance = sub.RequiredAttendance
	cur.ParentID = sub.ParentID
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSubject implements attendance.SubjectStore. Deleting a folder also
// deletes the subjects inside it.
func (s *Store) DeleteSubject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[id]; !ok {
		return shared.ErrSubjectNotFound
	}

	doomed := map[string]bool{id: true}
	for cid, c := range s.subjects {
		if c.ParentID == id {
			doomed[cid] = true
		}
	}
	for sid := range doomed {
		delete(s.subjects, sid)
		delete(s.schedule, sid)
	}
	for key, r := range s.records {
		if doomed[r.SubjectID] {
			delete(s.records, key)
		}
	}
	return nil
}

// ListSubjects implements attendance.SubjectStore.
func (s *Store) ListSubjects(_ context.Context, filter attendance.SubjectFilter) ([]*attendance.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*attendance.Subject, 0, len(s.subjects))
	for _, sub := range s.subjects {
		if filter.OnlyRoots && sub.ParentID != "" {
			continue
		}
		if filter.ParentID != "" && sub.ParentID != filter.ParentID {
			continue
		}
		out = append(out, copySubject(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SetSchedule implements attendance.SubjectStore.
func (s *Store) SetSchedule(_ context.Context, subjectID string, entries []attendance.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[subjectID]; !ok {
		return shared.ErrSubjectNotFound
	}
	cp := make([]attendance.ScheduleEntry, len(entries))
	for i, e := range entries {
		e.SubjectID = subjectID
		cp[i] = e
	}
	s.schedule[subjectID] = cp
	return nil
}
