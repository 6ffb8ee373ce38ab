// Package bolt implements attendance.Store on an embedded bbolt file, for
// single-device deployments that do not run PostgreSQL.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

var (
	bucketSubjects = []byte("subjects")
	bucketRecords  = []byte("attendance_records")
	bucketSchedule = []byte("schedule_entries")

	buckets = [][]byte{bucketSubjects, bucketRecords, bucketSchedule}
)

// Config holds bbolt settings.
type Config struct {
	Path    string
	Timeout time.Duration // how long Open waits for the file lock
}

// Store is a bbolt-backed attendance.Store. bbolt serializes writers, so a
// single Update is the transaction boundary for WriteTransaction.
type Store struct {
	db *bbolt.DB
}

var _ attendance.Store = (*Store)(nil)

// Open opens (or creates) the database file and its buckets.
func Open(cfg Config) (*Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt: create dir: %w", err)
	}

	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────────────────────────────────
// Keys
// ──────────────────────────────────────────────────────────────────────────────

// Records and schedule entries are keyed "<subject>/<suffix>" so a cursor
// seek on "<subject>/" walks one subject; ISO dates keep records in order.

func subjectPrefix(subjectID string) []byte {
	return []byte(subjectID + "/")
}

func recordKey(subjectID string, date time.Time) []byte {
	return []byte(subjectID + "/" + timeutil.FormatDate(date))
}

func scheduleKey(subjectID string, wd time.Weekday) []byte {
	return []byte(subjectID + "/" + strconv.Itoa(int(wd)))
}

// ──────────────────────────────────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────────────────────────────────

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func getSubject(tx *bbolt.Tx, id string) (*attendance.Subject, error) {
	v := tx.Bucket(bucketSubjects).Get([]byte(id))
	if v == nil {
		return nil, shared.ErrSubjectNotFound
	}
	var sub attendance.Subject
	if err := json.Unmarshal(v, &sub); err != nil {
		return nil, fmt.Errorf("bolt: decode subject %s: %w", id, err)
	}
	return &sub, nil
}

func decodeRecord(v []byte) (attendance.Record, error) {
	var r attendance.Record
	if err := json.Unmarshal(v, &r); err != nil {
		return r, err
	}
	return attendance.NewRecord(r.SubjectID, r.Date, r.Status, r.RepeatCount), nil
}

func deletePrefix(b *bbolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// attendance.Store
// ──────────────────────────────────────────────────────────────────────────────

// GetSubject implements attendance.Store.
func (s *Store) GetSubject(_ context.Context, id string) (*attendance.Subject, error) {
	var sub *attendance.Subject
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		sub, err = getSubject(tx, id)
		return err
	})
	return sub, err
}

// GetRecord implements attendance.Store.
func (s *Store) GetRecord(_ context.Context, subjectID string, date time.Time) (*attendance.Record, error) {
	var rec *attendance.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(recordKey(subjectID, date))
		if v == nil {
			return nil
		}
		r, err := decodeRecord(v)
		if err != nil {
			return fmt.Errorf("bolt: decode record: %w", err)
		}
		rec = &r
		return nil
	})
	return rec, err
}

// WriteTransaction implements attendance.Store.
func (s *Store) WriteTransaction(_ context.Context, rec attendance.RecordWrite, counters *attendance.CounterWrite) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if counters != nil {
			sub, err := getSubject(tx, counters.SubjectID)
			if err != nil {
				return err
			}
			if sub.Counters() != counters.Expected {
				return shared.ErrConcurrentModification
			}
			sub.SetCounters(counters.Next)
			sub.UpdatedAt = time.Now().UTC()
			if err := put(tx.Bucket(bucketSubjects), []byte(sub.ID), sub); err != nil {
				return err
			}
		}

		records := tx.Bucket(bucketRecords)
		key := recordKey(rec.Record.SubjectID, rec.Record.Date)
		switch rec.Op {
		case attendance.WritePut:
			if tx.Bucket(bucketSubjects).Get([]byte(rec.Record.SubjectID)) == nil {
				return shared.ErrSubjectNotFound
			}
			return put(records, key, rec.Record)
		case attendance.WriteDelete:
			return records.Delete(key)
		}
		return nil
	})
}

// DeleteRecord implements attendance.Store.
func (s *Store) DeleteRecord(_ context.Context, subjectID string, date time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete(recordKey(subjectID, date))
	})
}

// ListRecords implements attendance.Store.
func (s *Store) ListRecords(_ context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	out := make([]attendance.Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()

		var prefix []byte
		if filter.SubjectID != "" {
			prefix = subjectPrefix(filter.SubjectID)
		}
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			r, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("bolt: decode record %s: %w", k, err)
			}
			if !filter.From.IsZero() && r.Date.Before(timeutil.DateOf(filter.From)) {
				continue
			}
			if !filter.To.IsZero() && r.Date.After(timeutil.DateOf(filter.To)) {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// ListSchedule implements attendance.Store.
func (s *Store) ListSchedule(_ context.Context, filter attendance.ScheduleFilter) ([]attendance.ScheduleEntry, error) {
	out := make([]attendance.ScheduleEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSchedule).Cursor()

		var prefix []byte
		if filter.SubjectID != "" {
			prefix = subjectPrefix(filter.SubjectID)
		}
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e attendance.ScheduleEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("bolt: decode schedule %s: %w", k, err)
			}
			if filter.Weekday != nil && e.Weekday != *filter.Weekday {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// CreateSubject implements attendance.SubjectStore.
func (s *Store) CreateSubject(_ context.Context, sub *attendance.Subject) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		if b.Get([]byte(sub.ID)) != nil {
			return shared.ErrSubjectExists
		}
		if sub.ParentID != "" && b.Get([]byte(sub.ParentID)) == nil {
			return shared.ErrSubjectNotFound
		}
		return put(b, []byte(sub.ID), sub)
	})
}

// UpdateSubject implements attendance.SubjectStore.
func (s *Store) UpdateSubject(_ context.Context, sub *attendance.Subject) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		cur, err := getSubject(tx, sub.ID)
		if err != nil {
			return err
		}
		cur.Name = sub.Name
		cur.RequiredAttendance = sub.RequiredAttendance
		cur.ParentID = sub.ParentID
		cur.UpdatedAt = time.Now().UTC()
		return put(tx.Bucket(bucketSubjects), []byte(cur.ID), cur)
	})
}

// DeleteSubject implements attendance.SubjectStore. Children of a folder go
// with it.
func (s *Store) DeleteSubject(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		subjects := tx.Bucket(bucketSubjects)
		if subjects.Get([]byte(id)) == nil {
			return shared.ErrSubjectNotFound
		}

		doomed := []string{id}
		err := subjects.ForEach(func(k, v []byte) error {
			var sub attendance.Subject
			if err := json.Unmarshal(v, &sub); err != nil {
				return err
			}
			if sub.ParentID == id {
				doomed = append(doomed, sub.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, sid := range doomed {
			if err := subjects.Delete([]byte(sid)); err != nil {
				return err
			}
			if err := deletePrefix(tx.Bucket(bucketRecords), subjectPrefix(sid)); err != nil {
				return err
			}
			if err := deletePrefix(tx.Bucket(bucketSchedule), subjectPrefix(sid)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSubjects implements attendance.SubjectStore.
func (s *Store) ListSubjects(_ context.Context, filter attendance.SubjectFilter) ([]*attendance.Subject, error) {
	out := make([]*attendance.Subject, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubjects).ForEach(func(k, v []byte) error {
			var sub attendance.Subject
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("bolt: decode subject %s: %w", k, err)
			}
			if filter.OnlyRoots && sub.ParentID != "" {
				return nil
			}
			if filter.ParentID != "" && sub.ParentID != filter.ParentID {
				return nil
			}
			out = append(out, &sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
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
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSubjects).Get([]byte(subjectID)) == nil {
			return shared.ErrSubjectNotFound
		}
		b := tx.Bucket(bucketSchedule)
		if err := deletePrefix(b, subjectPrefix(subjectID)); err != nil {
			return err
		}
		for _, e := range entries {
			e.SubjectID = subjectID
			if err := put(b, scheduleKey(subjectID, e.Weekday), e); err != nil {
				return err
			}
		}
		return nil
	})
}
