package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Store implements attendance.Store for PostgreSQL.
type Store struct {
	conn *Connection
}

var _ attendance.Store = (*Store)(nil)

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

const subjectColumns = `id, name, required_attendance, present_count, absent_count, total_count,
	COALESCE(parent_id, ''), is_folder, created_at, updated_at`

func scanSubject(row pgx.Row) (*attendance.Subject, error) {
	var s attendance.Subject
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.RequiredAttendance,
		&s.PresentCount,
		&s.AbsentCount,
		&s.TotalCount,
		&s.ParentID,
		&s.IsFolder,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("postgres: failed to scan subject: %w", err)
	}
	return &s, nil
}

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var (
		subjectID string
		date      time.Time
		status    string
		repeat    int
	)
	if err := row.Scan(&subjectID, &date, &status, &repeat); err != nil {
		return attendance.Record{}, err
	}
	st, err := attendance.ParseStatus(status)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("postgres: bad status %q for %s: %w", status, subjectID, err)
	}
	return attendance.NewRecord(subjectID, date, st, repeat), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetSubject implements attendance.Store.
func (s *Store) GetSubject(ctx context.Context, id string) (*attendance.Subject, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	return scanSubject(row)
}

// GetRecord implements attendance.Store.
func (s *Store) GetRecord(ctx context.Context, subjectID string, date time.Time) (*attendance.Record, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT subject_id, date, status, repeat_count
		FROM attendance_records
		WHERE subject_id = $1 AND date = $2
	`, subjectID, timeutil.DateOf(date))

	r, err := scanRecord(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get record: %w", err)
	}
	return &r, nil
}

// ListRecords implements attendance.Store.
func (s *Store) ListRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, timeutil.DateOf(filter.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, timeutil.DateOf(filter.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT subject_id, date, status, repeat_count FROM attendance_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date ASC, subject_id ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list records: %w", err)
	}
	defer rows.Close()

	out := make([]attendance.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSchedule implements attendance.Store.
func (s *Store) ListSchedule(ctx context.Context, filter attendance.ScheduleFilter) ([]attendance.ScheduleEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Weekday != nil {
		args = append(args, int(*filter.Weekday))
		where = append(where, fmt.Sprintf("weekday = $%d", len(args)))
	}

	query := `SELECT subject_id, weekday, is_scheduled FROM schedule_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY subject_id, weekday`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list schedule: %w", err)
	}
	defer rows.Close()

	out := make([]attendance.ScheduleEntry, 0)
	for rows.Next() {
		var (
			e  attendance.ScheduleEntry
			wd int
		)
		if err := rows.Scan(&e.SubjectID, &wd, &e.IsScheduled); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan schedule entry: %w", err)
		}
		e.Weekday = time.Weekday(wd)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListSubjects implements attendance.SubjectStore.
func (s *Store) ListSubjects(ctx context.Context, filter attendance.SubjectFilter) ([]*attendance.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects`
	var args []any
	switch {
	case filter.ParentID != "":
		query += ` WHERE parent_id = $1`
		args = append(args, filter.ParentID)
	case filter.OnlyRoots:
		query += ` WHERE parent_id IS NULL`
	}
	query += ` ORDER BY name, id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list subjects: %w", err)
	}
	defer rows.Close()

	out := make([]*attendance.Subject, 0)
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// WriteTransaction implements attendance.Store. The counter update is a
// conditional UPDATE on the expected values; zero affected rows on an
// existing subject means another writer got there first.
func (s *Store) WriteTransaction(ctx context.Context, rec attendance.RecordWrite, counters *attendance.CounterWrite) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if counters != nil {
			if err := casCounters(ctx, tx, counters); err != nil {
				return err
			}
		}
		return writeRecord(ctx, tx, rec)
	})
	if IsSerializationFailure(err) {
		return shared.WrapError("postgres", "WriteTransaction", shared.ErrConcurrentModification,
			"transaction aborted by a concurrent writer", err)
	}
	return err
}

func casCounters(ctx context.Context, q Querier, cw *attendance.CounterWrite) error {
	tag, err := q.Exec(ctx, `
		UPDATE subjects
		SET present_count = $2, absent_count = $3, total_count = $4, updated_at = NOW()
		WHERE id = $1 AND present_count = $5 AND absent_count = $6
	`,
		cw.SubjectID,
		cw.Next.Present,
		cw.Next.Absent,
		cw.Next.Total(),
		cw.Expected.Present,
		cw.Expected.Absent,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update counters: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`, cw.SubjectID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check subject: %w", err)
	}
	if !exists {
		return shared.ErrSubjectNotFound
	}
	return shared.ErrConcurrentModification
}

func writeRecord(ctx context.Context, q Querier, rec attendance.RecordWrite) error {
	r := rec.Record
	switch rec.Op {
	case attendance.WritePut:
		_, err := q.Exec(ctx, `
			INSERT INTO attendance_records (subject_id, date, status, repeat_count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subject_id, date)
			DO UPDATE SET status = EXCLUDED.status, repeat_count = EXCLUDED.repeat_count
		`, r.SubjectID, timeutil.DateOf(r.Date), r.Status.String(), r.RepeatCount)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrSubjectNotFound
			}
			return fmt.Errorf("postgres: failed to upsert record: %w", err)
		}
	case attendance.WriteDelete:
		if _, err := q.Exec(ctx, `DELETE FROM attendance_records WHERE subject_id = $1 AND date = $2`,
			r.SubjectID, timeutil.DateOf(r.Date)); err != nil {
			return fmt.Errorf("postgres: failed to delete record: %w", err)
		}
	}
	return nil
}

// DeleteRecord implements attendance.Store.
func (s *Store) DeleteRecord(ctx context.Context, subjectID string, date time.Time) error {
	return writeRecord(ctx, s.conn, attendance.DeleteRecordWrite(subjectID, date))
}

// CreateSubject implements attendance.SubjectStore.
func (s *Store) CreateSubject(ctx context.Context, sub *attendance.Subject) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO subjects (
			id, name, required_attendance, present_count, absent_count, total_count,
			parent_id, is_folder, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`,
		sub.ID,
		sub.Name,
		sub.RequiredAttendance,
		sub.PresentCount,
		sub.AbsentCount,
		sub.TotalCount,
		sub.ParentID,
		sub.IsFolder,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSubjectExists
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrSubjectNotFound
		}
		return fmt.Errorf("postgres: failed to create subject: %w", err)
	}
	return nil
}

// UpdateSubject implements attendance.SubjectStore.
func (s *Store) UpdateSubject(ctx context.Context, sub *attendance.Subject) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE subjects
		SET name = $2, required_attendance = $3, parent_id = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1
	`, sub.ID, sub.Name, sub.RequiredAttendance, sub.ParentID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrSubjectNotFound
		}
		return fmt.Errorf("postgres: failed to update subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSubjectNotFound
	}
	return nil
}

// DeleteSubject implements attendance.SubjectStore. Records, schedule and
// child subjects go through ON DELETE CASCADE.
func (s *Store) DeleteSubject(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSubjectNotFound
	}
	return nil
}

// SetSchedule implements attendance.SubjectStore.
func (s *Store) SetSchedule(ctx context.Context, subjectID string, entries []attendance.ScheduleEntry) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`, subjectID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: failed to check subject: %w", err)
		}
		if !exists {
			return shared.ErrSubjectNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM schedule_entries WHERE subject_id = $1`, subjectID); err != nil {
			return fmt.Errorf("postgres: failed to clear schedule: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO schedule_entries (subject_id, weekday, is_scheduled)
				VALUES ($1, $2, $3)
				ON CONFLICT (subject_id, weekday) DO UPDATE SET is_scheduled = EXCLUDED.is_scheduled
			`, subjectID, int(e.Weekday), e.IsScheduled)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: failed to insert schedule: %w", err)
		}
		return nil
	})
}
