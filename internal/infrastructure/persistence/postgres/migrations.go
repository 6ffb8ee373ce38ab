package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_subjects",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_attendance_records",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_schedule_entries",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS subjects (
    id TEXT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    required_attendance INTEGER NOT NULL DEFAULT 75,
    present_count INTEGER NOT NULL DEFAULT 0,
    absent_count INTEGER NOT NULL DEFAULT 0,
    total_count INTEGER NOT NULL DEFAULT 0,
    parent_id TEXT REFERENCES subjects(id) ON DELETE CASCADE,
    is_folder BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_required_attendance CHECK (required_attendance BETWEEN 0 AND 100),
    CONSTRAINT non_negative_counters CHECK (present_count >= 0 AND absent_count >= 0),
    CONSTRAINT total_is_sum CHECK (total_count = present_count + absent_count),
    CONSTRAINT folders_are_roots CHECK (NOT is_folder OR parent_id IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_subjects_parent_id ON subjects(parent_id);
`

const migration001Down = `
DROP TABLE IF EXISTS subjects;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ATTENDANCE RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS attendance_records (
    subject_id TEXT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    status VARCHAR(20) NOT NULL,
    repeat_count INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (subject_id, date),
    CONSTRAINT valid_status CHECK (status IN ('present', 'absent', 'no_class'))
);

CREATE INDEX IF NOT EXISTS idx_attendance_records_date ON attendance_records(date);
`

const migration002Down = `
DROP TABLE IF EXISTS attendance_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SCHEDULE ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS schedule_entries (
    subject_id TEXT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
    weekday SMALLINT NOT NULL,
    is_scheduled BOOLEAN NOT NULL DEFAULT TRUE,

    PRIMARY KEY (subject_id, weekday),
    CONSTRAINT valid_weekday CHECK (weekday BETWEEN 0 AND 6)
);

CREATE INDEX IF NOT EXISTS idx_schedule_entries_weekday ON schedule_entries(weekday);
`

const migration003Down = `
DROP TABLE IF EXISTS schedule_entries;
`
