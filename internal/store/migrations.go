package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "events: raw action/intent stream",
		SQL: `
CREATE TABLE events (
    id            TEXT PRIMARY KEY,
    person        TEXT NOT NULL,
    action        TEXT NOT NULL,
    is_intent     INTEGER NOT NULL DEFAULT 0,
    intent_type   TEXT,
    location      TEXT,
    states_json   TEXT,
    signals_json  TEXT,
    custom_json   TEXT,
    prompt        TEXT,
    occurred_at   INTEGER NOT NULL,
    created_at    INTEGER NOT NULL
);

CREATE INDEX idx_events_person_time ON events(person, occurred_at DESC);
CREATE INDEX idx_events_occurred    ON events(occurred_at);
`,
	},
	{
		Version:     2,
		Description: "transitions: learned action-to-action statistics",
		SQL: `
CREATE TABLE transitions (
    id               INTEGER PRIMARY KEY,
    person           TEXT NOT NULL,
    from_action      TEXT NOT NULL,
    to_action        TEXT NOT NULL,
    bucket           TEXT NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0,
    occurrence_count INTEGER NOT NULL DEFAULT 0,
    avg_delay_min    REAL NOT NULL DEFAULT 0,
    last_observed    INTEGER,
    created_at       INTEGER NOT NULL,

    UNIQUE(person, from_action, to_action, bucket)
);

CREATE INDEX idx_transitions_person_from ON transitions(person, from_action, bucket);
CREATE INDEX idx_transitions_confidence  ON transitions(confidence DESC);
`,
	},
	{
		Version:     3,
		Description: "routines: one observation window per (person, intent)",
		SQL: `
CREATE TABLE routines (
    id            INTEGER PRIMARY KEY,
    person        TEXT NOT NULL,
    intent_type   TEXT NOT NULL,
    window_start  INTEGER,
    window_end    INTEGER,
    window_open   INTEGER NOT NULL DEFAULT 0,
    active_bucket TEXT,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,

    UNIQUE(person, intent_type)
);

CREATE INDEX idx_routines_person_open ON routines(person, window_open);
CREATE INDEX idx_routines_window_end  ON routines(window_open, window_end);
`,
	},
	{
		Version:     4,
		Description: "routine_reminders: learned reminders per routine bucket",
		SQL: `
CREATE TABLE routine_reminders (
    id               INTEGER PRIMARY KEY,
    routine_id       INTEGER NOT NULL,
    bucket           TEXT NOT NULL,
    suggested_action TEXT NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0,
    delay_ema_min    REAL NOT NULL DEFAULT 0,
    delay_var_min    REAL NOT NULL DEFAULT 0,
    evidence_json    TEXT,
    evidence_count   INTEGER NOT NULL DEFAULT 0,
    sample_count     INTEGER NOT NULL DEFAULT 0,
    baseline_json    TEXT,
    states_json      TEXT,
    prompts_json     TEXT,
    custom_json      TEXT,
    safe_to_execute  INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL,

    UNIQUE(routine_id, bucket, suggested_action),
    FOREIGN KEY (routine_id) REFERENCES routines(id) ON DELETE CASCADE
);

CREATE INDEX idx_reminders_routine_bucket ON routine_reminders(routine_id, bucket);
`,
	},
	{
		Version:     5,
		Description: "candidates: scheduled predictions awaiting evaluation",
		SQL: `
CREATE TABLE candidates (
    id               TEXT PRIMARY KEY,
    person           TEXT NOT NULL,
    suggested_action TEXT NOT NULL,
    check_at         INTEGER NOT NULL,
    style            TEXT NOT NULL DEFAULT 'suggest' CHECK (style IN ('silent', 'suggest', 'ask')),
    status           TEXT NOT NULL DEFAULT 'scheduled' CHECK (status IN ('scheduled', 'executed', 'skipped', 'expired')),
    confidence       REAL NOT NULL DEFAULT 0,
    pattern          TEXT,
    profile_json     TEXT,
    custom_json      TEXT,
    reason           TEXT,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX idx_candidates_due    ON candidates(status, check_at);
CREATE INDEX idx_candidates_person ON candidates(person, status);
`,
	},
	{
		Version:     6,
		Description: "meta: persisted engine state",
		SQL: `
CREATE TABLE meta (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
