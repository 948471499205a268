package store

import (
	"database/sql"
	"fmt"
)

// Routine is the learned association between a person's recurring intent
// and the actions that follow it. At most one row exists per
// (person, intent_type); the window fields describe the most recent
// activation.
type Routine struct {
	ID           int64
	Person       string
	IntentType   string
	WindowStart  int64 // unix millis
	WindowEnd    int64
	WindowOpen   bool
	ActiveBucket string
	CreatedAt    int64
	UpdatedAt    int64
}

// GetRoutine returns the routine for (person, intentType), or nil.
func (db *DB) GetRoutine(person, intentType string) (*Routine, error) {
	row := db.QueryRow(`
		SELECT id, person, intent_type, window_start, window_end, window_open,
			active_bucket, created_at, updated_at
		FROM routines WHERE person = ? AND intent_type = ?
	`, person, intentType)

	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

// GetRoutineByID returns a routine by id, or nil.
func (db *DB) GetRoutineByID(id int64) (*Routine, error) {
	row := db.QueryRow(`
		SELECT id, person, intent_type, window_start, window_end, window_open,
			active_bucket, created_at, updated_at
		FROM routines WHERE id = ?
	`, id)

	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine by id: %w", err)
	}
	return r, nil
}

// CreateRoutine inserts a new routine row.
func (db *DB) CreateRoutine(r *Routine) error {
	now := nowMillis()
	r.CreatedAt = now
	r.UpdatedAt = now
	result, err := db.Exec(`
		INSERT INTO routines (person, intent_type, window_start, window_end,
			window_open, active_bucket, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Person, r.IntentType, nullMillis(r.WindowStart), nullMillis(r.WindowEnd),
		boolInt(r.WindowOpen), r.ActiveBucket, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create routine: %w", err)
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// UpdateRoutineWindow persists the window fields of a routine.
func (db *DB) UpdateRoutineWindow(r *Routine) error {
	r.UpdatedAt = nowMillis()
	_, err := db.Exec(`
		UPDATE routines SET window_start = ?, window_end = ?, window_open = ?,
			active_bucket = ?, updated_at = ?
		WHERE id = ?
	`, nullMillis(r.WindowStart), nullMillis(r.WindowEnd), boolInt(r.WindowOpen),
		r.ActiveBucket, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update routine window: %w", err)
	}
	return nil
}

// OpenRoutines returns every routine for a person whose window is marked open.
func (db *DB) OpenRoutines(person string) ([]Routine, error) {
	rows, err := db.Query(`
		SELECT id, person, intent_type, window_start, window_end, window_open,
			active_bucket, created_at, updated_at
		FROM routines WHERE person = ? AND window_open = 1
	`, person)
	if err != nil {
		return nil, fmt.Errorf("open routines: %w", err)
	}
	defer rows.Close()
	return collectRoutines(rows)
}

// ExpiredOpenRoutines returns routines still marked open whose window end
// has already passed.
func (db *DB) ExpiredOpenRoutines(nowMs int64) ([]Routine, error) {
	rows, err := db.Query(`
		SELECT id, person, intent_type, window_start, window_end, window_open,
			active_bucket, created_at, updated_at
		FROM routines WHERE window_open = 1 AND window_end IS NOT NULL AND window_end < ?
	`, nowMs)
	if err != nil {
		return nil, fmt.Errorf("expired open routines: %w", err)
	}
	defer rows.Close()
	return collectRoutines(rows)
}

// CloseRoutineWindow marks a routine's window closed. Idempotent: closing an
// already-closed window changes nothing and reports no error.
func (db *DB) CloseRoutineWindow(id int64) error {
	_, err := db.Exec(`
		UPDATE routines SET window_open = 0, updated_at = ?
		WHERE id = ? AND window_open = 1
	`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("close routine window: %w", err)
	}
	return nil
}

// RoutinesForPerson returns all routines for a person.
func (db *DB) RoutinesForPerson(person string) ([]Routine, error) {
	rows, err := db.Query(`
		SELECT id, person, intent_type, window_start, window_end, window_open,
			active_bucket, created_at, updated_at
		FROM routines WHERE person = ? ORDER BY intent_type
	`, person)
	if err != nil {
		return nil, fmt.Errorf("routines for person: %w", err)
	}
	defer rows.Close()
	return collectRoutines(rows)
}

// CountRoutines returns the total number of routine rows.
func (db *DB) CountRoutines() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM routines").Scan(&count)
	return count, err
}

func scanRoutine(row rowScanner) (*Routine, error) {
	var r Routine
	var windowOpen int
	var windowStart, windowEnd sql.NullInt64
	var activeBucket sql.NullString
	err := row.Scan(&r.ID, &r.Person, &r.IntentType, &windowStart, &windowEnd,
		&windowOpen, &activeBucket, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.WindowOpen = windowOpen != 0
	if windowStart.Valid {
		r.WindowStart = windowStart.Int64
	}
	if windowEnd.Valid {
		r.WindowEnd = windowEnd.Int64
	}
	r.ActiveBucket = activeBucket.String
	return &r, nil
}

func collectRoutines(rows *sql.Rows) ([]Routine, error) {
	var routines []Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, *r)
	}
	return routines, rows.Err()
}
