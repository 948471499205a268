package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Candidate statuses. Scheduled is the only non-terminal state; a candidate
// moves forward exactly once.
const (
	StatusScheduled = "scheduled"
	StatusExecuted  = "executed"
	StatusSkipped   = "skipped"
	StatusExpired   = "expired"
)

// Candidate presentation styles.
const (
	StyleSilent  = "silent"
	StyleSuggest = "suggest"
	StyleAsk     = "ask"
)

// Custom-data keys shared between the learning paths and the scheduler.
const (
	CustomSource       = "source"
	SourceRoutine      = "routine"
	SourceTransition   = "transition"
	CustomReminderID   = "reminder_id"
	CustomTransitionID = "transition_id"
	CustomLearnedDelay = "learned_delay_min"
)

// ReminderCandidate is a scheduled, not-yet-decided prediction.
type ReminderCandidate struct {
	ID              string
	Person          string
	SuggestedAction string
	CheckAt         int64 // unix millis
	Style           string
	Status          string
	Confidence      float64
	Pattern         string // optional free-text occurrence pattern
	Profile         SignalProfile
	Custom          map[string]string
	Reason          string
	CreatedAt       int64
	UpdatedAt       int64
}

// IsRoutineSourced reports whether the candidate was produced by routine
// learning rather than transition statistics.
func (c *ReminderCandidate) IsRoutineSourced() bool {
	return c.Custom[CustomSource] == SourceRoutine
}

// CreateCandidate inserts a new scheduled candidate, assigning a UUID if
// none is set.
func (db *DB) CreateCandidate(c *ReminderCandidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = StatusScheduled
	}
	if c.Style == "" {
		c.Style = StyleSuggest
	}
	now := nowMillis()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Confidence = clamp01(c.Confidence)

	_, err := db.Exec(`
		INSERT INTO candidates (id, person, suggested_action, check_at, style,
			status, confidence, pattern, profile_json, custom_json, reason,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Person, c.SuggestedAction, c.CheckAt, c.Style, c.Status,
		c.Confidence, c.Pattern, encodeJSON(c.Profile), encodeJSON(c.Custom),
		c.Reason, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create candidate: %w", err)
	}
	return nil
}

// GetCandidate returns a candidate by id, or nil.
func (db *DB) GetCandidate(id string) (*ReminderCandidate, error) {
	row := db.QueryRow(candidateSelect+` WHERE id = ?`, id)

	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// DueCandidates returns up to limit scheduled candidates with check_at <= now,
// ordered by due time.
func (db *DB) DueCandidates(nowMs int64, limit int) ([]ReminderCandidate, error) {
	rows, err := db.Query(candidateSelect+`
		WHERE status = ? AND check_at <= ?
		ORDER BY check_at ASC LIMIT ?
	`, StatusScheduled, nowMs, limit)
	if err != nil {
		return nil, fmt.Errorf("due candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// FinishCandidate sets a terminal status exactly once. The status guard makes
// the transition forward-only: finishing a candidate that already left the
// scheduled state changes nothing.
func (db *DB) FinishCandidate(id, status, reason string) (bool, error) {
	if status == StatusScheduled {
		return false, fmt.Errorf("finish candidate: %q is not a terminal status", status)
	}
	result, err := db.Exec(`
		UPDATE candidates SET status = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, reason, nowMillis(), id, StatusScheduled)
	if err != nil {
		return false, fmt.Errorf("finish candidate: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// HasScheduledCandidate reports whether a scheduled candidate already exists
// for (person, action). Keeps the transition path from piling up duplicate
// predictions.
func (db *DB) HasScheduledCandidate(person, action string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM candidates
		WHERE person = ? AND suggested_action = ? AND status = ?
	`, person, action, StatusScheduled).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has scheduled candidate: %w", err)
	}
	return count > 0, nil
}

// CandidatesForPerson returns candidates for a person, optionally filtered
// by status, most recent first.
func (db *DB) CandidatesForPerson(person, status string, limit int) ([]ReminderCandidate, error) {
	query := candidateSelect + ` WHERE person = ?`
	args := []any{person}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY check_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates for person: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// CountCandidates returns the number of candidates in a given status
// ("" counts all).
func (db *DB) CountCandidates(status string) (int, error) {
	var count int
	var err error
	if status == "" {
		err = db.QueryRow("SELECT COUNT(*) FROM candidates").Scan(&count)
	} else {
		err = db.QueryRow("SELECT COUNT(*) FROM candidates WHERE status = ?", status).Scan(&count)
	}
	return count, err
}

const candidateSelect = `
	SELECT id, person, suggested_action, check_at, style, status, confidence,
		pattern, profile_json, custom_json, reason, created_at, updated_at
	FROM candidates
`

func scanCandidate(row rowScanner) (*ReminderCandidate, error) {
	var c ReminderCandidate
	var pattern, profileJSON, customJSON, reason sql.NullString
	err := row.Scan(&c.ID, &c.Person, &c.SuggestedAction, &c.CheckAt, &c.Style,
		&c.Status, &c.Confidence, &pattern, &profileJSON, &customJSON, &reason,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Pattern = pattern.String
	c.Reason = reason.String
	decodeJSON(profileJSON.String, &c.Profile)
	decodeJSON(customJSON.String, &c.Custom)
	return &c, nil
}

func collectCandidates(rows *sql.Rows) ([]ReminderCandidate, error) {
	var candidates []ReminderCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}
