package store

import (
	"database/sql"
	"fmt"
)

// ActionTransition is a learned (person, from, to, bucket) statistic used
// for general next-action prediction.
type ActionTransition struct {
	ID              int64
	Person          string
	FromAction      string
	ToAction        string
	Bucket          string
	Confidence      float64
	OccurrenceCount int
	AvgDelayMin     float64
	LastObserved    int64 // unix millis, 0 when never observed
	CreatedAt       int64
}

// clamp01 keeps confidence inside [0,1]. Values outside the range are a
// modeling defect; clamping at the write boundary keeps them from persisting.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UpdateWithObservation records one observed occurrence of the transition:
// confidence moves toward 1 by an EMA step of size alpha, and the average
// delay tracks the observed delay with rate beta.
func (t *ActionTransition) UpdateWithObservation(delayMin, alpha, beta float64) {
	t.OccurrenceCount++
	t.Confidence = clamp01(t.Confidence + alpha*(1-t.Confidence))
	if t.OccurrenceCount == 1 {
		t.AvgDelayMin = delayMin
	} else {
		t.AvgDelayMin += beta * (delayMin - t.AvgDelayMin)
	}
}

// ApplyDecay multiplies confidence by (1-rate). Never drops below 0.
func (t *ActionTransition) ApplyDecay(rate float64) {
	t.Confidence = clamp01(t.Confidence * (1 - rate))
}

// ReduceConfidence multiplies confidence by (1-factor) on negative feedback.
func (t *ActionTransition) ReduceConfidence(factor float64) {
	t.Confidence = clamp01(t.Confidence * (1 - factor))
}

// GetTransition returns the transition for the exact key, or nil if not found.
func (db *DB) GetTransition(person, from, to, bucket string) (*ActionTransition, error) {
	row := db.QueryRow(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions
		WHERE person = ? AND from_action = ? AND to_action = ? AND bucket = ?
	`, person, from, to, bucket)

	t, err := scanTransition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transition: %w", err)
	}
	return t, nil
}

// GetTransitionByID returns a transition by id, or nil if not found.
func (db *DB) GetTransitionByID(id int64) (*ActionTransition, error) {
	row := db.QueryRow(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions WHERE id = ?
	`, id)

	t, err := scanTransition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transition by id: %w", err)
	}
	return t, nil
}

// CreateTransition inserts a new transition row.
func (db *DB) CreateTransition(t *ActionTransition) error {
	t.CreatedAt = nowMillis()
	t.Confidence = clamp01(t.Confidence)
	result, err := db.Exec(`
		INSERT INTO transitions (person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Person, t.FromAction, t.ToAction, t.Bucket, t.Confidence,
		t.OccurrenceCount, t.AvgDelayMin, nullMillis(t.LastObserved), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transition: %w", err)
	}
	t.ID, _ = result.LastInsertId()
	return nil
}

// UpdateTransition persists the mutable statistics of a transition.
func (db *DB) UpdateTransition(t *ActionTransition) error {
	t.Confidence = clamp01(t.Confidence)
	_, err := db.Exec(`
		UPDATE transitions SET confidence = ?, occurrence_count = ?,
			avg_delay_min = ?, last_observed = ?
		WHERE id = ?
	`, t.Confidence, t.OccurrenceCount, t.AvgDelayMin, nullMillis(t.LastObserved), t.ID)
	if err != nil {
		return fmt.Errorf("update transition: %w", err)
	}
	return nil
}

// TransitionsFrom returns the transitions out of an action for a person in
// a bucket, strongest first.
func (db *DB) TransitionsFrom(person, from, bucket string) ([]ActionTransition, error) {
	rows, err := db.Query(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions
		WHERE person = ? AND from_action = ? AND bucket = ?
		ORDER BY confidence DESC
	`, person, from, bucket)
	if err != nil {
		return nil, fmt.Errorf("transitions from: %w", err)
	}
	defer rows.Close()
	return collectTransitions(rows)
}

// TransitionsForPerson returns all transitions for a person, strongest first.
func (db *DB) TransitionsForPerson(person string) ([]ActionTransition, error) {
	rows, err := db.Query(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions WHERE person = ?
		ORDER BY confidence DESC
	`, person)
	if err != nil {
		return nil, fmt.Errorf("transitions for person: %w", err)
	}
	defer rows.Close()
	return collectTransitions(rows)
}

// TopTransitions returns the strongest transitions across all people.
func (db *DB) TopTransitions(limit int) ([]ActionTransition, error) {
	rows, err := db.Query(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions ORDER BY confidence DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top transitions: %w", err)
	}
	defer rows.Close()
	return collectTransitions(rows)
}

// DecayTransitions applies one decay step to every transition with positive
// confidence. Computed in Go rather than SQL so the arithmetic matches
// ApplyDecay exactly. Returns the number of rows updated.
func (db *DB) DecayTransitions(rate float64) (int, error) {
	if rate <= 0 {
		return 0, nil
	}

	rows, err := db.Query(`
		SELECT id, person, from_action, to_action, bucket, confidence,
			occurrence_count, avg_delay_min, last_observed, created_at
		FROM transitions WHERE confidence > 0
	`)
	if err != nil {
		return 0, fmt.Errorf("query decayable transitions: %w", err)
	}
	targets, err := collectTransitions(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range targets {
		t := &targets[i]
		before := t.Confidence
		t.ApplyDecay(rate)
		if t.Confidence == before {
			continue
		}
		if _, err := db.Exec(
			"UPDATE transitions SET confidence = ? WHERE id = ?", t.Confidence, t.ID,
		); err != nil {
			return updated, fmt.Errorf("update decay: %w", err)
		}
		updated++
	}
	return updated, nil
}

// CountTransitions returns the total number of transition rows.
func (db *DB) CountTransitions() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM transitions").Scan(&count)
	return count, err
}

func scanTransition(row rowScanner) (*ActionTransition, error) {
	var t ActionTransition
	var lastObserved sql.NullInt64
	err := row.Scan(&t.ID, &t.Person, &t.FromAction, &t.ToAction, &t.Bucket,
		&t.Confidence, &t.OccurrenceCount, &t.AvgDelayMin, &lastObserved, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastObserved.Valid {
		t.LastObserved = lastObserved.Int64
	}
	return &t, nil
}

func collectTransitions(rows *sql.Rows) ([]ActionTransition, error) {
	var transitions []ActionTransition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transitions = append(transitions, *t)
	}
	return transitions, rows.Err()
}

func nullMillis(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
