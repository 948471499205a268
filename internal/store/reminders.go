package store

import (
	"database/sql"
	"fmt"
)

// RoutineReminder is a learned reminder belonging to a routine, unique per
// (routine, bucket, suggested action). Created and updated only while the
// routine's observation window is open.
type RoutineReminder struct {
	ID              int64
	RoutineID       int64
	Bucket          string
	SuggestedAction string
	Confidence      float64
	DelayEMAMin     float64   // half-life-weighted EMA of observed delays
	DelayVarMin     float64   // exponentially weighted variance
	Evidence        []float64 // bounded list of raw delay samples (minutes)
	EvidenceCount   int       // total observations ever, unbounded
	SampleCount     int       // observations currently in Evidence
	Baseline        SignalProfile
	States          map[string]string
	Prompts         []string
	Custom          map[string]string
	SafeToExecute   bool
	CreatedAt       int64
	UpdatedAt       int64
}

// GetReminder returns the reminder for (routineID, bucket, action), or nil.
func (db *DB) GetReminder(routineID int64, bucket, action string) (*RoutineReminder, error) {
	row := db.QueryRow(reminderSelect+`
		WHERE routine_id = ? AND bucket = ? AND suggested_action = ?
	`, routineID, bucket, action)

	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// GetReminderByID returns a reminder by id, or nil.
func (db *DB) GetReminderByID(id int64) (*RoutineReminder, error) {
	row := db.QueryRow(reminderSelect+` WHERE id = ?`, id)

	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder by id: %w", err)
	}
	return r, nil
}

// CreateReminder inserts a new reminder row.
func (db *DB) CreateReminder(r *RoutineReminder) error {
	now := nowMillis()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Confidence = clamp01(r.Confidence)
	result, err := db.Exec(`
		INSERT INTO routine_reminders (routine_id, bucket, suggested_action,
			confidence, delay_ema_min, delay_var_min, evidence_json, evidence_count,
			sample_count, baseline_json, states_json, prompts_json, custom_json,
			safe_to_execute, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RoutineID, r.Bucket, r.SuggestedAction, r.Confidence, r.DelayEMAMin,
		r.DelayVarMin, encodeJSON(r.Evidence), r.EvidenceCount, r.SampleCount,
		encodeJSON(r.Baseline), encodeJSON(r.States), encodeJSON(r.Prompts),
		encodeJSON(r.Custom), boolInt(r.SafeToExecute), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// UpdateReminder persists all mutable reminder fields.
func (db *DB) UpdateReminder(r *RoutineReminder) error {
	r.UpdatedAt = nowMillis()
	r.Confidence = clamp01(r.Confidence)
	_, err := db.Exec(`
		UPDATE routine_reminders SET confidence = ?, delay_ema_min = ?,
			delay_var_min = ?, evidence_json = ?, evidence_count = ?,
			sample_count = ?, baseline_json = ?, states_json = ?, prompts_json = ?,
			custom_json = ?, safe_to_execute = ?, updated_at = ?
		WHERE id = ?
	`, r.Confidence, r.DelayEMAMin, r.DelayVarMin, encodeJSON(r.Evidence),
		r.EvidenceCount, r.SampleCount, encodeJSON(r.Baseline), encodeJSON(r.States),
		encodeJSON(r.Prompts), encodeJSON(r.Custom), boolInt(r.SafeToExecute),
		r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return nil
}

// RemindersForBucket returns all reminders for a routine's bucket,
// strongest first.
func (db *DB) RemindersForBucket(routineID int64, bucket string) ([]RoutineReminder, error) {
	rows, err := db.Query(reminderSelect+`
		WHERE routine_id = ? AND bucket = ?
		ORDER BY confidence DESC
	`, routineID, bucket)
	if err != nil {
		return nil, fmt.Errorf("reminders for bucket: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// RemindersForRoutine returns all reminders under a routine.
func (db *DB) RemindersForRoutine(routineID int64) ([]RoutineReminder, error) {
	rows, err := db.Query(reminderSelect+`
		WHERE routine_id = ? ORDER BY bucket, confidence DESC
	`, routineID)
	if err != nil {
		return nil, fmt.Errorf("reminders for routine: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// CountReminders returns the total number of reminder rows.
func (db *DB) CountReminders() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM routine_reminders").Scan(&count)
	return count, err
}

const reminderSelect = `
	SELECT id, routine_id, bucket, suggested_action, confidence, delay_ema_min,
		delay_var_min, evidence_json, evidence_count, sample_count, baseline_json,
		states_json, prompts_json, custom_json, safe_to_execute, created_at, updated_at
	FROM routine_reminders
`

func scanReminder(row rowScanner) (*RoutineReminder, error) {
	var r RoutineReminder
	var safe int
	var evidenceJSON, baselineJSON, statesJSON, promptsJSON, customJSON sql.NullString
	err := row.Scan(&r.ID, &r.RoutineID, &r.Bucket, &r.SuggestedAction,
		&r.Confidence, &r.DelayEMAMin, &r.DelayVarMin, &evidenceJSON,
		&r.EvidenceCount, &r.SampleCount, &baselineJSON, &statesJSON,
		&promptsJSON, &customJSON, &safe, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.SafeToExecute = safe != 0
	decodeJSON(evidenceJSON.String, &r.Evidence)
	decodeJSON(baselineJSON.String, &r.Baseline)
	decodeJSON(statesJSON.String, &r.States)
	decodeJSON(promptsJSON.String, &r.Prompts)
	decodeJSON(customJSON.String, &r.Custom)
	return &r, nil
}

func collectReminders(rows *sql.Rows) ([]RoutineReminder, error) {
	var reminders []RoutineReminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}
