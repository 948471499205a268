package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// SignalReading is a raw state-signal sample attached to an event.
type SignalReading struct {
	Value      float64 `json:"value"`
	Importance float64 `json:"importance"`
}

// ProfileEntry is one normalized signal in a profile.
type ProfileEntry struct {
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// SignalProfile is a weighted, normalized summary of selected signals,
// keyed by signal id. It has no lifecycle of its own; whichever reminder
// or candidate holds it owns it.
type SignalProfile map[string]ProfileEntry

// Event is one timestamped action or intent in a person's stream.
type Event struct {
	ID         string
	Person     string
	Action     string
	IsIntent   bool
	IntentType string
	Location   string
	States     map[string]string        // discrete state key/value pairs
	Signals    map[string]SignalReading // numeric signal readings
	Custom     map[string]string
	Prompt     string
	OccurredAt int64 // unix millis
	CreatedAt  int64
}

// CreateEvent stores an event, assigning a UUID if none is set.
func (db *DB) CreateEvent(ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := nowMillis()
	if ev.OccurredAt == 0 {
		ev.OccurredAt = now
	}
	ev.CreatedAt = now

	_, err := db.Exec(`
		INSERT INTO events (id, person, action, is_intent, intent_type, location,
			states_json, signals_json, custom_json, prompt, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Person, ev.Action, boolInt(ev.IsIntent), ev.IntentType, ev.Location,
		encodeJSON(ev.States), encodeJSON(ev.Signals), encodeJSON(ev.Custom),
		ev.Prompt, ev.OccurredAt, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// LastActionBefore returns the person's most recent non-intent event that
// occurred strictly before the given time, or nil if none exists.
func (db *DB) LastActionBefore(person string, beforeMillis int64) (*Event, error) {
	row := db.QueryRow(`
		SELECT id, person, action, is_intent, intent_type, location,
			states_json, signals_json, custom_json, prompt, occurred_at, created_at
		FROM events
		WHERE person = ? AND is_intent = 0 AND occurred_at < ?
		ORDER BY occurred_at DESC LIMIT 1
	`, person, beforeMillis)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last action before: %w", err)
	}
	return ev, nil
}

// RecentEvents returns the most recent events for a person.
func (db *DB) RecentEvents(person string, limit int) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, person, action, is_intent, intent_type, location,
			states_json, signals_json, custom_json, prompt, occurred_at, created_at
		FROM events WHERE person = ?
		ORDER BY occurred_at DESC LIMIT ?
	`, person, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// PurgeEventsBefore deletes raw events older than the cutoff. Derived
// transitions and reminders are untouched.
func (db *DB) PurgeEventsBefore(cutoffMillis int64) (int, error) {
	result, err := db.Exec("DELETE FROM events WHERE occurred_at < ?", cutoffMillis)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountEvents returns the total number of stored events.
func (db *DB) CountEvents() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var ev Event
	var isIntent int
	var intentType, location, statesJSON, signalsJSON, customJSON, prompt sql.NullString
	err := row.Scan(&ev.ID, &ev.Person, &ev.Action, &isIntent, &intentType, &location,
		&statesJSON, &signalsJSON, &customJSON, &prompt, &ev.OccurredAt, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.IsIntent = isIntent != 0
	ev.IntentType = intentType.String
	ev.Location = location.String
	ev.Prompt = prompt.String
	decodeJSON(statesJSON.String, &ev.States)
	decodeJSON(signalsJSON.String, &ev.Signals)
	decodeJSON(customJSON.String, &ev.Custom)
	return &ev, nil
}

// encodeJSON marshals v, returning "" for nil/empty values so the column
// stays NULL-ish rather than accumulating "{}" strings.
func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(data)
	if s == "null" || s == "{}" || s == "[]" {
		return ""
	}
	return s
}

// decodeJSON leaves out untouched on a corrupt column; the row still reads
// back, but the corruption is logged rather than swallowed.
func decodeJSON(s string, out any) {
	if s == "" {
		return
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		log.Printf("store: decode json column: %v", err)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
