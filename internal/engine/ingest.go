package engine

import (
	"fmt"

	"github.com/hollowpine/presage/internal/store"
)

// IngestResult reports what a single event changed.
type IngestResult struct {
	EventID               string
	ScheduledCandidateIDs []string
	RelatedReminderID     int64 // 0 when no reminder was touched
}

// IngestEvent is the sole entry point for both ordinary actions and intents.
// Intents activate the routine observation engine; ordinary actions feed the
// transition learner and any open observation windows. Either path may
// schedule reminder candidates.
func (e *Engine) IngestEvent(ev *store.Event) (*IngestResult, error) {
	if ev.Person == "" || ev.Action == "" {
		return nil, fmt.Errorf("ingest event: person and action are required")
	}
	if err := e.DB.CreateEvent(ev); err != nil {
		return nil, fmt.Errorf("ingest event: %w", err)
	}

	result := &IngestResult{EventID: ev.ID}

	if ev.IsIntent {
		ids, err := e.activateRoutine(ev)
		if err != nil {
			return nil, fmt.Errorf("activate routine: %w", err)
		}
		result.ScheduledCandidateIDs = ids
		return result, nil
	}

	ids, err := e.learnFromAction(ev)
	if err != nil {
		return nil, fmt.Errorf("learn transition: %w", err)
	}
	result.ScheduledCandidateIDs = ids

	reminderID, err := e.observeOpenWindows(ev)
	if err != nil {
		return nil, fmt.Errorf("observe windows: %w", err)
	}
	result.RelatedReminderID = reminderID

	return result, nil
}
