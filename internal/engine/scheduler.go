package engine

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/hollowpine/presage/internal/store"
)

// ErrCandidateNotFound is returned for lookups of unknown candidate ids.
// Callers treat it as an outcome, not a failure.
var ErrCandidateNotFound = errors.New("candidate not found")

// ProcessResult is the outcome of evaluating one candidate.
type ProcessResult struct {
	Executed    bool   `json:"executed"`
	ShouldSpeak bool   `json:"should_speak"`
	Phrase      string `json:"phrase,omitempty"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

// RunSchedulerTick fetches due candidates, applies the policy gate, and
// evaluates the admitted set. All per-tick state is local; a failing
// candidate is logged and the rest of the batch continues.
func (e *Engine) RunSchedulerTick(now time.Time) {
	due, err := e.DB.DueCandidates(now.UnixMilli(), e.Workers.BatchSize)
	if err != nil {
		log.Printf("scheduler: fetch due candidates: %v", err)
		return
	}

	admitted := due[:0:0]
	for _, c := range due {
		// Routine-sourced candidates represent contextual intent rather
		// than raw statistical frequency and bypass the global threshold.
		if !c.IsRoutineSourced() && c.Confidence < e.Learning.MinProbability {
			if _, err := e.DB.FinishCandidate(c.ID, store.StatusSkipped, "confidence below minimum probability"); err != nil {
				log.Printf("scheduler: skip candidate %s: %v", c.ID, err)
			}
			continue
		}
		admitted = append(admitted, c)
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		ri, rj := admitted[i].IsRoutineSourced(), admitted[j].IsRoutineSourced()
		if ri != rj {
			return ri
		}
		return admitted[i].Confidence > admitted[j].Confidence
	})

	for _, c := range admitted {
		if _, err := e.processCandidateAt(c.ID, false, now); err != nil {
			log.Printf("scheduler: process candidate %s: %v", c.ID, err)
		}
	}
}

// ProcessCandidate evaluates a single candidate now. bypassDateCheck forces
// evaluation of a candidate that is not yet due (manual force-checks).
func (e *Engine) ProcessCandidate(id string, bypassDateCheck bool) (*ProcessResult, error) {
	return e.processCandidateAt(id, bypassDateCheck, time.Now())
}

func (e *Engine) processCandidateAt(id string, bypassDateCheck bool, now time.Time) (*ProcessResult, error) {
	c, err := e.DB.GetCandidate(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCandidateNotFound
	}

	if c.Status != store.StatusScheduled {
		return &ProcessResult{
			Status: c.Status,
			Reason: "already " + c.Status,
		}, nil
	}

	checkAt := time.UnixMilli(c.CheckAt)
	if !bypassDateCheck {
		if !IsDue(checkAt, now) {
			return &ProcessResult{Status: c.Status, Reason: "not due"}, nil
		}
		staleAfter := time.Duration(e.Workers.CandidateStaleMinutes) * time.Minute
		if now.Sub(checkAt) > staleAfter {
			return e.finalize(c, store.StatusExpired, "due time passed staleness horizon", now)
		}
	}

	decision := EvaluateAction(
		c.Confidence,
		e.isSafeToExecute(c),
		e.Learning.AllowAutoExecute,
		e.Learning.ExecuteThreshold,
		e.Learning.AskFloor,
	)

	result, err := e.finalize(c, terminalStatus(decision), "evaluated: "+decision.String(), now)
	if err != nil || result == nil {
		return result, err
	}

	result.Executed = decision == ActionExecute
	if !result.Executed && c.Style != store.StyleSilent {
		result.ShouldSpeak = true
		result.Phrase = phraseFor(decision, c.SuggestedAction)
	}
	return result, nil
}

// finalize sets the terminal status exactly once and, when the candidate
// carries an occurrence pattern, schedules its successor.
func (e *Engine) finalize(c *store.ReminderCandidate, status, reason string, now time.Time) (*ProcessResult, error) {
	ok, err := e.DB.FinishCandidate(c.ID, status, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another worker finished it first; the terminal status stands.
		return &ProcessResult{Status: status, Reason: "already finalized"}, nil
	}

	if c.Pattern != "" {
		if err := e.scheduleSuccessor(c, now); err != nil {
			log.Printf("scheduler: successor for %s: %v", c.ID, err)
		}
	}

	return &ProcessResult{Status: status, Reason: reason}, nil
}

// scheduleSuccessor inserts a fresh candidate at the pattern's next
// occurrence. Unparseable patterns end the recurrence quietly.
func (e *Engine) scheduleSuccessor(c *store.ReminderCandidate, now time.Time) error {
	last := time.UnixMilli(c.CheckAt)
	next, err := NextExecution(c.Pattern, now, &last)
	if err != nil {
		return nil
	}

	succ := &store.ReminderCandidate{
		Person:          c.Person,
		SuggestedAction: c.SuggestedAction,
		CheckAt:         next.UnixMilli(),
		Style:           c.Style,
		Confidence:      c.Confidence,
		Pattern:         c.Pattern,
		Profile:         c.Profile,
		Custom:          c.Custom,
	}
	return e.DB.CreateCandidate(succ)
}

// isSafeToExecute resolves the safety flag: routine-sourced candidates defer
// to their reminder, everything else is unsafe unless explicitly marked.
func (e *Engine) isSafeToExecute(c *store.ReminderCandidate) bool {
	if c.IsRoutineSourced() {
		if idStr, ok := c.Custom[store.CustomReminderID]; ok {
			if remID, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				if rem, err := e.DB.GetReminderByID(remID); err == nil && rem != nil {
					return rem.SafeToExecute
				}
			}
		}
	}
	return c.Custom["safe_to_execute"] == "true"
}

func terminalStatus(decision ExecutionAction) string {
	if decision == ActionExecute {
		return store.StatusExecuted
	}
	return store.StatusSkipped
}

func phraseFor(decision ExecutionAction, action string) string {
	if decision == ActionAsk {
		return fmt.Sprintf("Should I %s?", action)
	}
	return fmt.Sprintf("You usually %s around now.", action)
}
