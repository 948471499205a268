package engine

import (
	"fmt"
	"strconv"

	"github.com/hollowpine/presage/internal/store"
)

// Feedback is the user's verdict on a delivered prediction.
type Feedback int

const (
	// FeedbackPositive confirms the prediction was right.
	FeedbackPositive Feedback = iota
	// FeedbackNegative rejects it.
	FeedbackNegative
)

// ParseFeedback converts the wire representation.
func ParseFeedback(s string) (Feedback, error) {
	switch s {
	case "positive":
		return FeedbackPositive, nil
	case "negative":
		return FeedbackNegative, nil
	default:
		return 0, fmt.Errorf("unknown feedback type %q", s)
	}
}

// SubmitFeedback adjusts the confidence of whatever learned the candidate:
// the routine reminder for routine-sourced candidates, the transition for
// transition-sourced ones.
func (e *Engine) SubmitFeedback(candidateID string, fb Feedback) error {
	c, err := e.DB.GetCandidate(candidateID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCandidateNotFound
	}

	switch c.Custom[store.CustomSource] {
	case store.SourceRoutine:
		return e.feedbackOnReminder(c, fb)
	case store.SourceTransition:
		return e.feedbackOnTransition(c, fb)
	default:
		return fmt.Errorf("candidate %s has no learning source", candidateID)
	}
}

func (e *Engine) feedbackOnReminder(c *store.ReminderCandidate, fb Feedback) error {
	remID, err := strconv.ParseInt(c.Custom[store.CustomReminderID], 10, 64)
	if err != nil {
		return fmt.Errorf("candidate %s: bad reminder id: %w", c.ID, err)
	}
	rem, err := e.DB.GetReminderByID(remID)
	if err != nil {
		return err
	}
	if rem == nil {
		return fmt.Errorf("reminder %d not found", remID)
	}

	switch fb {
	case FeedbackPositive:
		rem.Confidence += e.Learning.ProbabilityStep
		if rem.Confidence > 1 {
			rem.Confidence = 1
		}
	case FeedbackNegative:
		rem.Confidence *= 1 - e.Learning.NegativeFeedbackFactor
	}
	return e.DB.UpdateReminder(rem)
}

func (e *Engine) feedbackOnTransition(c *store.ReminderCandidate, fb Feedback) error {
	tID, err := strconv.ParseInt(c.Custom[store.CustomTransitionID], 10, 64)
	if err != nil {
		return fmt.Errorf("candidate %s: bad transition id: %w", c.ID, err)
	}
	t, err := e.DB.GetTransitionByID(tID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("transition %d not found", tID)
	}

	switch fb {
	case FeedbackPositive:
		t.Confidence += e.Learning.ProbabilityStep
		if t.Confidence > 1 {
			t.Confidence = 1
		}
	case FeedbackNegative:
		t.ReduceConfidence(e.Learning.NegativeFeedbackFactor)
	}
	return e.DB.UpdateTransition(t)
}
