package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hollowpine/presage/internal/store"
)

// learnFromAction updates transition statistics for an ordinary action and
// schedules prediction candidates for the known transitions out of it.
func (e *Engine) learnFromAction(ev *store.Event) ([]string, error) {
	occurred := time.UnixMilli(ev.OccurredAt)
	bucket := BucketFor(occurred, ev.Location)

	prev, err := e.DB.LastActionBefore(ev.Person, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.Action != ev.Action {
		gapMin := float64(ev.OccurredAt-prev.OccurredAt) / 60000.0
		if gapMin >= 0 && gapMin <= float64(e.Learning.MaxTransitionGapMinutes) {
			if err := e.recordTransition(ev.Person, prev.Action, ev.Action, bucket, gapMin, ev.OccurredAt); err != nil {
				return nil, err
			}
		}
	}

	return e.scheduleTransitionPredictions(ev, bucket)
}

func (e *Engine) recordTransition(person, from, to, bucket string, delayMin float64, observedAt int64) error {
	t, err := e.DB.GetTransition(person, from, to, bucket)
	if err != nil {
		return err
	}
	if t == nil {
		t = &store.ActionTransition{
			Person:     person,
			FromAction: from,
			ToAction:   to,
			Bucket:     bucket,
		}
		if err := e.DB.CreateTransition(t); err != nil {
			return err
		}
	}

	t.UpdateWithObservation(delayMin, e.Learning.TransitionAlpha, e.Learning.DelayBeta)
	t.LastObserved = observedAt
	return e.DB.UpdateTransition(t)
}

// scheduleTransitionPredictions schedules one candidate per known outgoing
// transition of the new action, skipping actions that already have a
// scheduled candidate. The scheduler's minimum-probability gate is the
// admission policy; this only seeds the queue.
func (e *Engine) scheduleTransitionPredictions(ev *store.Event, bucket string) ([]string, error) {
	outgoing, err := e.DB.TransitionsFrom(ev.Person, ev.Action, bucket)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, t := range outgoing {
		if t.Confidence <= 0 {
			continue
		}
		exists, err := e.DB.HasScheduledCandidate(ev.Person, t.ToAction)
		if err != nil {
			return ids, err
		}
		if exists {
			continue
		}

		delayMin := t.AvgDelayMin
		if delayMin <= 0 {
			delayMin = e.Learning.DefaultReminderDelayMinutes
		}

		c := &store.ReminderCandidate{
			Person:          ev.Person,
			SuggestedAction: t.ToAction,
			CheckAt:         ev.OccurredAt + int64(delayMin*60000),
			Style:           e.styleFor(t.Confidence),
			Confidence:      t.Confidence,
			Custom: map[string]string{
				store.CustomSource:       store.SourceTransition,
				store.CustomTransitionID: strconv.FormatInt(t.ID, 10),
			},
		}
		if err := e.DB.CreateCandidate(c); err != nil {
			return ids, fmt.Errorf("schedule prediction: %w", err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// styleFor maps confidence to a presentation style: high enough to
// auto-execute stays silent, the medium band asks, the rest suggests.
func (e *Engine) styleFor(confidence float64) string {
	switch {
	case confidence >= e.Learning.ExecuteThreshold:
		return store.StyleSilent
	case confidence >= e.Learning.AskFloor:
		return store.StyleAsk
	default:
		return store.StyleSuggest
	}
}
