package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hollowpine/presage/internal/store"
)

// askConfidenceCap limits the confidence of candidates scheduled from
// reminders with too little timing evidence: low enough that the evaluator
// can never auto-execute them, above the default starting probability.
const askConfidenceCap = 0.60

// activateRoutine handles an intent event: it closes every open window for
// the person, opens a fresh window on the (person, intentType) routine, and
// schedules a candidate for each reminder already learned in the newly
// active bucket.
//
// The single-active-window invariant is enforced by reading all open windows
// and closing them individually, without a transaction. Two near-simultaneous
// intents for the same person can therefore both observe no open window;
// that narrow race is accepted behavior, not a defect.
func (e *Engine) activateRoutine(ev *store.Event) ([]string, error) {
	open, err := e.DB.OpenRoutines(ev.Person)
	if err != nil {
		return nil, err
	}
	for _, r := range open {
		if err := e.DB.CloseRoutineWindow(r.ID); err != nil {
			return nil, err
		}
	}

	routine, err := e.DB.GetRoutine(ev.Person, ev.IntentType)
	if err != nil {
		return nil, err
	}
	if routine == nil {
		routine = &store.Routine{Person: ev.Person, IntentType: ev.IntentType}
		if err := e.DB.CreateRoutine(routine); err != nil {
			return nil, err
		}
	}

	occurred := time.UnixMilli(ev.OccurredAt)
	routine.WindowStart = ev.OccurredAt
	routine.WindowEnd = ev.OccurredAt + int64(e.Learning.WindowMinutes)*60000
	routine.WindowOpen = true
	// The bucket is selected once, at activation time, and never
	// re-selected mid-window.
	routine.ActiveBucket = BucketFor(occurred, ev.Location)
	if err := e.DB.UpdateRoutineWindow(routine); err != nil {
		return nil, err
	}

	return e.scheduleRoutineReminders(routine)
}

// scheduleRoutineReminders creates one candidate per existing reminder in
// the routine's active bucket, timed by the best available learned delay.
func (e *Engine) scheduleRoutineReminders(routine *store.Routine) ([]string, error) {
	reminders, err := e.DB.RemindersForBucket(routine.ID, routine.ActiveBucket)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, rem := range reminders {
		delayMin := e.bestDelayMin(&rem)
		if delayMin < 0 {
			delayMin = 0
		}
		if max := float64(e.Learning.WindowMinutes); delayMin > max {
			delayMin = max
		}

		confidence := rem.Confidence
		style := e.styleFor(confidence)
		if rem.EvidenceCount < e.Learning.MinSamplesForTiming {
			// Not enough evidence to trust the timing: always ask, and
			// cap confidence so the evaluator cannot auto-execute.
			style = store.StyleAsk
			confidence = math.Min(confidence, askConfidenceCap)
		}

		c := &store.ReminderCandidate{
			Person:          routine.Person,
			SuggestedAction: rem.SuggestedAction,
			CheckAt:         routine.WindowStart + int64(delayMin*60000),
			Style:           style,
			Confidence:      confidence,
			Profile:         rem.Baseline,
			Custom: map[string]string{
				store.CustomSource:       store.SourceRoutine,
				store.CustomReminderID:   strconv.FormatInt(rem.ID, 10),
				store.CustomLearnedDelay: strconv.FormatFloat(delayMin, 'f', 2, 64),
			},
		}
		if err := e.DB.CreateCandidate(c); err != nil {
			return ids, fmt.Errorf("schedule routine reminder: %w", err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// bestDelayMin picks the best available timing estimate: the median of the
// bounded evidence list, else the delay EMA, else the configured default.
func (e *Engine) bestDelayMin(rem *store.RoutineReminder) float64 {
	if len(rem.Evidence) > 0 {
		return medianOf(rem.Evidence)
	}
	if rem.EvidenceCount > 0 && rem.DelayEMAMin > 0 {
		return rem.DelayEMAMin
	}
	return e.Learning.DefaultReminderDelayMinutes
}

func medianOf(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// observeOpenWindows evaluates an ordinary action against every open window
// for the person. Each eligibility gate short-circuits silently; nothing
// here is an error condition. Returns the id of the reminder that was
// created or updated, if any.
func (e *Engine) observeOpenWindows(ev *store.Event) (int64, error) {
	open, err := e.DB.OpenRoutines(ev.Person)
	if err != nil {
		return 0, err
	}

	var relatedID int64
	for i := range open {
		id, err := e.observeForRoutine(&open[i], ev)
		if err != nil {
			return relatedID, err
		}
		if id != 0 {
			relatedID = id
		}
	}
	return relatedID, nil
}

func (e *Engine) observeForRoutine(routine *store.Routine, ev *store.Event) (int64, error) {
	// Gate 1: time offset. A window already past its end is closed on the
	// spot and the event ignored.
	if ev.OccurredAt > routine.WindowEnd {
		if err := e.DB.CloseRoutineWindow(routine.ID); err != nil {
			return 0, err
		}
		return 0, nil
	}
	offsetMin := float64(ev.OccurredAt-routine.WindowStart) / 60000.0
	if offsetMin < 0 || offsetMin > float64(e.Learning.TimeOffsetMinutes) {
		return 0, nil
	}

	rem, err := e.DB.GetReminder(routine.ID, routine.ActiveBucket, ev.Action)
	if err != nil {
		return 0, err
	}
	if rem == nil {
		return e.createReminder(routine, ev, offsetMin)
	}

	// Gate 2: exact state match against the reminder's recorded states.
	if e.Learning.MatchByStateSignals && len(rem.States) > 0 {
		for k, want := range rem.States {
			if got, ok := ev.States[k]; !ok || got != want {
				return 0, nil
			}
		}
	}

	// Gate 3: signal-profile similarity against the reminder's baseline.
	var profile store.SignalProfile
	if e.Learning.SignalSelectionEnabled && len(ev.Signals) > 0 {
		profile = SelectAndNormalize(ev.Signals, e.Learning.SignalTopK)
		if len(rem.Baseline) > 0 && len(profile) > 0 {
			if Similarity(rem.Baseline, profile) < e.Learning.SimilarityThreshold {
				return 0, nil
			}
		}
	}

	e.applyObservation(rem, ev, offsetMin, profile)
	if err := e.DB.UpdateReminder(rem); err != nil {
		return 0, err
	}
	return rem.ID, nil
}

// applyObservation folds one in-window observation into a reminder.
func (e *Engine) applyObservation(rem *store.RoutineReminder, ev *store.Event, offsetMin float64, profile store.SignalProfile) {
	rem.Confidence += e.Learning.ProbabilityStep
	if rem.Confidence > 1 {
		rem.Confidence = 1
	}

	e.recordDelay(rem, offsetMin, ev.OccurredAt)

	if len(ev.Custom) > 0 {
		if rem.Custom == nil {
			rem.Custom = make(map[string]string, len(ev.Custom))
		}
		for k, v := range ev.Custom {
			rem.Custom[k] = v
		}
		// The safety flag tracks the latest event that carries it, not
		// just the creating one.
		if v, ok := ev.Custom["safe_to_execute"]; ok {
			rem.SafeToExecute = v == "true"
		}
	}
	if ev.Prompt != "" {
		rem.Prompts = append(rem.Prompts, ev.Prompt)
	}
	if len(profile) > 0 {
		rem.Baseline = BlendBaseline(rem.Baseline, profile, e.Learning.SignalUpdateAlpha)
	}
}

// recordDelay updates the half-life-weighted delay EMA, its exponentially
// weighted variance, and the bounded evidence list. The effective step size
// grows with the gap since the previous observation, so stale estimates
// yield faster to fresh evidence.
func (e *Engine) recordDelay(rem *store.RoutineReminder, delayMin float64, observedAt int64) {
	if rem.EvidenceCount == 0 {
		rem.DelayEMAMin = delayMin
		rem.DelayVarMin = 0
	} else {
		gapDays := float64(observedAt-rem.UpdatedAt) / 86_400_000.0
		if gapDays < 0 {
			gapDays = 0
		}
		alpha := e.Learning.DelayBaseAlpha
		if e.Learning.DelayHalfLifeDays > 0 {
			alpha += (1 - alpha) * (1 - math.Pow(0.5, gapDays/e.Learning.DelayHalfLifeDays))
		}
		diff := delayMin - rem.DelayEMAMin
		rem.DelayEMAMin += alpha * diff
		rem.DelayVarMin = (1 - alpha) * (rem.DelayVarMin + alpha*diff*diff)
	}

	rem.Evidence = append(rem.Evidence, delayMin)
	if max := e.Learning.MaxEvidenceItems; max > 0 && len(rem.Evidence) > max {
		rem.Evidence = rem.Evidence[len(rem.Evidence)-max:]
	}
	rem.EvidenceCount++
	rem.SampleCount = len(rem.Evidence)
}

// createReminder seeds a brand-new reminder from the observed event.
func (e *Engine) createReminder(routine *store.Routine, ev *store.Event, offsetMin float64) (int64, error) {
	rem := &store.RoutineReminder{
		RoutineID:       routine.ID,
		Bucket:          routine.ActiveBucket,
		SuggestedAction: ev.Action,
		Confidence:      e.Learning.DefaultRoutineProbability,
		DelayEMAMin:     offsetMin,
		Evidence:        []float64{offsetMin},
		EvidenceCount:   1,
		SampleCount:     1,
		States:          ev.States,
		Custom:          ev.Custom,
		SafeToExecute:   ev.Custom["safe_to_execute"] == "true",
	}
	if ev.Prompt != "" {
		rem.Prompts = []string{ev.Prompt}
	}
	if e.Learning.SignalSelectionEnabled && len(ev.Signals) > 0 {
		rem.Baseline = SelectAndNormalize(ev.Signals, e.Learning.SignalTopK)
	}

	if err := e.DB.CreateReminder(rem); err != nil {
		return 0, err
	}
	return rem.ID, nil
}
