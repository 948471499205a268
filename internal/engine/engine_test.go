package engine

import (
	"strconv"
	"testing"
	"time"

	"github.com/hollowpine/presage/internal/config"
	"github.com/hollowpine/presage/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, config.Default())
}

// localMorning pins timestamps to a known local weekday hour so bucket keys
// stay stable for the whole test.
func localMorning(min int) int64 {
	return time.Date(2024, 3, 13, 8, min, 0, 0, time.Local).UnixMilli()
}

func TestIngestEventRequiresPersonAndAction(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.IngestEvent(&store.Event{Action: "x"}); err == nil {
		t.Error("expected error for missing person")
	}
	if _, err := e.IngestEvent(&store.Event{Person: "alice"}); err == nil {
		t.Error("expected error for missing action")
	}
}

func TestIngestLearnsTransition(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.IngestEvent(&store.Event{Person: "alice", Action: "wake_up",
		Location: "bedroom", OccurredAt: localMorning(0)})
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
	res, err := e.IngestEvent(&store.Event{Person: "alice", Action: "make_coffee",
		Location: "kitchen", OccurredAt: localMorning(10)})
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
	if res.EventID == "" {
		t.Error("expected event id in result")
	}

	all, err := e.DB.TransitionsForPerson("alice")
	if err != nil {
		t.Fatalf("TransitionsForPerson: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d transitions, want 1", len(all))
	}
	tr := all[0]
	if tr.FromAction != "wake_up" || tr.ToAction != "make_coffee" {
		t.Errorf("transition = %s -> %s", tr.FromAction, tr.ToAction)
	}
	if tr.Confidence != e.Learning.TransitionAlpha {
		t.Errorf("Confidence = %v, want %v", tr.Confidence, e.Learning.TransitionAlpha)
	}
	if tr.AvgDelayMin != 10 {
		t.Errorf("AvgDelayMin = %v, want 10", tr.AvgDelayMin)
	}
}

func TestIngestIgnoresWideGaps(t *testing.T) {
	e := newTestEngine(t)

	base := localMorning(0)
	e.IngestEvent(&store.Event{Person: "alice", Action: "wake_up", OccurredAt: base})
	// Past the max transition gap: no pairing
	gap := int64(e.Learning.MaxTransitionGapMinutes+60) * 60000
	e.IngestEvent(&store.Event{Person: "alice", Action: "make_coffee", OccurredAt: base + gap})

	n, _ := e.DB.CountTransitions()
	if n != 0 {
		t.Errorf("got %d transitions, want 0", n)
	}
}

func TestIngestIgnoresSelfTransition(t *testing.T) {
	e := newTestEngine(t)

	e.IngestEvent(&store.Event{Person: "alice", Action: "make_coffee", OccurredAt: localMorning(0)})
	e.IngestEvent(&store.Event{Person: "alice", Action: "make_coffee", OccurredAt: localMorning(5)})

	n, _ := e.DB.CountTransitions()
	if n != 0 {
		t.Errorf("got %d transitions, want 0 for repeated action", n)
	}
}

func TestIngestSchedulesPrediction(t *testing.T) {
	e := newTestEngine(t)

	// One observed pair teaches wake_up -> make_coffee; the next wake_up in
	// the same bucket schedules a make_coffee prediction.
	e.IngestEvent(&store.Event{Person: "alice", Action: "wake_up",
		Location: "bedroom", OccurredAt: localMorning(0)})
	e.IngestEvent(&store.Event{Person: "alice", Action: "make_coffee",
		Location: "bedroom", OccurredAt: localMorning(10)})

	res, err := e.IngestEvent(&store.Event{Person: "alice", Action: "wake_up",
		Location: "bedroom", OccurredAt: localMorning(20)})
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
	if len(res.ScheduledCandidateIDs) != 1 {
		t.Fatalf("got %d scheduled candidates, want 1", len(res.ScheduledCandidateIDs))
	}

	c, err := e.DB.GetCandidate(res.ScheduledCandidateIDs[0])
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if c.SuggestedAction != "make_coffee" {
		t.Errorf("SuggestedAction = %q", c.SuggestedAction)
	}
	if c.Custom[store.CustomSource] != store.SourceTransition {
		t.Errorf("source = %q, want transition", c.Custom[store.CustomSource])
	}
	// Due time follows the learned average delay from the triggering event
	wantCheckAt := localMorning(20) + 10*60000
	if c.CheckAt != wantCheckAt {
		t.Errorf("CheckAt = %d, want %d", c.CheckAt, wantCheckAt)
	}

	// Another wake_up must not pile on a duplicate prediction
	res, _ = e.IngestEvent(&store.Event{Person: "alice", Action: "wake_up",
		Location: "bedroom", OccurredAt: localMorning(25)})
	if len(res.ScheduledCandidateIDs) != 0 {
		t.Errorf("got %d duplicate candidates, want 0", len(res.ScheduledCandidateIDs))
	}
}

func TestDecayTickRunsOncePerDay(t *testing.T) {
	e := newTestEngine(t)

	tr := &store.ActionTransition{Person: "alice", FromAction: "a", ToAction: "b",
		Bucket: "x", Confidence: 0.5}
	e.DB.CreateTransition(tr)

	e.decayTick()
	// Same-day restart: the second tick must not apply another step
	e.decayTick()

	got, _ := e.DB.GetTransitionByID(tr.ID)
	want := 0.5 * (1 - e.Learning.DecayRate)
	if diff := got.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v after exactly one decay step", got.Confidence, want)
	}

	// A stale last-run marker lets the next tick through
	dayAgo := time.Now().Add(-25 * time.Hour).UnixMilli()
	e.DB.SetMeta("last_decay_at", strconv.FormatInt(dayAgo, 10))
	e.decayTick()

	got, _ = e.DB.GetTransitionByID(tr.ID)
	want *= 1 - e.Learning.DecayRate
	if diff := got.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v after the next day's step", got.Confidence, want)
	}
}

func TestWindowSweepIdempotent(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UnixMilli()

	stale := &store.Routine{Person: "alice", IntentType: "wake_up",
		WindowStart: now - 3*60*60000, WindowEnd: now - 2*60*60000, WindowOpen: true}
	live := &store.Routine{Person: "alice", IntentType: "bedtime",
		WindowStart: now, WindowEnd: now + 60*60000, WindowOpen: true}
	e.DB.CreateRoutine(stale)
	e.DB.CreateRoutine(live)

	e.windowSweepTick()
	e.windowSweepTick() // second sweep must be a no-op

	got, _ := e.DB.GetRoutineByID(stale.ID)
	if got.WindowOpen {
		t.Error("stale window left open")
	}
	got, _ = e.DB.GetRoutineByID(live.ID)
	if !got.WindowOpen {
		t.Error("live window was closed")
	}
}

func TestRetentionTickPurgesOldEvents(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UnixMilli()
	old := now - int64(e.Workers.RetentionDays+5)*24*60*60000

	e.DB.CreateEvent(&store.Event{Person: "alice", Action: "ancient", OccurredAt: old})
	e.DB.CreateEvent(&store.Event{Person: "alice", Action: "recent", OccurredAt: now})

	e.retentionTick()

	n, _ := e.DB.CountEvents()
	if n != 1 {
		t.Errorf("got %d events after retention, want 1", n)
	}
}

func TestStopClosesWorkers(t *testing.T) {
	e := newTestEngine(t)
	e.Workers.PollIntervalSeconds = 3600
	e.Workers.WindowSweepMinutes = 3600
	e.StartWorkers()
	e.Stop()
	// Stop returns immediately; the loops exit at their next select.
}
