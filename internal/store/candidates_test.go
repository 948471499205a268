package store

import (
	"testing"
	"time"
)

func TestCreateCandidateDefaults(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := &ReminderCandidate{
		Person:          "alice",
		SuggestedAction: "make_coffee",
		CheckAt:         time.Now().UnixMilli(),
		Confidence:      1.7, // out of range, should clamp
	}
	if err := db.CreateCandidate(c); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	if c.ID == "" {
		t.Error("expected generated id")
	}
	if c.Status != StatusScheduled {
		t.Errorf("Status = %q, want scheduled", c.Status)
	}
	if c.Style != StyleSuggest {
		t.Errorf("Style = %q, want suggest", c.Style)
	}
	if c.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", c.Confidence)
	}
}

func TestFinishCandidateForwardOnly(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := &ReminderCandidate{Person: "alice", SuggestedAction: "make_coffee",
		CheckAt: time.Now().UnixMilli()}
	if err := db.CreateCandidate(c); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}

	ok, err := db.FinishCandidate(c.ID, StatusExecuted, "done")
	if err != nil {
		t.Fatalf("FinishCandidate: %v", err)
	}
	if !ok {
		t.Fatal("first finish should apply")
	}

	// A second transition must not overwrite the first
	ok, err = db.FinishCandidate(c.ID, StatusSkipped, "changed mind")
	if err != nil {
		t.Fatalf("second FinishCandidate: %v", err)
	}
	if ok {
		t.Error("second finish should be a no-op")
	}

	got, _ := db.GetCandidate(c.ID)
	if got.Status != StatusExecuted {
		t.Errorf("Status = %q, want executed", got.Status)
	}
	if got.Reason != "done" {
		t.Errorf("Reason = %q, want done", got.Reason)
	}
}

func TestFinishCandidateRejectsScheduled(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := &ReminderCandidate{Person: "alice", SuggestedAction: "x", CheckAt: 1}
	db.CreateCandidate(c)

	if _, err := db.FinishCandidate(c.ID, StatusScheduled, ""); err == nil {
		t.Error("expected error finishing to a non-terminal status")
	}
}

func TestDueCandidates(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now().UnixMilli()
	due1 := &ReminderCandidate{Person: "alice", SuggestedAction: "b", CheckAt: now - 60000}
	due2 := &ReminderCandidate{Person: "alice", SuggestedAction: "a", CheckAt: now - 120000}
	future := &ReminderCandidate{Person: "alice", SuggestedAction: "c", CheckAt: now + 60000}
	db.CreateCandidate(due1)
	db.CreateCandidate(due2)
	db.CreateCandidate(future)

	got, err := db.DueCandidates(now, 10)
	if err != nil {
		t.Fatalf("DueCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d due candidates, want 2", len(got))
	}
	if got[0].SuggestedAction != "a" {
		t.Errorf("first due = %q, want a (earliest check_at first)", got[0].SuggestedAction)
	}

	// Terminal candidates are never due
	db.FinishCandidate(due2.ID, StatusSkipped, "test")
	got, _ = db.DueCandidates(now, 10)
	if len(got) != 1 {
		t.Errorf("got %d due after finishing one, want 1", len(got))
	}
}

func TestHasScheduledCandidate(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := &ReminderCandidate{Person: "alice", SuggestedAction: "make_coffee", CheckAt: 1}
	db.CreateCandidate(c)

	has, err := db.HasScheduledCandidate("alice", "make_coffee")
	if err != nil {
		t.Fatalf("HasScheduledCandidate: %v", err)
	}
	if !has {
		t.Error("expected scheduled candidate to be found")
	}

	db.FinishCandidate(c.ID, StatusExpired, "test")
	has, _ = db.HasScheduledCandidate("alice", "make_coffee")
	if has {
		t.Error("terminal candidate should not count as scheduled")
	}
}

func TestCandidateJSONFieldsRoundtrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	c := &ReminderCandidate{
		Person:          "alice",
		SuggestedAction: "make_coffee",
		CheckAt:         1,
		Pattern:         "daily at 07:30",
		Profile:         SignalProfile{"kitchen_motion": {Weight: 0.6, Value: 0.9}},
		Custom:          map[string]string{CustomSource: SourceRoutine, CustomReminderID: "4"},
	}
	db.CreateCandidate(c)

	got, err := db.GetCandidate(c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if !got.IsRoutineSourced() {
		t.Error("expected routine-sourced candidate")
	}
	if got.Pattern != "daily at 07:30" {
		t.Errorf("Pattern = %q", got.Pattern)
	}
	if got.Profile["kitchen_motion"].Weight != 0.6 {
		t.Errorf("Profile = %#v", got.Profile)
	}
	if got.Custom[CustomReminderID] != "4" {
		t.Errorf("Custom = %#v", got.Custom)
	}
}

func TestCandidatesForPersonStatusFilter(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	a := &ReminderCandidate{Person: "alice", SuggestedAction: "a", CheckAt: 1}
	b := &ReminderCandidate{Person: "alice", SuggestedAction: "b", CheckAt: 2}
	db.CreateCandidate(a)
	db.CreateCandidate(b)
	db.FinishCandidate(a.ID, StatusExecuted, "test")

	all, err := db.CandidatesForPerson("alice", "", 50)
	if err != nil {
		t.Fatalf("CandidatesForPerson: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d candidates, want 2", len(all))
	}

	executed, _ := db.CandidatesForPerson("alice", StatusExecuted, 50)
	if len(executed) != 1 || executed[0].ID != a.ID {
		t.Errorf("executed filter returned %d rows", len(executed))
	}
}
