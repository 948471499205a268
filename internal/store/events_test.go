package store

import (
	"testing"
	"time"
)

func TestCreateEventDefaults(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	ev := &Event{Person: "alice", Action: "make_coffee"}
	if err := db.CreateEvent(ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if ev.ID == "" {
		t.Error("expected generated id")
	}
	if ev.OccurredAt == 0 {
		t.Error("expected OccurredAt to default to now")
	}
}

func TestEventJSONFieldsRoundtrip(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	ev := &Event{
		Person:   "alice",
		Action:   "wake_up",
		IsIntent: true, IntentType: "wake_up",
		Location: "bedroom",
		States:   map[string]string{"lights": "off"},
		Signals:  map[string]SignalReading{"hr": {Value: 0.4, Importance: 0.8}},
		Custom:   map[string]string{"safe_to_execute": "true"},
		Prompt:   "good morning",
	}
	if err := db.CreateEvent(ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	got, err := db.RecentEvents("alice", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	e := got[0]
	if !e.IsIntent || e.IntentType != "wake_up" {
		t.Errorf("intent fields lost: %+v", e)
	}
	if e.States["lights"] != "off" {
		t.Errorf("States = %#v", e.States)
	}
	if e.Signals["hr"].Importance != 0.8 {
		t.Errorf("Signals = %#v", e.Signals)
	}
	if e.Custom["safe_to_execute"] != "true" {
		t.Errorf("Custom = %#v", e.Custom)
	}
}

func TestLastActionBefore(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	base := time.Now().UnixMilli()
	db.CreateEvent(&Event{Person: "alice", Action: "wake_up", OccurredAt: base - 30*60000})
	db.CreateEvent(&Event{Person: "alice", Action: "make_coffee", OccurredAt: base - 10*60000})
	// Intents never pair as a predecessor
	db.CreateEvent(&Event{Person: "alice", Action: "bedtime", IsIntent: true,
		IntentType: "bedtime", OccurredAt: base - 5*60000})
	// Other people's events are invisible
	db.CreateEvent(&Event{Person: "bob", Action: "leave_home", OccurredAt: base - 60000})

	prev, err := db.LastActionBefore("alice", base)
	if err != nil {
		t.Fatalf("LastActionBefore: %v", err)
	}
	if prev == nil {
		t.Fatal("expected a predecessor")
	}
	if prev.Action != "make_coffee" {
		t.Errorf("Action = %q, want make_coffee", prev.Action)
	}

	none, err := db.LastActionBefore("alice", base-40*60000)
	if err != nil {
		t.Fatalf("LastActionBefore early: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil before first event, got %+v", none)
	}
}

func TestScanToleratesCorruptJSONColumn(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	ev := &Event{Person: "alice", Action: "make_coffee",
		Custom: map[string]string{"k": "v"}}
	if err := db.CreateEvent(ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if _, err := db.Exec("UPDATE events SET custom_json = '{broken' WHERE id = ?", ev.ID); err != nil {
		t.Fatalf("corrupt column: %v", err)
	}

	got, err := db.RecentEvents("alice", 1)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if len(got[0].Custom) != 0 {
		t.Errorf("Custom = %#v, want empty for a corrupt column", got[0].Custom)
	}
}

func TestPurgeEventsLeavesDerivedData(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	base := time.Now().UnixMilli()
	db.CreateEvent(&Event{Person: "alice", Action: "old", OccurredAt: base - 100*24*60*60000})
	db.CreateEvent(&Event{Person: "alice", Action: "recent", OccurredAt: base})
	db.CreateTransition(&ActionTransition{Person: "alice", FromAction: "old",
		ToAction: "recent", Bucket: "x", Confidence: 0.5})

	purged, err := db.PurgeEventsBefore(base - 30*24*60*60000)
	if err != nil {
		t.Fatalf("PurgeEventsBefore: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	events, _ := db.CountEvents()
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
	transitions, _ := db.CountTransitions()
	if transitions != 1 {
		t.Errorf("transitions = %d, want 1 (purge must not touch learned data)", transitions)
	}
}
