package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hollowpine/presage/internal/engine"
	"github.com/hollowpine/presage/internal/store"
)

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Person     string                         `json:"person"`
		Action     string                         `json:"action"`
		IsIntent   bool                           `json:"is_intent"`
		IntentType string                         `json:"intent_type"`
		Location   string                         `json:"location"`
		States     map[string]string              `json:"states"`
		Signals    map[string]store.SignalReading `json:"signals"`
		Custom     map[string]string              `json:"custom"`
		Prompt     string                         `json:"prompt"`
		OccurredAt int64                          `json:"occurred_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Person == "" || req.Action == "" {
		http.Error(w, `{"error":"person and action required"}`, http.StatusBadRequest)
		return
	}
	if req.IsIntent && req.IntentType == "" {
		http.Error(w, `{"error":"intent_type required for intent events"}`, http.StatusBadRequest)
		return
	}

	ev := &store.Event{
		Person:     req.Person,
		Action:     req.Action,
		IsIntent:   req.IsIntent,
		IntentType: req.IntentType,
		Location:   req.Location,
		States:     req.States,
		Signals:    req.Signals,
		Custom:     req.Custom,
		Prompt:     req.Prompt,
		OccurredAt: req.OccurredAt,
	}

	result, err := s.engine.IngestEvent(ev)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"event_id":                result.EventID,
		"scheduled_candidate_ids": result.ScheduledCandidateIDs,
		"related_reminder_id":     result.RelatedReminderID,
	})
}

func (s *Server) handleProcessCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	var req struct {
		BypassDateCheck bool `json:"bypass_date_check"`
	}
	// An empty body means no bypass.
	json.NewDecoder(r.Body).Decode(&req)

	result, err := s.engine.ProcessCandidate(candidateID, req.BypassDateCheck)
	if errors.Is(err, engine.ErrCandidateNotFound) {
		http.Error(w, `{"error":"candidate not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")

	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	fb, err := engine.ParseFeedback(req.Type)
	if err != nil {
		http.Error(w, `{"error":"type must be positive or negative"}`, http.StatusBadRequest)
		return
	}

	err = s.engine.SubmitFeedback(candidateID, fb)
	if errors.Is(err, engine.ErrCandidateNotFound) {
		http.Error(w, `{"error":"candidate not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	person := r.URL.Query().Get("person")
	if person == "" {
		http.Error(w, `{"error":"person required"}`, http.StatusBadRequest)
		return
	}
	status := r.URL.Query().Get("status")

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	candidates, err := s.db.CandidatesForPerson(person, status, limit)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"id":               c.ID,
			"suggested_action": c.SuggestedAction,
			"check_at":         c.CheckAt,
			"style":            c.Style,
			"status":           c.Status,
			"confidence":       c.Confidence,
			"pattern":          c.Pattern,
			"reason":           c.Reason,
			"custom":           c.Custom,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"candidates": out})
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	person := r.URL.Query().Get("person")
	if person == "" {
		http.Error(w, `{"error":"person required"}`, http.StatusBadRequest)
		return
	}

	routines, err := s.db.RoutinesForPerson(person)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(routines))
	for _, rt := range routines {
		reminders, err := s.db.RemindersForRoutine(rt.ID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		rems := make([]map[string]any, 0, len(reminders))
		for _, rem := range reminders {
			rems = append(rems, map[string]any{
				"id":               rem.ID,
				"bucket":           rem.Bucket,
				"suggested_action": rem.SuggestedAction,
				"confidence":       rem.Confidence,
				"delay_ema_min":    rem.DelayEMAMin,
				"evidence_count":   rem.EvidenceCount,
				"sample_count":     rem.SampleCount,
			})
		}

		out = append(out, map[string]any{
			"id":            rt.ID,
			"intent_type":   rt.IntentType,
			"window_open":   rt.WindowOpen,
			"window_start":  rt.WindowStart,
			"window_end":    rt.WindowEnd,
			"active_bucket": rt.ActiveBucket,
			"reminders":     rems,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"routines": out})
}

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	person := r.URL.Query().Get("person")
	if person == "" {
		http.Error(w, `{"error":"person required"}`, http.StatusBadRequest)
		return
	}

	transitions, err := s.db.TransitionsForPerson(person)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, map[string]any{
			"id":               t.ID,
			"from_action":      t.FromAction,
			"to_action":        t.ToAction,
			"bucket":           t.Bucket,
			"confidence":       t.Confidence,
			"occurrence_count": t.OccurrenceCount,
			"avg_delay_min":    t.AvgDelayMin,
			"last_observed":    t.LastObserved,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"transitions": out})
}
