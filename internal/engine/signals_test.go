package engine

import (
	"math"
	"testing"

	"github.com/hollowpine/presage/internal/store"
)

func TestSelectAndNormalizeTopK(t *testing.T) {
	readings := map[string]store.SignalReading{
		"a": {Value: 1.0, Importance: 0.9},
		"b": {Value: 0.5, Importance: 0.9},
		"c": {Value: 0.1, Importance: 0.1},
		"d": {Value: 0.9, Importance: 0.8},
	}

	profile := SelectAndNormalize(readings, 2)
	if len(profile) != 2 {
		t.Fatalf("got %d entries, want 2", len(profile))
	}
	if _, ok := profile["a"]; !ok {
		t.Error("expected top signal a to be kept")
	}
	if _, ok := profile["d"]; !ok {
		t.Error("expected second signal d to be kept")
	}

	weightSum := 0.0
	for id, e := range profile {
		if e.Value < 0 || e.Value > 1 {
			t.Errorf("%s value %v out of [0,1]", id, e.Value)
		}
		weightSum += e.Weight
	}
	if math.Abs(weightSum-1) > 1e-9 {
		t.Errorf("weights sum to %v, want 1", weightSum)
	}

	// Largest kept magnitude normalizes to exactly 1
	if profile["a"].Value != 1 {
		t.Errorf("a value = %v, want 1", profile["a"].Value)
	}
}

func TestSelectAndNormalizeEmpty(t *testing.T) {
	if p := SelectAndNormalize(nil, 5); p != nil {
		t.Errorf("nil readings should yield nil profile, got %#v", p)
	}
	if p := SelectAndNormalize(map[string]store.SignalReading{"a": {Value: 1, Importance: 1}}, 0); p != nil {
		t.Errorf("topK 0 should yield nil profile, got %#v", p)
	}
}

func TestSimilarityReflexive(t *testing.T) {
	p := store.SignalProfile{
		"a": {Weight: 0.6, Value: 0.8},
		"b": {Weight: 0.4, Value: 0.3},
	}
	if sim := Similarity(p, p); sim != 1.0 {
		t.Errorf("Similarity(p, p) = %v, want 1.0", sim)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a := store.SignalProfile{
		"a": {Weight: 0.5, Value: 0.9},
		"b": {Weight: 0.5, Value: 0.2},
	}
	b := store.SignalProfile{
		"a": {Weight: 0.3, Value: 0.4},
		"c": {Weight: 0.7, Value: 0.6},
	}
	if ab, ba := Similarity(a, b), Similarity(b, a); ab != ba {
		t.Errorf("Similarity not symmetric: %v vs %v", ab, ba)
	}
}

func TestSimilarityBoundsAndEdges(t *testing.T) {
	if sim := Similarity(nil, nil); sim != 1.0 {
		t.Errorf("both empty = %v, want 1.0", sim)
	}
	p := store.SignalProfile{"a": {Weight: 1, Value: 0.5}}
	if sim := Similarity(p, nil); sim != 0.0 {
		t.Errorf("one empty = %v, want 0.0", sim)
	}
	if sim := Similarity(nil, p); sim != 0.0 {
		t.Errorf("one empty = %v, want 0.0", sim)
	}

	// Disjoint keys share no closeness
	q := store.SignalProfile{"b": {Weight: 1, Value: 0.5}}
	if sim := Similarity(p, q); sim != 0.0 {
		t.Errorf("disjoint = %v, want 0.0", sim)
	}

	// Arbitrary pairs stay in range
	r := store.SignalProfile{
		"a": {Weight: 0.2, Value: 1},
		"b": {Weight: 0.8, Value: 0},
	}
	if sim := Similarity(p, r); sim < 0 || sim > 1 {
		t.Errorf("similarity %v out of [0,1]", sim)
	}
}

func TestBlendBaseline(t *testing.T) {
	baseline := store.SignalProfile{
		"shared": {Weight: 0.5, Value: 0.0},
		"old":    {Weight: 0.5, Value: 0.3},
	}
	obs := store.SignalProfile{
		"shared": {Weight: 0.5, Value: 1.0},
		"new":    {Weight: 0.5, Value: 0.7},
	}

	out := BlendBaseline(baseline, obs, 0.3)

	if got := out["shared"].Value; math.Abs(got-0.3) > 1e-9 {
		t.Errorf("shared value = %v, want 0.3 (EMA toward observation)", got)
	}
	if got := out["old"].Weight; math.Abs(got-0.35) > 1e-9 {
		t.Errorf("old weight = %v, want 0.35 (faded)", got)
	}
	if got := out["new"].Weight; math.Abs(got-0.15) > 1e-9 {
		t.Errorf("new weight = %v, want 0.15 (entered at alpha strength)", got)
	}
	if got := out["new"].Value; got != 0.7 {
		t.Errorf("new value = %v, want 0.7 unchanged", got)
	}
}

func TestBlendBaselineDegenerateCases(t *testing.T) {
	obs := store.SignalProfile{"a": {Weight: 1, Value: 0.5}}

	out := BlendBaseline(nil, obs, 0.3)
	if out["a"] != obs["a"] {
		t.Errorf("empty baseline should adopt observation, got %#v", out)
	}

	baseline := store.SignalProfile{"a": {Weight: 1, Value: 0.5}}
	if got := BlendBaseline(baseline, nil, 0.3); len(got) != 1 || got["a"] != baseline["a"] {
		t.Errorf("empty observation should keep baseline, got %#v", got)
	}
}
