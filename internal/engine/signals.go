package engine

import (
	"math"
	"sort"

	"github.com/hollowpine/presage/internal/store"
)

// SelectAndNormalize reduces raw signal readings to a top-K weighted profile.
// Readings are ranked by importance times magnitude; the kept values are
// rescaled into [0,1] against the largest kept magnitude and the kept weights
// are normalized to sum to 1.
func SelectAndNormalize(readings map[string]store.SignalReading, topK int) store.SignalProfile {
	if len(readings) == 0 || topK <= 0 {
		return nil
	}

	type ranked struct {
		id    string
		score float64
	}
	order := make([]ranked, 0, len(readings))
	for id, r := range readings {
		order = append(order, ranked{id: id, score: r.Importance * math.Abs(r.Value)})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].id < order[j].id // stable for equal scores
	})
	if len(order) > topK {
		order = order[:topK]
	}

	maxVal := 0.0
	weightSum := 0.0
	for _, o := range order {
		r := readings[o.id]
		if mag := math.Abs(r.Value); mag > maxVal {
			maxVal = mag
		}
		weightSum += r.Importance
	}

	profile := make(store.SignalProfile, len(order))
	for _, o := range order {
		r := readings[o.id]
		value := 0.0
		if maxVal > 0 {
			value = math.Abs(r.Value) / maxVal
		}
		weight := 0.0
		if weightSum > 0 {
			weight = r.Importance / weightSum
		} else {
			weight = 1.0 / float64(len(order))
		}
		profile[o.id] = store.ProfileEntry{Weight: weight, Value: value}
	}
	return profile
}

// Similarity scores two profiles in [0,1]. Per shared key the closeness is
// 1-|va-vb| weighted by the mean of the two weights; a key present on one
// side only contributes zero closeness at that side's weight. Reflexive and
// symmetric. Two empty profiles compare as identical.
func Similarity(a, b store.SignalProfile) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}

	weightSum := 0.0
	scoreSum := 0.0
	for k := range union {
		ea, inA := a[k]
		eb, inB := b[k]
		switch {
		case inA && inB:
			w := (ea.Weight + eb.Weight) / 2
			closeness := 1 - math.Abs(ea.Value-eb.Value)
			if closeness < 0 {
				closeness = 0
			}
			weightSum += w
			scoreSum += w * closeness
		case inA:
			weightSum += ea.Weight
		default:
			weightSum += eb.Weight
		}
	}
	if weightSum == 0 {
		return 0.0
	}

	sim := scoreSum / weightSum
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// BlendBaseline folds an observed profile into a stored baseline by EMA:
// shared keys move toward the observation by alpha, keys only in the
// observation enter at alpha strength, keys only in the baseline fade by
// (1-alpha). A nil baseline adopts the observation as-is.
func BlendBaseline(baseline, obs store.SignalProfile, alpha float64) store.SignalProfile {
	if len(obs) == 0 {
		return baseline
	}
	if len(baseline) == 0 {
		out := make(store.SignalProfile, len(obs))
		for k, v := range obs {
			out[k] = v
		}
		return out
	}

	out := make(store.SignalProfile, len(baseline)+len(obs))
	for k, base := range baseline {
		if o, ok := obs[k]; ok {
			out[k] = store.ProfileEntry{
				Weight: base.Weight + alpha*(o.Weight-base.Weight),
				Value:  base.Value + alpha*(o.Value-base.Value),
			}
		} else {
			out[k] = store.ProfileEntry{
				Weight: base.Weight * (1 - alpha),
				Value:  base.Value,
			}
		}
	}
	for k, o := range obs {
		if _, ok := baseline[k]; !ok {
			out[k] = store.ProfileEntry{Weight: o.Weight * alpha, Value: o.Value}
		}
	}
	return out
}
