// Package confidence combines weighted signals into one normalised score.
// All functions are pure.
package confidence

import "math"

// DefaultFallback is the score used when no signal carries weight.
const DefaultFallback = 0.6

// Common signal sources.
const (
	SourceRetrieval = "retrieval"
	SourceIntent    = "intent"
	SourceTools     = "tools"
)

// Signal is one weighted input. A zero or negative Weight counts as 1.
type Signal struct {
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// Summary is the aggregate with its normalised inputs kept for auditing.
type Summary struct {
	Score       float64  `json:"score"`
	RawScore    float64  `json:"rawScore"`
	TotalWeight float64  `json:"totalWeight"`
	Signals     []Signal `json:"signals"`
}

// Clamp bounds v to [0,1]. Non-finite values become 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}

// Normalize drops non-finite scores, clamps the rest and defaults weights.
func Normalize(signals []Signal) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
			continue
		}
		w := s.Weight
		if !(w > 0) || math.IsInf(w, 0) {
			w = 1
		}
		out = append(out, Signal{
			Source:    s.Source,
			Score:     Clamp(s.Score),
			Weight:    w,
			Rationale: s.Rationale,
		})
	}
	return out
}

// Aggregate returns the weighted mean of the normalised signals, or the
// clamped fallback when no signal survives normalisation.
func Aggregate(signals []Signal, fallback float64) Summary {
	normalized := Normalize(signals)

	var totalWeight, weighted float64
	for _, s := range normalized {
		totalWeight += s.Weight
		weighted += s.Score * s.Weight
	}

	raw := Clamp(fallback)
	if totalWeight > 0 {
		raw = weighted / totalWeight
	}

	return Summary{
		Score:       Clamp(raw),
		RawScore:    raw,
		TotalWeight: totalWeight,
		Signals:     normalized,
	}
}

// Explicit builds a summary around a caller-supplied score, keeping the
// unclamped input as RawScore. A non-finite score resolves to fallback for
// both, since it cannot be stored.
func Explicit(score float64, signals []Signal, fallback float64) Summary {
	base := Aggregate(signals, fallback)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = Clamp(fallback)
	}
	base.Score = Clamp(score)
	base.RawScore = score
	return base
}
