package confidence

import (
	"math"
	"testing"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name       string
		signals    []Signal
		fallback   float64
		wantScore  float64
		wantWeight float64
		wantCount  int
	}{
		{
			name:       "even split",
			signals:    []Signal{{Source: "a", Score: 1, Weight: 1}, {Source: "b", Score: 0, Weight: 1}},
			fallback:   0.6,
			wantScore:  0.5,
			wantWeight: 2,
			wantCount:  2,
		},
		{
			name:       "empty uses fallback",
			signals:    nil,
			fallback:   0.6,
			wantScore:  0.6,
			wantWeight: 0,
			wantCount:  0,
		},
		{
			name:       "fallback clamped",
			signals:    nil,
			fallback:   1.7,
			wantScore:  1,
			wantWeight: 0,
		},
		{
			name:       "weights applied",
			signals:    []Signal{{Score: 1, Weight: 3}, {Score: 0, Weight: 1}},
			fallback:   0.6,
			wantScore:  0.75,
			wantWeight: 4,
			wantCount:  2,
		},
		{
			name:       "non-positive weight defaults to one",
			signals:    []Signal{{Score: 1, Weight: -2}, {Score: 0}},
			fallback:   0.6,
			wantScore:  0.5,
			wantWeight: 2,
			wantCount:  2,
		},
		{
			name:       "scores clamped",
			signals:    []Signal{{Score: 4}, {Score: -1}},
			fallback:   0.6,
			wantScore:  0.5,
			wantWeight: 2,
			wantCount:  2,
		},
		{
			name:       "non-finite dropped",
			signals:    []Signal{{Score: math.NaN()}, {Score: math.Inf(1)}, {Score: 0.8}},
			fallback:   0.6,
			wantScore:  0.8,
			wantWeight: 1,
			wantCount:  1,
		},
		{
			name:       "all non-finite uses fallback",
			signals:    []Signal{{Score: math.NaN()}},
			fallback:   0.3,
			wantScore:  0.3,
			wantWeight: 0,
			wantCount:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.signals, tt.fallback)
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.TotalWeight != tt.wantWeight {
				t.Errorf("TotalWeight = %v, want %v", got.TotalWeight, tt.wantWeight)
			}
			if len(got.Signals) != tt.wantCount {
				t.Errorf("len(Signals) = %d, want %d", len(got.Signals), tt.wantCount)
			}
		})
	}
}

func TestAggregateKeepsBreakdown(t *testing.T) {
	got := Aggregate([]Signal{{Source: SourceRetrieval, Score: 0.9, Weight: 2, Rationale: "top match"}}, DefaultFallback)
	if len(got.Signals) != 1 {
		t.Fatalf("len(Signals) = %d, want 1", len(got.Signals))
	}
	s := got.Signals[0]
	if s.Source != SourceRetrieval || s.Rationale != "top match" || s.Weight != 2 {
		t.Errorf("signal breakdown = %+v", s)
	}
}

func TestExplicit(t *testing.T) {
	got := Explicit(1.4, nil, DefaultFallback)
	if got.Score != 1 {
		t.Errorf("Score = %v, want 1", got.Score)
	}
	if got.RawScore != 1.4 {
		t.Errorf("RawScore = %v, want 1.4", got.RawScore)
	}

	got = Explicit(math.NaN(), nil, 0.6)
	if got.Score != 0.6 {
		t.Errorf("non-finite explicit Score = %v, want 0.6", got.Score)
	}
}

func TestClamp(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0.25: 0.25, 2: 1}
	for in, want := range cases {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%v) = %v, want %v", in, got, want)
		}
	}
	if got := Clamp(math.Inf(-1)); got != 0 {
		t.Errorf("Clamp(-Inf) = %v, want 0", got)
	}
}
