package ranking

import (
	"math"
	"testing"
)

// TestEvaluate tests exact-match step lookup.
func TestEvaluate(t *testing.T) {
	d := FactorDefinition{
		Name:       "decay",
		FeatureKey: "age",
		Steps:      []Step{{0, 1.0}, {1, 0.95}, {-2, 0.4}},
		Fallback:   0,
	}

	tests := []struct {
		name     string
		features map[string]float64
		want     float64
	}{
		{"matches zero", map[string]float64{"age": 0}, 1.0},
		{"matches one", map[string]float64{"age": 1}, 0.95},
		{"matches negative threshold", map[string]float64{"age": -2}, 0.4},
		{"no interpolation between steps", map[string]float64{"age": 2}, 0},
		{"fractional value falls back", map[string]float64{"age": 1.5}, 0},
		{"fractional value near threshold falls back", map[string]float64{"age": 0.999}, 0},
		{"missing feature falls back", map[string]float64{"other": 1}, 0},
		{"nil features fall back", nil, 0},
		{"NaN falls back", map[string]float64{"age": math.NaN()}, 0},
		{"positive infinity falls back", map[string]float64{"age": math.Inf(1)}, 0},
		{"negative infinity falls back", map[string]float64{"age": math.Inf(-1)}, 0},
		{"huge value falls back", map[string]float64{"age": 1e18}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(d, Candidate{ID: "c", Features: tt.features})
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestEvaluate_LargeThresholds tests that thresholds beyond 32 bits still match.
func TestEvaluate_LargeThresholds(t *testing.T) {
	d := FactorDefinition{
		Name:       "big",
		FeatureKey: "k",
		Steps:      []Step{{3000000000, 0.5}, {-3000000000, 0.25}, {1 << 53, 0.125}},
		Fallback:   1,
	}

	tests := []struct {
		value float64
		want  float64
	}{
		{3e9, 0.5},
		{-3e9, 0.25},
		{1 << 53, 0.125},
		{3e9 + 1, 1},
		{1e19, 1},
		{-1e19, 1},
	}

	for _, tt := range tests {
		got := Evaluate(d, Candidate{Features: map[string]float64{"k": tt.value}})
		if got != tt.want {
			t.Errorf("value %v: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

// TestEvaluate_EmptyTable tests that a factor with no steps always falls back.
func TestEvaluate_EmptyTable(t *testing.T) {
	d := FactorDefinition{Name: "flat", FeatureKey: "k", Fallback: 0.7}

	for _, v := range []float64{0, 1, -1, 100} {
		if got := Evaluate(d, Candidate{Features: map[string]float64{"k": v}}); got != 0.7 {
			t.Errorf("value %v: expected fallback 0.7, got %v", v, got)
		}
	}
}

// TestEvaluate_DefaultSpaminess tests the built-in spaminess demotion.
func TestEvaluate_DefaultSpaminess(t *testing.T) {
	d, ok := DefaultRegistry().Lookup(FactorSpaminess)
	if !ok {
		t.Fatal("spaminess factor not registered")
	}

	clean := Candidate{Features: map[string]float64{FeatureSpaminessRating: 0}}
	spam := Candidate{Features: map[string]float64{FeatureSpaminessRating: 3}}

	if got := Evaluate(d, clean); got != 1 {
		t.Errorf("expected clean weight 1, got %v", got)
	}
	if got := Evaluate(d, spam); got != 0.05 {
		t.Errorf("expected spam weight 0.05, got %v", got)
	}
}
