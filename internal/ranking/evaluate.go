package ranking

import (
	"math"
	"time"
)

// Candidate is one item to rank, annotated with precomputed feature values.
type Candidate struct {
	ID          string             `json:"id" yaml:"id"`
	Features    map[string]float64 `json:"features" yaml:"features"`
	PublishedAt time.Time          `json:"published_at" yaml:"published_at"`
}

// Evaluate returns the weight factor d assigns to candidate c.
//
// The lookup is an exact match: a value matches a step only when it is integral
// and equal to the step's threshold. Missing, non-integral, NaN and infinite
// values all yield the fallback. There is no interpolation between steps.
func Evaluate(d FactorDefinition, c Candidate) float64 {
	w, _ := lookup(d, c)
	return w
}

// lookup is Evaluate that also reports whether a step matched.
func lookup(d FactorDefinition, c Candidate) (float64, bool) {
	value, ok := c.Features[d.FeatureKey]
	if !ok {
		return d.Fallback, false
	}
	key, ok := integralKey(value)
	if !ok {
		return d.Fallback, false
	}
	for _, step := range d.Steps {
		if step.Threshold == key {
			return step.Weight, true
		}
	}
	return d.Fallback, false
}

// integralKey converts v to an int bucket. Only whole numbers within int range
// produce a key.
func integralKey(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	t := math.Trunc(v)
	if t != v {
		return 0, false
	}
	if !fitsInt(t) {
		return 0, false
	}
	return int(t), true
}

// fitsInt reports whether the whole number t converts to int without overflow.
// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
func fitsInt(t float64) bool {
	return t >= float64(math.MinInt) && t < -float64(math.MinInt)
}
