package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.yaml.in/yaml/v3"
)

// Definition errors. These are configuration errors: they surface when a registry
// or calibration is loaded, never while serving a request.
var (
	ErrEmptyFactorName    = errors.New("factor name is required")
	ErrEmptyFeatureKey    = errors.New("factor feature key is required")
	ErrDuplicateFactor    = errors.New("duplicate factor name")
	ErrDuplicateThreshold = errors.New("duplicate step threshold")
	ErrInvalidWeight      = errors.New("weight must be a finite number")
	ErrMalformedStep      = errors.New("step must be a [threshold, weight] pair")
)

// Step is one bucket of a factor's step function.
// A feature value equal to Threshold yields Weight.
type Step struct {
	Threshold int     `json:"threshold" yaml:"threshold"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// MarshalJSON encodes the step as a [threshold, weight] pair.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(s.Threshold), s.Weight})
}

// UnmarshalJSON accepts either a [threshold, weight] pair or an object with
// threshold and weight fields. Non-integer thresholds are truncated.
func (s *Step) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		return s.fromPair(pair)
	}

	var obj struct {
		Threshold *float64 `json:"threshold"`
		Weight    *float64 `json:"weight"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return ErrMalformedStep
	}
	if obj.Threshold == nil || obj.Weight == nil {
		return ErrMalformedStep
	}
	return s.fromPair([]float64{*obj.Threshold, *obj.Weight})
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML experiment files.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var pair []float64
		if err := node.Decode(&pair); err != nil {
			return ErrMalformedStep
		}
		return s.fromPair(pair)
	}

	var obj struct {
		Threshold *float64 `yaml:"threshold"`
		Weight    *float64 `yaml:"weight"`
	}
	if err := node.Decode(&obj); err != nil || obj.Threshold == nil || obj.Weight == nil {
		return ErrMalformedStep
	}
	return s.fromPair([]float64{*obj.Threshold, *obj.Weight})
}

func (s *Step) fromPair(pair []float64) error {
	if len(pair) != 2 {
		return ErrMalformedStep
	}
	if math.IsNaN(pair[0]) || math.IsInf(pair[0], 0) {
		return ErrMalformedStep
	}
	t := math.Trunc(pair[0])
	if !fitsInt(t) {
		return ErrMalformedStep
	}
	s.Threshold = int(t)
	s.Weight = pair[1]
	return nil
}

// FactorDefinition is an immutable registry entry describing one scoring factor.
type FactorDefinition struct {
	Name        string  `json:"name"`
	FeatureKey  string  `json:"feature_key"`
	Description string  `json:"description,omitempty"`
	Steps       []Step  `json:"steps"`
	Fallback    float64 `json:"fallback"`
}

// Validate checks that the definition is well formed: named, bound to a feature,
// with distinct thresholds and finite weights. Weights outside [0, 1] are allowed.
func (d FactorDefinition) Validate() error {
	if d.Name == "" {
		return ErrEmptyFactorName
	}
	if d.FeatureKey == "" {
		return fmt.Errorf("factor %q: %w", d.Name, ErrEmptyFeatureKey)
	}
	if err := validateTable(d.Steps, d.Fallback); err != nil {
		return fmt.Errorf("factor %q: %w", d.Name, err)
	}
	return nil
}

// validateTable checks a step table and fallback independently of the factor identity.
func validateTable(steps []Step, fallback float64) error {
	seen := make(map[int]struct{}, len(steps))
	for _, step := range steps {
		if _, dup := seen[step.Threshold]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateThreshold, step.Threshold)
		}
		seen[step.Threshold] = struct{}{}
		if !finite(step.Weight) {
			return fmt.Errorf("threshold %d: %w", step.Threshold, ErrInvalidWeight)
		}
	}
	if !finite(fallback) {
		return fmt.Errorf("fallback: %w", ErrInvalidWeight)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// clone returns a deep copy so callers can never mutate registry state.
func (d FactorDefinition) clone() FactorDefinition {
	out := d
	out.Steps = append([]Step(nil), d.Steps...)
	return out
}

// FactorOverride is caller-supplied tuning for a registered factor.
// Only the step table and fallback are honored; FeatureKey is decoded so that
// callers sending it get no error, but it is always discarded.
type FactorOverride struct {
	FeatureKey string   `json:"feature_key,omitempty" yaml:"feature_key,omitempty"`
	Steps      []Step   `json:"steps,omitempty" yaml:"steps,omitempty"`
	Fallback   *float64 `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// complete reports whether the override carries a usable, valid table.
func (o FactorOverride) complete() bool {
	return o.rejection() == ""
}

// rejection returns why the override cannot be applied, or "" when it can.
func (o FactorOverride) rejection() string {
	if len(o.Steps) == 0 || o.Fallback == nil {
		return RejectPartial
	}
	if validateTable(o.Steps, *o.Fallback) != nil {
		return RejectInvalid
	}
	return ""
}
