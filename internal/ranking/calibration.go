package ranking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// ErrUnknownCalibrationFactor is returned when a calibration file tunes a factor
// that is not in the default registry.
var ErrUnknownCalibrationFactor = errors.New("calibration references unknown factor")

// FactorCalibration tunes one factor at deploy time. Either field may be omitted
// to keep the default. The feature a factor reads cannot be calibrated.
type FactorCalibration struct {
	Steps    []Step   `json:"steps,omitempty"`
	Fallback *float64 `json:"fallback,omitempty"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string                       `json:"version"` // Config version for future compatibility
	Factors map[string]FactorCalibration `json:"factors"` // Per-factor overrides
}

// LoadCalibration builds the factor registry from the defaults plus an optional
// JSON calibration file.
//
// An empty path yields DefaultRegistry. Unlike request-time overrides, a bad
// calibration is a startup error: unreadable files, unknown fields (including
// feature_key), unknown factor names, duplicate thresholds and non-finite
// weights are all returned as errors and no registry is produced.
func LoadCalibration(filePath string) (*Registry, error) {
	if filePath == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	cal, err := ParseCalibration(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", filePath, err)
	}

	defaults := DefaultFactors()
	merged, err := MergeCalibration(defaults, cal)
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(merged...)
	if err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}

	logCalibrationOverrides(cal)
	return registry, nil
}

// ParseCalibration decodes a calibration document, rejecting unknown fields.
func ParseCalibration(data []byte) (*CalibrationConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cal CalibrationConfig
	if err := dec.Decode(&cal); err != nil {
		return nil, err
	}
	return &cal, nil
}

// MergeCalibration applies cal to base and returns new definitions in base's order.
// Only fields present in the calibration replace the defaults, which allows
// partial overrides in the calibration file.
func MergeCalibration(base []FactorDefinition, cal *CalibrationConfig) ([]FactorDefinition, error) {
	out := make([]FactorDefinition, len(base))
	index := make(map[string]int, len(base))
	for i, d := range base {
		out[i] = d.clone()
		index[d.Name] = i
	}
	if cal == nil {
		return out, nil
	}

	for name, fc := range cal.Factors {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCalibrationFactor, name)
		}
		if len(fc.Steps) > 0 {
			out[i].Steps = append([]Step(nil), fc.Steps...)
		}
		if fc.Fallback != nil {
			out[i].Fallback = *fc.Fallback
		}
	}

	return out, nil
}

// logCalibrationOverrides logs which factors were overridden from defaults.
func logCalibrationOverrides(cal *CalibrationConfig) {
	var overrides []string
	for name, fc := range cal.Factors {
		if len(fc.Steps) > 0 {
			overrides = append(overrides, fmt.Sprintf("%s.steps (%d)", name, len(fc.Steps)))
		}
		if fc.Fallback != nil {
			overrides = append(overrides, fmt.Sprintf("%s.fallback -> %g", name, *fc.Fallback))
		}
	}
	sort.Strings(overrides)

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"version", cal.Version,
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)",
			"version", cal.Version)
	}
}
