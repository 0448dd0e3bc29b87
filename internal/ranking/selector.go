package ranking

import "sort"

// Config is the per-request scoring configuration.
type Config struct {
	// SelectedFactors names the factors to apply. Empty (after unknown names are
	// dropped) means every registered factor.
	SelectedFactors []string `json:"factors,omitempty" yaml:"factors,omitempty"`

	// Overrides tunes the step table and fallback of selected factors, keyed by name.
	Overrides map[string]FactorOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`

	// ContextParameters are opaque values for the feature layer (for example
	// default_experience_level). The engine only passes them through.
	ContextParameters map[string]string `json:"context_parameters,omitempty" yaml:"context_parameters,omitempty"`
}

// Selection is the outcome of resolving a Config against a Registry.
type Selection struct {
	// Factors are the active definitions in registry declaration order.
	Factors []FactorDefinition

	// Unknown lists selected or overridden names absent from the registry.
	Unknown []string

	// Rejected lists factors whose override was partial or invalid and
	// therefore reverted to the registry default, in declaration order.
	Rejected []RejectedOverride
}

// Reasons an override is reverted to the registry default.
const (
	// RejectPartial means the override lacked a step table or a fallback.
	RejectPartial = "partial"
	// RejectInvalid means the step table or fallback failed validation.
	RejectInvalid = "invalid"
)

// RejectedOverride names a factor whose override was not applied and why.
type RejectedOverride struct {
	Factor string `json:"factor"`
	Reason string `json:"reason"`
}

// Select resolves cfg against the registry.
//
// Factors are walked in declaration order and included only when selected.
// An accepted override replaces the step table and fallback; the feature key is
// always the registry's. Unknown names are reported, never an error.
func (r *Registry) Select(cfg Config) Selection {
	var sel Selection

	selected := make(map[string]bool, len(cfg.SelectedFactors))
	for _, name := range cfg.SelectedFactors {
		if _, ok := r.defs[name]; !ok {
			sel.Unknown = appendUnique(sel.Unknown, name)
			continue
		}
		selected[name] = true
	}
	for name := range cfg.Overrides {
		if _, ok := r.defs[name]; !ok {
			sel.Unknown = appendUnique(sel.Unknown, name)
		}
	}
	sort.Strings(sel.Unknown)
	// Unknown names are dropped before the empty check, so a selection of only
	// unknown names behaves exactly like no selection.
	all := len(selected) == 0

	sel.Factors = make([]FactorDefinition, 0, len(r.order))
	for _, name := range r.order {
		if !all && !selected[name] {
			continue
		}

		def := r.defs[name].clone()
		if override, ok := cfg.Overrides[name]; ok {
			if reason := override.rejection(); reason == "" {
				def.Steps = append([]Step(nil), override.Steps...)
				def.Fallback = *override.Fallback
			} else {
				sel.Rejected = append(sel.Rejected, RejectedOverride{Factor: name, Reason: reason})
			}
		}
		// Never taken from caller input.
		def.FeatureKey = r.defs[name].FeatureKey

		sel.Factors = append(sel.Factors, def)
	}

	return sel
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
