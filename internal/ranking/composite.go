package ranking

// CompositeScore multiplies the weights of every factor for candidate c, in the
// order given. An empty factor list scores 1. The result is never clamped.
func CompositeScore(factors []FactorDefinition, c Candidate) float64 {
	score := 1.0
	for _, d := range factors {
		score *= Evaluate(d, c)
	}
	return score
}

// Contribution is one factor's part of an item's composite score.
type Contribution struct {
	Factor     string   `json:"factor"`
	FeatureKey string   `json:"feature_key"`
	Value      *float64 `json:"value,omitempty"` // nil when the feature was missing or not finite
	Weight     float64  `json:"weight"`
	Matched    bool     `json:"matched"` // false when the fallback applied
}

// Explanation breaks a composite score down by factor.
type Explanation struct {
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions"`
}

// Explain scores c like CompositeScore and records every factor's contribution.
func Explain(factors []FactorDefinition, c Candidate) Explanation {
	exp := Explanation{
		ID:            c.ID,
		Score:         1.0,
		Contributions: make([]Contribution, 0, len(factors)),
	}
	for _, d := range factors {
		weight, matched := lookup(d, c)
		contrib := Contribution{
			Factor:     d.Name,
			FeatureKey: d.FeatureKey,
			Weight:     weight,
			Matched:    matched,
		}
		if v, ok := c.Features[d.FeatureKey]; ok && finite(v) {
			contrib.Value = &v
		}
		exp.Score *= weight
		exp.Contributions = append(exp.Contributions, contrib)
	}
	return exp
}
