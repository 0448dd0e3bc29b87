package ranking

import (
	"fmt"
)

// Feature keys read by the default registry. The feature layer must populate
// these on every candidate it produces; missing keys fall back.
const (
	FeatureDaysSincePublished       = "days_since_published"
	FeatureSpaminessRating          = "spaminess_rating"
	FeatureExperienceLevelDistance  = "experience_level_distance"
	FeatureFollowedCommentCount     = "followed_comment_count"
	FeatureDaysSinceFollowedComment = "days_since_followed_comment"
	FeatureMatchingTagCount         = "matching_tag_count"
	FeatureFollowedAuthorCount      = "followed_author_count"
	FeatureCommentsCount            = "comments_count"
	FeatureReactionsCount           = "reactions_count"
	FeatureFollowedOrgCount         = "followed_org_count"
)

// Default factor names, in declaration order.
const (
	FactorDailyDecay                  = "daily_decay"
	FactorSpaminess                   = "spaminess"
	FactorExperience                  = "experience"
	FactorCommentCountByThoseFollowed = "comment_count_by_those_followed"
	FactorLatestComment               = "latest_comment"
	FactorMatchingTags                = "matching_tags"
	FactorFollowingAuthor             = "following_author"
	FactorCommentsCount               = "comments_count"
	FactorReactions                   = "reactions"
	FactorFollowingOrg                = "following_org"
)

// Registry is the fixed, ordered catalog of scoring factors.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	order []string
	defs  map[string]FactorDefinition
}

// NewRegistry validates the definitions and returns a registry preserving their order.
// Any malformed definition or duplicate name is an error.
func NewRegistry(defs ...FactorDefinition) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(defs)),
		defs:  make(map[string]FactorDefinition, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.defs[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFactor, d.Name)
		}
		r.order = append(r.order, d.Name)
		r.defs[d.Name] = d.clone()
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
// Intended for package-level defaults and tests.
func MustNewRegistry(defs ...FactorDefinition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of registered factors.
func (r *Registry) Len() int {
	return len(r.order)
}

// Names returns factor names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns a copy of the named definition.
func (r *Registry) Lookup(name string) (FactorDefinition, bool) {
	d, ok := r.defs[name]
	if !ok {
		return FactorDefinition{}, false
	}
	return d.clone(), true
}

// Definitions returns copies of all definitions in declaration order.
func (r *Registry) Definitions() []FactorDefinition {
	out := make([]FactorDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].clone())
	}
	return out
}

// DefaultFactors returns the built-in factor definitions.
//
// Each factor is a penalty multiplier: 1 leaves the score untouched, smaller
// values demote. Day-count factors read whole calendar days.
func DefaultFactors() []FactorDefinition {
	return []FactorDefinition{
		{
			Name:        FactorDailyDecay,
			FeatureKey:  FeatureDaysSincePublished,
			Description: "Age of the article in days",
			Steps: []Step{
				{0, 1}, {1, 0.95}, {2, 0.9},
				{3, 0.85}, {4, 0.8}, {5, 0.75},
				{6, 0.7}, {7, 0.65}, {8, 0.6},
				{9, 0.55}, {10, 0.5}, {11, 0.4},
				{12, 0.3}, {13, 0.2}, {14, 0.1},
			},
			Fallback: 0,
		},
		{
			Name:        FactorSpaminess,
			FeatureKey:  FeatureSpaminessRating,
			Description: "Spaminess rating of the article",
			Steps:       []Step{{0, 1}},
			Fallback:    0.05,
		},
		{
			Name:        FactorExperience,
			FeatureKey:  FeatureExperienceLevelDistance,
			Description: "Distance between article and reader experience levels",
			Steps:       []Step{{0, 1}, {1, 0.98}, {2, 0.97}, {3, 0.96}, {4, 0.95}, {5, 0.94}},
			Fallback:    0.93,
		},
		{
			Name:        FactorCommentCountByThoseFollowed,
			FeatureKey:  FeatureFollowedCommentCount,
			Description: "Comments on the article by users the reader follows",
			Steps:       []Step{{0, 0.95}, {1, 0.98}, {2, 0.99}},
			Fallback:    0.93,
		},
		{
			Name:        FactorLatestComment,
			FeatureKey:  FeatureDaysSinceFollowedComment,
			Description: "Days since the latest comment by a followed user",
			Steps:       []Step{{0, 1}, {1, 0.9988}},
			Fallback:    0.988,
		},
		{
			Name:        FactorMatchingTags,
			FeatureKey:  FeatureMatchingTagCount,
			Description: "Article tags the reader follows",
			Steps:       []Step{{0, 0.4}, {1, 0.9}},
			Fallback:    1,
		},
		{
			Name:        FactorFollowingAuthor,
			FeatureKey:  FeatureFollowedAuthorCount,
			Description: "Reader follows the article's author",
			Steps:       []Step{{0, 0.8}, {1, 1}},
			Fallback:    1,
		},
		{
			Name:        FactorCommentsCount,
			FeatureKey:  FeatureCommentsCount,
			Description: "Total comments on the article",
			Steps:       []Step{{0, 0.9}, {1, 0.94}, {2, 0.95}, {3, 0.98}, {4, 0.999}},
			Fallback:    1,
		},
		{
			Name:        FactorReactions,
			FeatureKey:  FeatureReactionsCount,
			Description: "Total reactions on the article",
			Steps:       []Step{{0, 0.9988}, {1, 0.9988}, {2, 0.9988}, {3, 0.9988}},
			Fallback:    1,
		},
		{
			Name:        FactorFollowingOrg,
			FeatureKey:  FeatureFollowedOrgCount,
			Description: "Reader follows the article's organization",
			Steps:       []Step{{0, 0.95}, {1, 1}},
			Fallback:    1,
		},
	}
}

// DefaultRegistry returns a registry of DefaultFactors.
func DefaultRegistry() *Registry {
	return MustNewRegistry(DefaultFactors()...)
}
