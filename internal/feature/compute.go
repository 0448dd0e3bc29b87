package feature

import (
	"time"

	"github.com/onnwee/feedrank/internal/ranking"
)

// Signals are the per-article aggregates for one reader from which feature
// values are derived. Sources gather them however suits their storage.
type Signals struct {
	Article Article

	// FollowedCommentCount counts comments by authors the reader follows.
	FollowedCommentCount int
	// LatestFollowedComment is the newest such comment, nil when there is none.
	LatestFollowedComment *time.Time
	// MatchingTagCount counts article tags the reader follows.
	MatchingTagCount int
	FollowsAuthor    bool
	FollowsOrg       bool
}

// Reader is what a source knows about the person the feed is for.
type Reader struct {
	// Settings is nil when the reader has no settings row.
	Settings *UserSettings
}

// BuildCandidate computes the ranking candidate for s.
//
// Day counts are differences of UTC calendar dates. experience_level_distance
// is left out when the reader has no settings, and
// days_since_followed_comment when no followed author commented, so those
// factors apply their fallback.
func BuildCandidate(s Signals, r Reader, q Query) ranking.Candidate {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	a := s.Article

	features := map[string]float64{
		ranking.FeatureDaysSincePublished:   float64(DaysBetween(a.PublishedAt, now)),
		ranking.FeatureSpaminessRating:      float64(a.SpaminessRating),
		ranking.FeatureFollowedCommentCount: float64(s.FollowedCommentCount),
		ranking.FeatureMatchingTagCount:     float64(s.MatchingTagCount),
		ranking.FeatureFollowedAuthorCount:  boolCount(s.FollowsAuthor),
		ranking.FeatureCommentsCount:        float64(a.CommentsCount),
		ranking.FeatureReactionsCount:       float64(a.ReactionsCount),
		ranking.FeatureFollowedOrgCount:     boolCount(s.FollowsOrg),
	}

	if r.Settings != nil {
		level := q.DefaultExperienceLevel
		if r.Settings.ExperienceLevel != nil {
			level = *r.Settings.ExperienceLevel
		}
		features[ranking.FeatureExperienceLevelDistance] = float64(abs(a.ExperienceLevelRating - level))
	}

	if s.LatestFollowedComment != nil {
		features[ranking.FeatureDaysSinceFollowedComment] = float64(DaysBetween(*s.LatestFollowedComment, now))
	}

	return ranking.Candidate{
		ID:          a.ID,
		Features:    features,
		PublishedAt: a.PublishedAt,
	}
}

// DaysBetween returns the number of UTC calendar days from from to to.
// It is negative when from is on a later date.
func DaysBetween(from, to time.Time) int {
	f := utcDate(from)
	t := utcDate(to)
	return int(t.Sub(f).Hours() / 24)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func boolCount(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
