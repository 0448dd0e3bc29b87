package feature

import (
	"testing"
	"time"

	"github.com/onnwee/feedrank/internal/ranking"
)

func intPtr(v int) *int { return &v }

func TestDaysBetween(t *testing.T) {
	now := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		from time.Time
		want int
	}{
		{"same instant", now, 0},
		{"earlier same day", time.Date(2024, 5, 10, 0, 0, 1, 0, time.UTC), 0},
		{"late yesterday is one day", time.Date(2024, 5, 9, 23, 59, 0, 0, time.UTC), 1},
		{"two weeks", time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC), 14},
		{"future date is negative", time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), -2},
		{"non-UTC zone uses UTC date", time.Date(2024, 5, 9, 20, 0, 0, 0, time.FixedZone("EST", -5*3600)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.from, now); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestBuildCandidate(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	latest := now.AddDate(0, 0, -1)

	sig := Signals{
		Article: Article{
			ID:                    "a1",
			PublishedAt:           now.AddDate(0, 0, -3),
			CommentsCount:         4,
			ReactionsCount:        9,
			SpaminessRating:       0,
			ExperienceLevelRating: 7,
		},
		FollowedCommentCount:  2,
		LatestFollowedComment: &latest,
		MatchingTagCount:      1,
		FollowsAuthor:         true,
	}

	t.Run("full signals", func(t *testing.T) {
		c := BuildCandidate(sig, Reader{Settings: &UserSettings{ExperienceLevel: intPtr(3)}}, Query{Now: now, DefaultExperienceLevel: 5})

		want := map[string]float64{
			ranking.FeatureDaysSincePublished:       3,
			ranking.FeatureSpaminessRating:          0,
			ranking.FeatureExperienceLevelDistance:  4,
			ranking.FeatureFollowedCommentCount:     2,
			ranking.FeatureDaysSinceFollowedComment: 1,
			ranking.FeatureMatchingTagCount:         1,
			ranking.FeatureFollowedAuthorCount:      1,
			ranking.FeatureCommentsCount:            4,
			ranking.FeatureReactionsCount:           9,
			ranking.FeatureFollowedOrgCount:         0,
		}
		if c.ID != "a1" || !c.PublishedAt.Equal(sig.Article.PublishedAt) {
			t.Errorf("unexpected identity: %+v", c)
		}
		if len(c.Features) != len(want) {
			t.Errorf("expected %d features, got %d", len(want), len(c.Features))
		}
		for k, v := range want {
			if got, ok := c.Features[k]; !ok || got != v {
				t.Errorf("%s: expected %v, got %v (present=%v)", k, v, got, ok)
			}
		}
	})

	t.Run("settings without level use default", func(t *testing.T) {
		c := BuildCandidate(sig, Reader{Settings: &UserSettings{}}, Query{Now: now, DefaultExperienceLevel: 9})
		if got := c.Features[ranking.FeatureExperienceLevelDistance]; got != 2 {
			t.Errorf("expected distance 2, got %v", got)
		}
	})

	t.Run("no settings row omits distance", func(t *testing.T) {
		c := BuildCandidate(sig, Reader{}, Query{Now: now, DefaultExperienceLevel: 7})
		if _, ok := c.Features[ranking.FeatureExperienceLevelDistance]; ok {
			t.Error("expected experience distance to be absent")
		}
	})

	t.Run("no followed comment omits latest", func(t *testing.T) {
		s := sig
		s.LatestFollowedComment = nil
		s.FollowedCommentCount = 0
		c := BuildCandidate(s, Reader{}, Query{Now: now})
		if _, ok := c.Features[ranking.FeatureDaysSinceFollowedComment]; ok {
			t.Error("expected days since followed comment to be absent")
		}
		if c.Features[ranking.FeatureFollowedCommentCount] != 0 {
			t.Error("expected zero followed comment count")
		}
	})
}
