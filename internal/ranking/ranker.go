package ranking

import (
	"math"
	"sort"
	"time"
)

// DefaultPageSize is the window size used when a caller does not ask for one.
const DefaultPageSize = 50

// ScoredItem is a candidate with its composite score. It exists only for the
// duration of one ranking computation.
type ScoredItem struct {
	ID          string    `json:"id"`
	Score       float64   `json:"score"`
	PublishedAt time.Time `json:"published_at"`
}

// Window selects the top n items by relevance and returns them newest first.
//
// Relevance order is score DESC, published_at DESC, id ASC. The selected window
// is then re-sorted by published_at DESC, id ASC for presentation, so a newer
// item in the window precedes an older one with a higher score.
// n <= 0 or an empty input returns an empty slice. The input is not modified.
func Window(items []ScoredItem, n int) []ScoredItem {
	if n <= 0 || len(items) == 0 {
		return []ScoredItem{}
	}

	ranked := make([]ScoredItem, len(items))
	copy(ranked, items)
	sortByRelevance(ranked)

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sortByRecency(ranked)
	return ranked
}

// sortByRelevance sorts by score DESC, then published_at DESC, then ID ASC.
// NaN scores rank below every number and tie with each other.
func sortByRelevance(items []ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		iNaN, jNaN := math.IsNaN(items[i].Score), math.IsNaN(items[j].Score)
		if iNaN != jNaN {
			return jNaN
		}
		if !iNaN && items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		// Tie-break by ID ASC so equal keys still produce a total order
		return items[i].ID < items[j].ID
	})
}

// sortByRecency sorts by published_at DESC, then ID ASC.
func sortByRecency(items []ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// IDs extracts item identifiers in order.
func IDs(items []ScoredItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
