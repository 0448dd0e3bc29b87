// Package feature turns the article corpus into ranking candidates.
//
// A Source knows which articles are eligible for a reader and computes, for
// each one, the feature values the ranking registry reads. The engine never
// sees users, follows or comments; it sees only Candidates.
package feature

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/feedrank/internal/ranking"
)

// Sentinel errors for source operations.
var (
	ErrArticleExists  = errors.New("article already exists")
	ErrInvalidArticle = errors.New("invalid article")
)

// Article is a piece of content in the corpus.
type Article struct {
	ID                    string    `json:"id" yaml:"id"`
	AuthorID              string    `json:"author_id" yaml:"author_id"`
	OrganizationID        string    `json:"organization_id,omitempty" yaml:"organization_id"`
	Title                 string    `json:"title" yaml:"title"`
	Published             bool      `json:"published" yaml:"published"`
	PublishedAt           time.Time `json:"published_at" yaml:"published_at"`
	CommentsCount         int       `json:"comments_count" yaml:"comments_count"`
	ReactionsCount        int       `json:"reactions_count" yaml:"reactions_count"`
	SpaminessRating       int       `json:"spaminess_rating" yaml:"spaminess_rating"`
	ExperienceLevelRating int       `json:"experience_level_rating" yaml:"experience_level_rating"`
	Tags                  []string  `json:"tags,omitempty" yaml:"tags"`
}

// Comment is a reader comment on an article.
type Comment struct {
	ID        string    `json:"id" yaml:"id"`
	ArticleID string    `json:"article_id" yaml:"article_id"`
	AuthorID  string    `json:"author_id" yaml:"author_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// UserSettings holds per-reader preferences. A nil ExperienceLevel means the
// reader has a settings row but never chose a level.
type UserSettings struct {
	UserID          string `json:"user_id" yaml:"user_id"`
	ExperienceLevel *int   `json:"experience_level,omitempty" yaml:"experience_level"`
}

// Query describes whose feed is being built.
type Query struct {
	// UserID is the reader. Empty means an anonymous reader with no follows.
	UserID string
	// DefaultExperienceLevel stands in for a reader whose settings have no level.
	DefaultExperienceLevel int
	// Tag, when set, restricts candidates to articles carrying it.
	Tag string
	// Now anchors day counts. Zero means time.Now().
	Now time.Time
}

// Source produces ranking candidates and resolves ranked ids back to articles.
type Source interface {
	// Candidates returns one candidate per published article matching q.
	Candidates(ctx context.Context, q Query) ([]ranking.Candidate, error)
	// Articles returns the articles for ids in the same order, skipping ids
	// that do not exist.
	Articles(ctx context.Context, ids []string) ([]Article, error)
}
