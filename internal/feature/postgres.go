package feature

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

// PostgresSource computes candidates from the PostgreSQL corpus schema.
//
// Per-article aggregates are computed in lateral subqueries, one per signal,
// so joining follows and comments never multiplies another signal's count.
// Request values are always bound as parameters.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over db.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

const candidatesQuery = `
	SELECT a.id, a.author_id, COALESCE(a.organization_id, ''), a.title,
	       a.published_at, a.comments_count, a.reactions_count,
	       a.spaminess_rating, a.experience_level_rating,
	       fc.cnt, fc.latest, mt.cnt,
	       EXISTS (
	           SELECT 1 FROM follows f
	           WHERE f.follower_id = $1 AND f.followable_type = 'user'
	             AND f.followable_id = a.author_id
	       ),
	       EXISTS (
	           SELECT 1 FROM follows f
	           WHERE f.follower_id = $1 AND f.followable_type = 'organization'
	             AND f.followable_id = a.organization_id
	       )
	FROM articles a
	CROSS JOIN LATERAL (
	    SELECT COUNT(c.id) AS cnt, MAX(c.created_at) AS latest
	    FROM comments c
	    JOIN follows f ON f.follower_id = $1 AND f.followable_type = 'user'
	                  AND f.followable_id = c.author_id
	    WHERE c.article_id = a.id
	) fc
	CROSS JOIN LATERAL (
	    SELECT COUNT(t.tag) AS cnt
	    FROM article_tags t
	    JOIN follows f ON f.follower_id = $1 AND f.followable_type = 'tag'
	                  AND f.followable_id = t.tag
	    WHERE t.article_id = a.id
	) mt
	WHERE a.published = TRUE
	  AND a.published_at IS NOT NULL
	  AND ($2::text = '' OR EXISTS (
	      SELECT 1 FROM article_tags t WHERE t.article_id = a.id AND t.tag = $2
	  ))
	ORDER BY a.id
`

// Candidates returns a candidate for every published article matching q.
func (s *PostgresSource) Candidates(ctx context.Context, q Query) (candidates []ranking.Candidate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if q.Now.IsZero() {
		q.Now = time.Now()
	}

	reader, err := s.reader(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, candidatesQuery, q.UserID, q.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sig    Signals
			latest sql.NullTime
		)
		a := &sig.Article
		err := rows.Scan(
			&a.ID, &a.AuthorID, &a.OrganizationID, &a.Title,
			&a.PublishedAt, &a.CommentsCount, &a.ReactionsCount,
			&a.SpaminessRating, &a.ExperienceLevelRating,
			&sig.FollowedCommentCount, &latest, &sig.MatchingTagCount,
			&sig.FollowsAuthor, &sig.FollowsOrg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		a.Published = true
		if latest.Valid {
			sig.LatestFollowedComment = &latest.Time
		}
		candidates = append(candidates, BuildCandidate(sig, reader, q))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}

	tracing.SetAttributes(ctx, attribute.Int("feature.candidates", len(candidates)))
	return candidates, nil
}

// reader loads the reader's settings row. A missing row is not an error.
func (s *PostgresSource) reader(ctx context.Context, userID string) (Reader, error) {
	if userID == "" {
		return Reader{}, nil
	}

	var level sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT experience_level FROM users_settings WHERE user_id = $1`, userID,
	).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return Reader{}, nil
	}
	if err != nil {
		return Reader{}, fmt.Errorf("failed to load user settings: %w", err)
	}

	settings := &UserSettings{UserID: userID}
	if level.Valid {
		l := int(level.Int64)
		settings.ExperienceLevel = &l
	}
	return Reader{Settings: settings}, nil
}

// Articles returns the articles for ids in order, skipping unknown ids.
func (s *PostgresSource) Articles(ctx context.Context, ids []string) (articles []Article, err error) {
	if len(ids) == 0 {
		return []Article{}, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, COALESCE(organization_id, ''), title, published,
		       COALESCE(published_at, 'epoch'::timestamptz), comments_count, reactions_count,
		       spaminess_rating, experience_level_rating,
		       COALESCE((SELECT array_agg(t.tag ORDER BY t.tag) FROM article_tags t WHERE t.article_id = articles.id), '{}')
		FROM articles
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Article, len(ids))
	for rows.Next() {
		var a Article
		err := rows.Scan(
			&a.ID, &a.AuthorID, &a.OrganizationID, &a.Title, &a.Published,
			&a.PublishedAt, &a.CommentsCount, &a.ReactionsCount,
			&a.SpaminessRating, &a.ExperienceLevelRating,
			pq.Array(&a.Tags),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		byID[a.ID] = a
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}

	articles = make([]Article, 0, len(byID))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}
