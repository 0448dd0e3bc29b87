// Package feed builds a reader's ranked article feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/feedrank/internal/feature"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

// ContextDefaultExperienceLevel is the context parameter that replaces the
// configured default experience level for one request.
const ContextDefaultExperienceLevel = "default_experience_level"

// ErrInvalidContextParameter is returned when a recognized context parameter
// cannot be parsed.
var ErrInvalidContextParameter = errors.New("invalid context parameter")

// Options configures a Service.
type Options struct {
	DefaultPageSize        int
	MaxPageSize            int
	DefaultExperienceLevel int
	Logger                 *slog.Logger
}

// Service fetches candidates from a feature source, ranks them and resolves
// the ranked ids back to articles.
type Service struct {
	source feature.Source
	engine *ranking.Engine
	opts   Options
}

// NewService creates a feed service. Zero page sizes fall back to
// ranking.DefaultPageSize.
func NewService(source feature.Source, engine *ranking.Engine, opts Options) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = ranking.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{source: source, engine: engine, opts: opts}
}

// Request is one feed build.
type Request struct {
	UserID  string
	Tag     string
	Scoring ranking.Config
	PerPage int
	Page    int
	// Now anchors day-count features. Zero means time.Now().
	Now time.Time
}

// Result is a ranked feed page.
type Result struct {
	Articles []feature.Article `json:"articles"`
	PerPage  int               `json:"per_page"`
	Page     int               `json:"page"`
}

// Build returns the reader's feed: the top PerPage candidates by relevance,
// newest first.
func (s *Service) Build(ctx context.Context, req Request) (result *Result, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "feed.build")
	defer func() { endSpan(err) }()

	perPage := s.PageSize(req.PerPage)
	page := req.Page
	if page < 1 {
		page = 1
	}

	level, err := s.experienceLevel(req.Scoring.ContextParameters)
	if err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	candidates, err := s.source.Candidates(ctx, feature.Query{
		UserID:                 req.UserID,
		DefaultExperienceLevel: level,
		Tag:                    req.Tag,
		Now:                    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	tracing.AddEvent(ctx, "candidates_loaded", attribute.Int("count", len(candidates)))

	ids, err := s.engine.Rank(ctx, candidates, req.Scoring, perPage, page)
	if err != nil {
		return nil, err
	}

	articles, err := s.source.Articles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}

	s.opts.Logger.DebugContext(ctx, "feed built",
		"user_id", req.UserID,
		"tag", req.Tag,
		"candidates", len(candidates),
		"returned", len(articles),
		"per_page", perPage,
		"page", page,
	)

	return &Result{Articles: articles, PerPage: perPage, Page: page}, nil
}

// PageSize normalizes a requested page size: non-positive means the default,
// and anything above the maximum is clamped.
func (s *Service) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.opts.DefaultPageSize
	case requested > s.opts.MaxPageSize:
		return s.opts.MaxPageSize
	default:
		return requested
	}
}

func (s *Service) experienceLevel(params map[string]string) (int, error) {
	raw, ok := params[ContextDefaultExperienceLevel]
	if !ok || raw == "" {
		return s.opts.DefaultExperienceLevel, nil
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidContextParameter, ContextDefaultExperienceLevel)
	}
	return level, nil
}
