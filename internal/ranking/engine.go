package ranking

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/feedrank/internal/tracing"
)

// DefaultParallelThreshold is the candidate count at which parallel scoring kicks
// in when parallelism is enabled. Smaller sets are scored sequentially.
const DefaultParallelThreshold = 2048

// ctxCheckInterval is how many items a scoring worker processes between
// context checks.
const ctxCheckInterval = 256

// Engine is the ranking entry point. It holds only immutable state and is safe
// for concurrent use by multiple requests.
type Engine struct {
	registry          *Registry
	logger            *slog.Logger
	metrics           *Metrics
	parallelism       int
	parallelThreshold int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for selection diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithParallelism scores candidate sets of at least threshold items with up to
// workers goroutines. workers <= 1 keeps scoring sequential; threshold <= 0
// uses DefaultParallelThreshold.
func WithParallelism(workers, threshold int) EngineOption {
	return func(e *Engine) {
		e.parallelism = workers
		if threshold > 0 {
			e.parallelThreshold = threshold
		}
	}
}

// NewEngine creates an engine over registry. A nil registry uses DefaultRegistry.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	e := &Engine{
		registry:          registry,
		logger:            slog.Default(),
		parallelism:       1,
		parallelThreshold: DefaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Registry returns the engine's factor registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Rank scores candidates under cfg and returns the identifiers of the result
// window in presentation order. See RankItems.
func (e *Engine) Rank(ctx context.Context, candidates []Candidate, cfg Config, pageSize, page int) ([]string, error) {
	items, err := e.RankItems(ctx, candidates, cfg, pageSize, page)
	if err != nil {
		return nil, err
	}
	return IDs(items), nil
}

// RankItems scores candidates under cfg and returns at most pageSize items:
// the top pageSize by relevance, ordered newest first.
//
// pageSize <= 0 means DefaultPageSize. page is accepted for callers that paginate
// but does not move the window; the result is always the single top-N window.
// The only error is context cancellation during parallel scoring.
func (e *Engine) RankItems(ctx context.Context, candidates []Candidate, cfg Config, pageSize, page int) (items []ScoredItem, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ranking.rank")
	defer func() { endSpan(err) }()

	start := time.Now()
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	sel := e.Resolve(ctx, cfg)

	tracing.SetAttributes(ctx,
		attribute.Int("ranking.candidates", len(candidates)),
		attribute.Int("ranking.factors", len(sel.Factors)),
		attribute.Int("ranking.page_size", pageSize),
		attribute.Int("ranking.page", page),
	)

	scored, err := e.score(ctx, sel.Factors, candidates)
	if err != nil {
		return nil, err
	}
	items = Window(scored, pageSize)

	if e.metrics != nil {
		e.metrics.IncRequests()
		e.metrics.ObserveCandidates(len(candidates))
		e.metrics.ObserveDuration(time.Since(start).Seconds())
	}

	return items, nil
}

// Explain resolves cfg and returns the per-factor breakdown of every candidate,
// in input order. It does not record metrics.
func (e *Engine) Explain(candidates []Candidate, cfg Config) []Explanation {
	sel := e.registry.Select(cfg)
	out := make([]Explanation, len(candidates))
	for i, c := range candidates {
		out[i] = Explain(sel.Factors, c)
	}
	return out
}

// Resolve selects the active factors for cfg, logging and counting anything
// the registry ignored.
func (e *Engine) Resolve(ctx context.Context, cfg Config) Selection {
	sel := e.registry.Select(cfg)

	if len(sel.Unknown) > 0 {
		e.logger.DebugContext(ctx, "ignoring unknown scoring factors",
			"factors", sel.Unknown)
	}
	if len(sel.Rejected) > 0 {
		e.logger.DebugContext(ctx, "factor overrides reverted to defaults",
			"overrides", sel.Rejected)
	}

	if e.metrics != nil {
		e.metrics.AddUnknownFactors(len(sel.Unknown))
		for _, r := range sel.Rejected {
			e.metrics.IncOverrideRejected(r.Factor)
		}
		for _, d := range sel.Factors {
			e.metrics.IncFactorSelected(d.Name)
		}
	}

	return sel
}

// score computes composite scores into an index-addressed slice so that the
// parallel path yields exactly what the sequential path would.
func (e *Engine) score(ctx context.Context, factors []FactorDefinition, candidates []Candidate) ([]ScoredItem, error) {
	scored := make([]ScoredItem, len(candidates))

	if e.parallelism <= 1 || len(candidates) < e.parallelThreshold {
		for i, c := range candidates {
			scored[i] = scoreCandidate(factors, c)
		}
		return scored, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	chunk := (len(candidates) + e.parallelism - 1) / e.parallelism
	for lo := 0; lo < len(candidates); lo += chunk {
		hi := min(lo+chunk, len(candidates))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				scored[i] = scoreCandidate(factors, candidates[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func scoreCandidate(factors []FactorDefinition, c Candidate) ScoredItem {
	return ScoredItem{
		ID:          c.ID,
		Score:       CompositeScore(factors, c),
		PublishedAt: c.PublishedAt,
	}
}
