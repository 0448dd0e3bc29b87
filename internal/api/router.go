package api

import (
	"net/http"
)

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Feed   *FeedHandlers
	Rank   *RankHandlers
	Health *HealthHandlers
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	// RateLimit wraps the ranking endpoints when non-nil.
	RateLimit func(http.Handler) http.Handler
	Version   string
}

// NewRouter mounts the API routes. Unknown paths get the JSON not_found error.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimit == nil {
			return h
		}
		return cfg.RateLimit(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/feed", limited(cfg.Feed.GetFeed))
	mux.Handle("/rank", limited(cfg.Rank.Rank))
	mux.HandleFunc("/factors", cfg.Rank.Factors)
	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			NotFound(w, r)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{
			"service": "feedrank",
			"version": cfg.Version,
		})
	})

	return mux
}
