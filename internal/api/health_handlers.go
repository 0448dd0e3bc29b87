package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// readinessTimeout bounds all readiness checks together.
const readinessTimeout = 5 * time.Second

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]HealthChecker
	names    []string
	logger   *slog.Logger
}

// HealthHandlersConfig lists the optional dependencies checked by /ready.
// A nil checker means the dependency is not configured and is reported as such.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	RedisChecker HealthChecker
	Logger       *slog.Logger
}

// NewHealthHandlers creates health handlers.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	h := &HealthHandlers{
		checkers: map[string]HealthChecker{
			"database": config.DBChecker,
			"redis":    config.RedisChecker,
		},
		logger: config.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	for name := range h.checkers {
		h.names = append(h.names, name)
	}
	sort.Strings(h.names)
	return h
}

// Check results reported per dependency.
const (
	checkOK            = "ok"
	checkError         = "error"
	checkNotConfigured = "not_configured"
)

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. It only reports that the process can serve.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": checkOK},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. It runs every configured checker concurrently and
// answers 503 when any of them fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.names))
		g      errgroup.Group
	)
	for _, name := range h.names {
		checker := h.checkers[name]
		if checker == nil {
			checks[name] = checkNotConfigured
			continue
		}
		g.Go(func() error {
			result := checkOK
			if err := checker.HealthCheck(ctx); err != nil {
				result = checkError
				h.logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status, code := "healthy", http.StatusOK
	for _, result := range checks {
		if result == checkError {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
