package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// routes are the paths served by the API. Anything else is reported as
// "other" so scanners cannot inflate label cardinality.
var routes = map[string]bool{
	"/":        true,
	"/feed":    true,
	"/rank":    true,
	"/factors": true,
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// normalizePath maps a request path to a bounded metric label.
func normalizePath(path string) string {
	if routes[path] {
		return path
	}
	if len(path) > 1 && path[len(path)-1] == '/' && routes[path[:len(path)-1]] {
		return path[:len(path)-1]
	}
	return "other"
}

// HTTPMetrics records duration, sizes, and counts per request.
// Probe endpoints are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				int64(rw.size),
			)
		})
	}
}
