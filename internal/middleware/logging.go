// Package middleware provides the HTTP middleware chain of the feed API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

type userIDKey struct{}

type errorCodeKey struct{}

type requestLogKey struct{}

// requestLog collects fields set by inner handlers so the access log, which
// only sees the outer request, can report them.
type requestLog struct {
	mu        sync.Mutex
	userID    string
	errorCode string
}

func requestLogFrom(ctx context.Context) *requestLog {
	rl, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return rl
}

// SetUserID stores the authenticated reader's id in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		rl.userID = userID
		rl.mu.Unlock()
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the reader id from context, or "" when anonymous.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return rl.userID
	}
	return ""
}

// SetErrorCode records the error code of a failed response.
func SetErrorCode(ctx context.Context, code string) context.Context {
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		rl.errorCode = code
		rl.mu.Unlock()
	}
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the recorded error code, or "".
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return rl.errorCode
	}
	return ""
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

// WriteHeader records only the first status, matching net/http.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger returns a JSON logger at info level in production and a text
// logger at debug level otherwise.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging writes one structured access log line per request: method, path,
// status, latency, size, and when present the request id, trace id, reader id
// and error code. 5xx logs at error level and 4xx at warn.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			ctx := context.WithValue(r.Context(), requestLogKey{}, rl)
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			}
			if requestID := GetRequestID(ctx); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if traceID := traceIDFromContext(ctx); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}
			if userID := GetUserID(ctx); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if rw.statusCode >= 400 {
				if code := GetErrorCode(ctx); code != "" {
					attrs = append(attrs, slog.String("error_code", code))
				}
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}
