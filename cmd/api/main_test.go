package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/feedrank/internal/auth"
	"github.com/onnwee/feedrank/internal/config"
	"github.com/onnwee/feedrank/internal/feed"
)

const testSeedPath = "../../configs/seed.yaml"

func testConfig() *config.Config {
	return &config.Config{
		Port:                   config.DefaultPort,
		Env:                    "test",
		DefaultPageSize:        config.DefaultPageSize,
		MaxPageSize:            config.DefaultMaxPageSize,
		DefaultExperienceLevel: config.DefaultUserExperienceLevel,
		RankMaxCandidates:      config.DefaultRankMaxCandidates,
		TracingExporter:        config.DefaultTracingExporter,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, quietLogger(), testSeedPath)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func serve(a *app, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func TestNewApp_SeededFeed(t *testing.T) {
	a := newTestApp(t, testConfig())

	w := serve(a, httptest.NewRequest(http.MethodGet, "/feed?user_id=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	var result feed.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	want := []string{"buy-followers-now", "intro-to-generics", "scheduler-deep-dive", "borrow-checker-notes"}
	if len(result.Articles) != len(want) {
		t.Fatalf("expected %d published articles, got %d", len(want), len(result.Articles))
	}
	for i, id := range want {
		if result.Articles[i].ID != id {
			t.Errorf("article %d: expected %s, got %s", i, id, result.Articles[i].ID)
		}
	}
}

func TestNewApp_ProbesAndMetrics(t *testing.T) {
	a := newTestApp(t, testConfig())

	for _, path := range []string{"/", "/health", "/ready", "/factors"} {
		if w := serve(a, httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}

	serve(a, httptest.NewRequest(http.MethodPost, "/rank", strings.NewReader(`{"candidates": [{"id": "a"}]}`)))

	w := serve(a, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"ranking_requests_total", "http_requests_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestNewApp_Auth(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "a-very-long-signing-secret"
	a := newTestApp(t, cfg)

	token, err := auth.NewJWTService(cfg.JWTSecret, "").GenerateAccessToken("1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"anonymous", "", http.StatusOK},
		{"valid token", "Bearer " + token, http.StatusOK},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if w := serve(a, req); w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestNewApp_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	a := newTestApp(t, cfg)

	if w := serve(a, httptest.NewRequest(http.MethodGet, "/feed", nil)); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w := serve(a, httptest.NewRequest(http.MethodGet, "/feed", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on 429")
	}

	// Probes are never limited.
	if w := serve(a, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("expected /health 200, got %d", w.Code)
	}
}

func TestNewApp_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"https://app.example"}
	a := newTestApp(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/factors", nil)
	req.Header.Set("Origin", "https://app.example")
	if w := serve(a, req); w.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("expected allowed origin echoed, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/factors", nil)
	req.Header.Set("Origin", "https://evil.example")
	if w := serve(a, req); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unknown origin, got %d", w.Code)
	}
}

func TestNewApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		seed   string
	}{
		{"missing calibration", func(c *config.Config) { c.CalibrationPath = "does-not-exist.json" }, ""},
		{"bad redis url", func(c *config.Config) { c.RedisURL = "not-a-url://" }, ""},
		{"missing seed", func(c *config.Config) {}, "does-not-exist.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := newApp(context.Background(), cfg, quietLogger(), tt.seed); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testConfig(), logger, testSeedPath, ln)
	}()

	client := &http.Client{Timeout: 2 * time.Second}
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = client.Get("http://" + ln.Addr().String() + "/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not answer: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(shutdownTimeout + 5*time.Second):
		t.Fatal("server failed to stop in time")
	}

	logs := logBuf.String()
	startIdx := strings.Index(logs, "starting server")
	shutdownIdx := strings.Index(logs, "shutting down server")
	stoppedIdx := strings.Index(logs, "server stopped")
	if startIdx == -1 || shutdownIdx == -1 || stoppedIdx == -1 {
		t.Fatalf("missing lifecycle log lines: %s", logs)
	}
	if startIdx > shutdownIdx || shutdownIdx > stoppedIdx {
		t.Error("expected start, shutdown and stop to be logged in order")
	}
}
