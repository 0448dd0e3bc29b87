package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	tests := []struct {
		name          string
		requests      int
		limit         int
		wantAllowed   []bool
		wantRemaining []int
	}{
		{
			name:          "allows requests under limit",
			requests:      3,
			limit:         5,
			wantAllowed:   []bool{true, true, true},
			wantRemaining: []int{4, 3, 2},
		},
		{
			name:          "blocks requests over limit",
			requests:      4,
			limit:         3,
			wantAllowed:   []bool{true, true, true, false},
			wantRemaining: []int{2, 1, 0, 0},
		},
		{
			name:          "single request limit",
			requests:      3,
			limit:         1,
			wantAllowed:   []bool{true, false, false},
			wantRemaining: []int{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryRateLimitStore()
			config := PerMinute(tt.limit)

			for i := 0; i < tt.requests; i++ {
				allowed, remaining, _ := store.Allow(context.Background(), "k", config)
				if allowed != tt.wantAllowed[i] {
					t.Errorf("request %d: got allowed=%v, want %v", i+1, allowed, tt.wantAllowed[i])
				}
				if remaining != tt.wantRemaining[i] {
					t.Errorf("request %d: got remaining=%d, want %d", i+1, remaining, tt.wantRemaining[i])
				}
			}
		})
	}
}

func TestInMemoryRateLimitStore_WindowExpiry(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Second}

	if allowed, _, _ := store.Allow(context.Background(), "k", config); !allowed {
		t.Fatal("expected first request allowed")
	}

	now = now.Add(2500 * time.Millisecond)
	allowed, _, retryAfter := store.Allow(context.Background(), "k", config)
	if allowed {
		t.Fatal("expected second request blocked")
	}
	if retryAfter != 8 {
		t.Errorf("expected retryAfter 8 (ceil of 7.5s), got %d", retryAfter)
	}

	now = now.Add(7500 * time.Millisecond)
	if allowed, _, _ := store.Allow(context.Background(), "k", config); !allowed {
		t.Error("expected request allowed after window reset")
	}
}

func TestInMemoryRateLimitStore_DifferentKeys(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := PerMinute(1)

	if allowed, _, _ := store.Allow(context.Background(), "a", config); !allowed {
		t.Error("expected key a allowed")
	}
	if allowed, _, _ := store.Allow(context.Background(), "b", config); !allowed {
		t.Error("expected key b allowed independently")
	}
	if allowed, _, _ := store.Allow(context.Background(), "a", config); allowed {
		t.Error("expected key a blocked")
	}
}

func TestInMemoryRateLimitStore_Concurrency(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := PerMinute(50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := store.Allow(context.Background(), "shared", config); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Allow(context.Background(), "short", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	store.Allow(context.Background(), "long", PerMinute(1))

	now = now.Add(2 * time.Second)
	store.Cleanup()

	if _, ok := store.buckets["short"]; ok {
		t.Error("expected expired bucket to be removed")
	}
	if _, ok := store.buckets["long"]; !ok {
		t.Error("expected live bucket to be kept")
	}
}

func TestRedisRateLimitStore_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	m, reg := newTestMetrics(t)
	store := NewRedisRateLimitStore(client, WithStoreMetrics(m), WithStoreLogger(quietLogger()))

	allowed, remaining, retryAfter := store.Allow(context.Background(), "ip:1.2.3.4", PerMinute(10))
	if !allowed {
		t.Error("expected request allowed when redis is unreachable")
	}
	if remaining != 10 || retryAfter != 0 {
		t.Errorf("expected remaining=10 retryAfter=0, got %d %d", remaining, retryAfter)
	}
	if got := counterValue(t, reg, MetricRateLimitRedisErrors, map[string]string{}); got != 1 {
		t.Errorf("expected 1 redis error counted, got %v", got)
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		wantKey       string
	}{
		{name: "uses RemoteAddr", remoteAddr: "192.168.1.1:12345", wantKey: "192.168.1.1"},
		{name: "RemoteAddr without port", remoteAddr: "192.168.1.1", wantKey: "192.168.1.1"},
		{name: "first X-Forwarded-For hop", remoteAddr: "10.0.0.1:1", xForwardedFor: " 203.0.113.50 , 198.51.100.1", wantKey: "203.0.113.50"},
		{name: "X-Real-IP over RemoteAddr", remoteAddr: "10.0.0.1:1", xRealIP: " 203.0.113.7 ", wantKey: "203.0.113.7"},
		{name: "X-Forwarded-For over X-Real-IP", remoteAddr: "10.0.0.1:1", xForwardedFor: "203.0.113.50", xRealIP: "198.51.100.1", wantKey: "203.0.113.50"},
		{name: "IPv6 RemoteAddr", remoteAddr: "[2001:db8::1]:8080", wantKey: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := keyFunc(req); got != tt.wantKey {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.wantKey)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if got := keyFunc(req); got != "ip:192.168.1.1" {
		t.Errorf("expected ip key, got %q", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "42"))
	if got := keyFunc(req); got != "user:42" {
		t.Errorf("expected user key, got %q", got)
	}
}

func TestRateLimiter_HeadersAndBlocking(t *testing.T) {
	m, reg := newTestMetrics(t)
	store := NewInMemoryRateLimitStore()
	handler := RateLimiter(store, PerMinute(2), UserKeyFunc(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.RemoteAddr = "198.51.100.9:555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i, wantRemaining := range []string{"1", "0"} {
		rr := send()
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("request %d: expected limit header 2, got %q", i+1, got)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: expected remaining %s, got %q", i+1, wantRemaining, got)
		}
	}

	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 60 {
		t.Errorf("expected Retry-After in [1,60], got %q", rr.Header().Get("Retry-After"))
	}
	reset, err := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil || reset < time.Now().Unix() {
		t.Errorf("expected future X-RateLimit-Reset, got %q", rr.Header().Get("X-RateLimit-Reset"))
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("expected code rate_limited, got %q", body.Error.Code)
	}

	labels := map[string]string{"endpoint": "/feed", "key_type": "ip"}
	if got := counterValue(t, reg, MetricRateLimitRequests, labels); got != 3 {
		t.Errorf("expected 3 checks, got %v", got)
	}
	if got := counterValue(t, reg, MetricRateLimitBlocked, labels); got != 1 {
		t.Errorf("expected 1 blocked, got %v", got)
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", PerMinute(10), false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{-time.Second, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1001 * time.Millisecond, 2},
		{59 * time.Second, 59},
	}
	for _, tt := range tests {
		if got := ceilSeconds(tt.d); got != tt.want {
			t.Errorf("ceilSeconds(%s) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
