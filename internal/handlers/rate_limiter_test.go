package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter(2, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if !limiter.Allow(ctx, "ip") || !limiter.Allow(ctx, "ip") {
		t.Fatalf("expected first two requests to pass")
	}
	if limiter.Allow(ctx, "ip") {
		t.Fatalf("expected third request to be limited")
	}
	if !limiter.Allow(ctx, "other") {
		t.Fatalf("expected separate keys to be independent")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow(ctx, "ip") {
		t.Fatalf("expected window reset")
	}
}

func TestNewMemoryRateLimiterDisabled(t *testing.T) {
	if NewMemoryRateLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
}

type fakeRedisCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func (f *fakeRedisCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeRedisCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	cmd.SetVal(true)
	return cmd
}

func TestRedisRateLimiter(t *testing.T) {
	fake := &fakeRedisCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	limiter := NewRedisRateLimiter(fake, "", 1, time.Minute)
	ctx := context.Background()

	if !limiter.Allow(ctx, "onboarding:1.2.3.4") {
		t.Fatalf("expected first request to pass")
	}
	if limiter.Allow(ctx, "onboarding:1.2.3.4") {
		t.Fatalf("expected second request to be limited")
	}
	if len(fake.expires) != 1 {
		t.Fatalf("expected expiry set once, got %v", fake.expires)
	}

	fake.err = errors.New("connection refused")
	if !limiter.Allow(ctx, "onboarding:1.2.3.4") {
		t.Fatalf("expected redis errors to fail open")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewMemoryRateLimiter(1, time.Minute, nil)
	handler := RateLimit(limiter, "onboarding")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusNoContent {
		t.Fatalf("expected first request through, got %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if RateLimit(nil, "x")(http.NotFoundHandler()) == nil {
		t.Fatalf("expected passthrough handler")
	}
}
