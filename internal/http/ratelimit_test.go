package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestLimiter(cfg RateLimitConfig) (*IPRateLimiter, *time.Time) {
	l := NewIPRateLimiter("test", cfg)
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestIPRateLimiter_burstThenRefill(t *testing.T) {
	l, now := newTestLimiter(RateLimitConfig{Rate: rate.Limit(1), Burst: 2})

	require.True(t, l.Allow("203.0.113.1"))
	require.True(t, l.Allow("203.0.113.1"))
	require.False(t, l.Allow("203.0.113.1"), "burst exhausted")
	require.True(t, l.Allow("203.0.113.2"), "other clients have their own bucket")

	*now = now.Add(time.Second)
	require.True(t, l.Allow("203.0.113.1"), "one token refilled")
}

func TestIPRateLimiter_evictsOldestWhenFull(t *testing.T) {
	l, now := newTestLimiter(RateLimitConfig{Rate: rate.Limit(1), Burst: 1, MaxClients: 2})

	l.Allow("a")
	*now = now.Add(time.Second)
	l.Allow("b")
	*now = now.Add(time.Second)
	l.Allow("c")

	require.Equal(t, 2, l.Len())
	l.mu.Lock()
	_, hasA := l.clients["a"]
	l.mu.Unlock()
	require.False(t, hasA)
}

func TestIPRateLimiter_sweep(t *testing.T) {
	l, now := newTestLimiter(RateLimitConfig{Rate: rate.Limit(1), Burst: 1, IdleTTL: time.Minute})

	l.Allow("a")
	*now = now.Add(45 * time.Second)
	l.Allow("b")
	*now = now.Add(30 * time.Second)

	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())
}

func TestIPRateLimiter_middleware(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Rate: rate.Limit(0.5), Burst: 1})

	calls := 0
	handler := ClientIPMiddleware(true)(l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})))

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		handler.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)

	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3", rec.Header().Get("Retry-After"))
	require.Equal(t, 1, calls)
}

func TestIPRateLimiter_middlewareIgnoresSpoofedForwardedFor(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Rate: rate.Limit(0.01), Burst: 1})

	calls := 0
	handler := ClientIPMiddleware(false)(l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})))

	limited := 0
	for i := range 50 {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		r.RemoteAddr = "192.0.2.50:40000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		handler.ServeHTTP(rec, r)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	require.Equal(t, 1, calls)
	require.Equal(t, 49, limited)
	require.Equal(t, 1, l.Len())
}

func TestIPRateLimiter_middlewareWithoutClientIPMiddleware(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Rate: rate.Limit(0.01), Burst: 1})
	handler := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
		r.RemoteAddr = "192.0.2.51:40000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.1.%d", i))
		handler.ServeHTTP(rec, r)
		require.Equal(t, want, rec.Code)
	}
}

func TestRateLimitConfig_defaults(t *testing.T) {
	cfg := DefaultAuthRateLimit()
	cfg.applyDefaults()
	require.Equal(t, rate.Limit(5), cfg.Rate)
	require.Equal(t, 10, cfg.Burst)
	require.Equal(t, defaultIdleTTL, cfg.IdleTTL)
	require.Equal(t, defaultMaxClients, cfg.MaxClients)
}
