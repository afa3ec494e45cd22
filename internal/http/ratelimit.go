package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL    = 10 * time.Minute
	defaultMaxClients = 10000
)

// RateLimitConfig configures an IPRateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained requests per second allowed per client IP.
	Rate rate.Limit
	// Burst is the number of requests a client may make at once.
	Burst int
	// IdleTTL is how long an idle client's limiter is kept.
	IdleTTL time.Duration
	// MaxClients bounds the number of tracked clients; the least recently
	// seen client is evicted when full.
	MaxClients int
}

// DefaultAuthRateLimit allows 5 requests per second with a burst of 10.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Rate: rate.Limit(5), Burst: 10}
}

func (c *RateLimitConfig) applyDefaults() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.MaxClients <= 0 {
		c.MaxClients = defaultMaxClients
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter applies a token bucket per client IP.
type IPRateLimiter struct {
	name string
	cfg  RateLimitConfig
	now  func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewIPRateLimiter creates a limiter; name labels its log lines and metrics.
func NewIPRateLimiter(name string, cfg RateLimitConfig) *IPRateLimiter {
	cfg.applyDefaults()
	return &IPRateLimiter{
		name:    name,
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiter(ip).AllowN(l.now(), 1)
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}

	if len(l.clients) >= l.cfg.MaxClients {
		l.evictOldest()
	}

	c := &clientLimiter{limiter: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst), lastSeen: now}
	l.clients[ip] = c
	return c.limiter
}

func (l *IPRateLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, c := range l.clients {
		if oldestIP == "" || c.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, c.lastSeen
		}
	}
	delete(l.clients, oldestIP)
}

// Sweep drops clients idle for longer than IdleTTL and returns how many were removed.
func (l *IPRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTTL)
	removed := 0
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps idle clients every IdleTTL until ctx is done.
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				log.Debug().Str("limiter", l.name).Int("removed", n).Msg("swept idle rate limit clients")
			}
		}
	}
}

// Len returns the number of tracked clients.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(ip) {
				metrics.RateLimited(l.name)
				log.Ctx(r.Context()).Warn().Str("limiter", l.name).Str("client_ip", ip).Msg("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				http.Error(w, "Too many requests, please try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) retryAfterSeconds() int {
	if l.cfg.Rate <= 0 {
		return 60
	}
	secs := int(1/float64(l.cfg.Rate)) + 1
	return max(secs, 1)
}
