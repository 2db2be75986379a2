package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the per-client request budget for a route group.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Profiles for the route groups that need protection.
var (
	// StrictLimit covers credential and token endpoints.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}
	// PublicLimit covers unauthenticated read endpoints.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 120, Window: time.Minute, Burst: 120}
)

// RateLimit enforces the config per client IP and answers 429 with the
// standard envelope when the budget is spent.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limiter := &ipRateLimiter{
		rate:        rate.Every(cfg.Window / time.Duration(cfg.RequestsPerWindow)),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the originating address, honouring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type ipRateLimiter struct {
	limiters sync.Map // ip -> *clientLimiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (rl *ipRateLimiter) allow(ip string) bool {
	now := time.Now()

	entry, ok := rl.limiters.Load(ip)
	if !ok {
		entry, _ = rl.limiters.LoadOrStore(ip, &clientLimiter{
			limiter:  rate.NewLimiter(rl.rate, rl.burst),
			lastSeen: now,
		})
	}
	client := entry.(*clientLimiter)
	client.lastSeen = now

	rl.maybeCleanup(now)
	return client.limiter.Allow()
}

// maybeCleanup drops limiters idle for over an hour so ephemeral client IPs
// do not accumulate forever.
func (rl *ipRateLimiter) maybeCleanup(now time.Time) {
	rl.mu.Lock()
	if now.Sub(rl.lastCleanup) < 10*time.Minute {
		rl.mu.Unlock()
		return
	}
	rl.lastCleanup = now
	rl.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	rl.limiters.Range(func(key, value interface{}) bool {
		if value.(*clientLimiter).lastSeen.Before(cutoff) {
			rl.limiters.Delete(key)
		}
		return true
	})
}
