package guard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/crosspointx/platform/internal/domain"
)

// RateLimiter is an in-process sliding-window limiter keyed by caller.
// Stale keys are evicted opportunistically on Check, so an idle limiter
// does not grow without bound.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing limit hits per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:      make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
	}
}

// Check records a hit for key and reports whether it stayed within the
// limit. A denied hit is not recorded, so a blocked caller does not extend
// its own lockout.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)
	rl.sweep(cutoff)

	recent := trimBefore(rl.hits[key], cutoff)
	if len(recent) >= rl.limit {
		rl.hits[key] = recent
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}

	rl.hits[key] = append(recent, now)
	return domain.GuardResult{Allowed: true}
}

// sweep drops keys whose every hit predates the cutoff. Runs at most once
// per window; callers hold rl.mu.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	if rl.lastSweep.After(cutoff) {
		return
	}
	for key, times := range rl.hits {
		if len(trimBefore(times, cutoff)) == 0 {
			delete(rl.hits, key)
		}
	}
	rl.lastSweep = time.Now()
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// LimitByIP returns middleware that rate limits requests per client IP.
// Used on the auth endpoints to slow down credential stuffing.
func LimitByIP(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if res := rl.Check(r.Context(), ip); !res.Allowed {
				w.Header().Set("Retry-After", "60")
				http.Error(w, `{"code":"RATE_LIMITED","message":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
