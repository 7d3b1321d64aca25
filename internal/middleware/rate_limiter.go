// Package middleware holds HTTP middleware shared by the API routes.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ocx/econcore/internal/clock"
)

// RateLimiter caps requests per producer key in fixed one-minute windows.
// It guards event ingestion so a noisy producer cannot flood the bus.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateLimitWindow
	limit   int
	clock   clock.Clock
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

const window = time.Minute

// NewRateLimiter allows perMinute requests per key. Zero or less disables
// limiting.
func NewRateLimiter(perMinute int, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RateLimiter{windows: make(map[string]*rateLimitWindow), limit: perMinute, clock: clk}
}

// Allow counts one request for key and reports whether it is within limits.
// Expired windows are swept on the way.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.windowStart) >= window {
		rl.sweepLocked(now)
		rl.windows[key] = &rateLimitWindow{count: 1, windowStart: now}
		return true
	}
	w.count++
	if w.count > rl.limit {
		slog.Warn("[RateLimit] limit exceeded", "key", key, "count", w.count, "limit", rl.limit)
		return false
	}
	return true
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, w := range rl.windows {
		if now.Sub(w.windowStart) >= 2*window {
			delete(rl.windows, k)
		}
	}
}

// ActiveWindows returns the number of tracked keys.
func (rl *RateLimiter) ActiveWindows() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Middleware keys requests by the X-Producer-ID header, falling back to the
// client IP, and answers 429 once the key is over its limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(producerKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","retryable":true}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func producerKey(r *http.Request) string {
	if id := r.Header.Get("X-Producer-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
