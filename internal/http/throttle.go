package httpx

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Budget is the number of requests a caller may make per window.
type Budget struct {
	Limit  int
	Window time.Duration
}

// Decision is a limiter's answer for one request.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// RateLimiter counts requests per key over fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, budget Budget) Decision
	Close()
}

// sweepEvery bounds how many Allow calls run between purges of expired windows.
const sweepEvery = 1024

type windowCounter struct {
	mu      sync.Mutex
	windows map[string]fixedWindow
	calls   int
	now     func() time.Time
}

type fixedWindow struct {
	count int
	reset time.Time
}

// NewMemoryRateLimiter returns a process-local fixed-window limiter.
func NewMemoryRateLimiter() RateLimiter {
	return &windowCounter{windows: make(map[string]fixedWindow), now: time.Now}
}

func (c *windowCounter) Allow(_ context.Context, key string, budget Budget) Decision {
	if budget.Limit <= 0 {
		return Decision{Allowed: true}
	}
	if budget.Window <= 0 {
		budget.Window = time.Minute
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls >= sweepEvery {
		c.calls = 0
		for k, w := range c.windows {
			if now.After(w.reset) {
				delete(c.windows, k)
			}
		}
	}

	w, ok := c.windows[key]
	if !ok || now.After(w.reset) {
		w = fixedWindow{reset: now.Add(budget.Window)}
	}
	if w.count >= budget.Limit {
		return Decision{Allowed: false, Count: w.count, ResetAt: w.reset}
	}
	w.count++
	c.windows[key] = w
	return Decision{Allowed: true, Count: w.count, ResetAt: w.reset}
}

func (c *windowCounter) Close() {}

// adminRate charges the caller's budget before the admin token is checked, so
// failed authentication attempts count too. Budgets are per route and peer.
func (r *Router) adminRate(route string, budget Budget, next http.HandlerFunc) http.HandlerFunc {
	guarded := r.requireAdmin(next)
	return func(w http.ResponseWriter, req *http.Request) {
		if budget.Limit <= 0 || r.limiter == nil {
			guarded(w, req)
			return
		}
		peer := r.clients.resolve(req)
		decision := r.limiter.Allow(req.Context(), route+"|"+peer, budget)
		writeRateHeaders(w, budget, decision)
		if !decision.Allowed {
			r.recordRateLimitHit(route, "peer")
			r.logger.Warn("rate limit exceeded", "route", route, "peer", peer, "count", decision.Count)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		guarded(w, req)
	}
}

func writeRateHeaders(w http.ResponseWriter, budget Budget, decision Decision) {
	remaining := max(budget.Limit-decision.Count, 0)
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(budget.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.ResetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}
