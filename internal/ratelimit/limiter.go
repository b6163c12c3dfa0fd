package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int, limit *Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d alerts in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per key. Safe for concurrent use.
type Limiter struct {
	limit Limit

	mu      sync.Mutex
	windows map[string]*window
}

// New returns a Limiter for limit, or nil when the limit is disabled.
// A nil Limiter allows everything.
func New(limit *Limit) *Limiter {
	if !limit.Enabled() {
		return nil
	}
	return &Limiter{limit: *limit, windows: make(map[string]*window)}
}

// Allow checks key against the limit and, when it passes, counts it.
// A window that has expired is reset before the check.
func (l *Limiter) Allow(key string, now time.Time) CheckResult {
	if l == nil {
		return CheckResult{Key: key}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.limit.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	res := Check(w.count, &l.limit)
	res.Key = key
	if !res.Exceeded {
		w.count++
	}
	l.prune(now)
	return res
}

// prune drops expired windows once the map grows past a few hundred keys.
func (l *Limiter) prune(now time.Time) {
	if len(l.windows) < 512 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.limit.Window {
			delete(l.windows, k)
		}
	}
}
