package gate

import (
	"sync"
	"time"
)

// RateLimiter bounds command throughput per sender with a fixed window.
// The first command in a window starts it; once the budget is spent,
// everything until the window rolls over is refused.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	size    time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter allowing max commands per size window.
func NewRateLimiter(max int, size time.Duration) *RateLimiter {
	if max <= 0 {
		max = 10
	}
	if size <= 0 {
		size = time.Minute
	}
	return &RateLimiter{
		windows: make(map[string]*window),
		max:     max,
		size:    size,
		now:     time.Now,
	}
}

// Allow consumes one slot for sender. When the budget is exhausted it
// returns the time left until the window rolls over.
func (l *RateLimiter) Allow(sender string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[sender]
	if !ok || now.Sub(w.start) >= l.size {
		l.windows[sender] = &window{start: now, count: 1}
		return 0, true
	}

	if w.count >= l.max {
		return w.start.Add(l.size).Sub(now), false
	}

	w.count++
	return 0, true
}

// Prune drops windows that rolled over more than keep ago and returns
// how many were removed.
func (l *RateLimiter) Prune(keep time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.size - keep)
	removed := 0
	for sender, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, sender)
			removed++
		}
	}
	return removed
}
