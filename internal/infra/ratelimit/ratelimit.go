// Package ratelimit is the best-effort in-process request throttle.
// It is advisory only: the table is non-durable and reset-prone on
// scale-out, so nothing may rely on it for correctness.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter per key (caller IP or user hash).
type Limiter struct {
	mu      sync.Mutex
	perMin  int
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// New creates a limiter allowing perMin requests per key per minute.
// perMin <= 0 disables limiting.
func New(perMin int) *Limiter {
	return &Limiter{
		perMin:  perMin,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether a request for key fits the current window.
func (l *Limiter) Allow(key string) bool {
	if l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		// Window rollover doubles as cleanup for this key; a full-table
		// purge happens opportunistically when the map grows.
		if len(l.windows) > 4096 {
			for k, old := range l.windows {
				if now.Sub(old.start) >= time.Minute {
					delete(l.windows, k)
				}
			}
		}
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.perMin {
		return false
	}
	w.count++
	return true
}
