package ratelimit

import (
	"sync"
	"time"
)

var timeNow = time.Now

// Window is a fixed-window request counter keyed by caller identity.
// Windows are aligned to wall-clock boundaries rather than sliding, which
// admits up to 2x the budget across a boundary — an accepted approximation
// for abuse prevention, not a defect.
//
// Rejected callers never reach the cache or the network.
type Window struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	windowStart time.Time
	count       int
}

// NewWindow allows limit requests per identity per window.
func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{
		limit:    limit,
		window:   window,
		counters: make(map[string]*counter),
	}
}

// Admit reports whether identity has budget left in the current window and
// consumes one unit if so. The check-and-increment runs under one lock so
// concurrent callers can never over-admit.
func (w *Window) Admit(identity string) bool {
	start := timeNow().Truncate(w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.counters[identity]
	if !ok || c.windowStart.Before(start) {
		w.counters[identity] = &counter{windowStart: start, count: 1}
		w.sweep(start)
		return true
	}
	if c.count < w.limit {
		c.count++
		return true
	}
	return false
}

// sweep drops counters from past windows once the map grows. Called with
// the lock held.
func (w *Window) sweep(start time.Time) {
	if len(w.counters) < 1024 {
		return
	}
	for id, c := range w.counters {
		if c.windowStart.Before(start) {
			delete(w.counters, id)
		}
	}
}
