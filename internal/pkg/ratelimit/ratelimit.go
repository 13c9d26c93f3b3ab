// Package ratelimit provides a fixed-window send counter keyed by destination
// id. State is in-memory and per-process; counters do not survive a restart.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow = time.Minute
	DefaultLimit  = 30
)

type window struct {
	start time.Time
	count int
}

// FixedWindow counts sends per key inside a fixed time window. Safe for
// concurrent use from multiple dispatch workers. Expired windows are dropped
// lazily on access and by Sweep.
type FixedWindow struct {
	mu      sync.Mutex
	size    time.Duration
	limit   int
	limits  map[string]int // per-key overrides
	windows map[string]*window

	now func() time.Time
}

func New(size time.Duration, limit int) *FixedWindow {
	if size <= 0 {
		size = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &FixedWindow{
		size:    size,
		limit:   limit,
		limits:  make(map[string]int),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// SetLimit overrides the per-window cap for a single key. n <= 0 restores the
// default.
func (l *FixedWindow) SetLimit(key string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		delete(l.limits, key)
		return
	}
	l.limits[key] = n
}

// CanSend reports whether one more send is allowed for key and, if so, counts
// it. At the cap it returns false without mutating state.
func (l *FixedWindow) CanSend(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.size {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.capFor(key) {
		return false
	}
	w.count++
	return true
}

// RemainingInWindow returns how many sends are left for key in the current
// window without consuming any.
func (l *FixedWindow) RemainingInWindow(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.capFor(key)
	w := l.windows[key]
	if w == nil || l.now().Sub(w.start) >= l.size {
		return limit
	}
	if rem := limit - w.count; rem > 0 {
		return rem
	}
	return 0
}

// Sweep drops expired windows so long-gone destinations do not pin memory.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.size {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

func (l *FixedWindow) capFor(key string) int {
	if n, ok := l.limits[key]; ok {
		return n
	}
	return l.limit
}
