// Package ratelimit implements an in-memory sliding-window log limiter keyed
// by caller. State lives only in the process and resets on restart.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most Max calls per key within Window.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time
}

// New returns a limiter allowing max calls per key in any window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Max returns the per-window call budget.
func (l *Limiter) Max() int { return l.max }

// Window returns the sliding window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a call for key and reports whether it fits in the window.
// Rejected calls are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	calls := l.evict(l.calls[key], now)
	if len(calls) >= l.max {
		l.calls[key] = calls
		return false
	}
	l.calls[key] = append(calls, now)
	return true
}

// Prune drops keys whose recorded calls have all aged out of the window.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, calls := range l.calls {
		if len(l.evict(calls, now)) == 0 {
			delete(l.calls, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// evict trims the prefix of calls older than the window. Timestamps are
// appended in order, so everything after the first fresh entry is fresh too.
func (l *Limiter) evict(calls []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(calls) && now.Sub(calls[i]) > l.window {
		i++
	}
	if i == 0 {
		return calls
	}
	// copy down so the backing array does not pin stale entries
	n := copy(calls, calls[i:])
	return calls[:n]
}
