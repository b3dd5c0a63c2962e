package session

import (
	"sync/atomic"
	"time"
)

// DefaultCooldown is how long further session-expired signals are suppressed
// after one has been emitted.
const DefaultCooldown = 3 * time.Second

// Debouncer lets through at most one event per window. It keeps only the
// time of the last emission, so it is safe for concurrent use without a
// lock and never runs a timer.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	last   atomic.Pointer[time.Time] // nil until the first emission
}

// NewDebouncer creates a debouncer. A nil clock defaults to time.Now.
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{window: window, now: now}
}

// Allow reports whether an event may be emitted now and, if so, records it.
// Exactly one of several concurrent callers inside one window wins.
func (d *Debouncer) Allow() bool {
	for {
		now := d.now()
		last := d.last.Load()
		if last != nil && now.Sub(*last) < d.window {
			return false
		}
		if d.last.CompareAndSwap(last, &now) {
			return true
		}
	}
}

// Reset forgets the last emission, e.g. after the user logged in again.
func (d *Debouncer) Reset() {
	d.last.Store(nil)
}
