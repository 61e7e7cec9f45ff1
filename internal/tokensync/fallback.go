package tokensync

import (
	"sync"
	"time"
)

// DefaultFallbackTimeout bounds how long a push request may stay unanswered
// before the HTTP pull is issued.
const DefaultFallbackTimeout = 3 * time.Second

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the fallback timer and journal timestamps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fallback is a single-shot timer. Arming replaces any pending timer and
// a callback whose timer was cancelled or replaced never runs.
type Fallback struct {
	clock Clock

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewFallback creates a disarmed timer on clock.
func NewFallback(clock Clock) *Fallback {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Fallback{clock: clock}
}

// Arm starts the countdown, replacing any armed one.
func (f *Fallback) Arm(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
	}
	f.gen++
	gen := f.gen
	f.timer = f.clock.AfterFunc(d, func() {
		f.mu.Lock()
		if f.gen != gen {
			f.mu.Unlock()
			return
		}
		f.timer = nil
		f.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending timer. Safe to call at any time.
func (f *Fallback) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
}

// Armed reports whether a countdown is pending.
func (f *Fallback) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}
