package emulate

import (
	"errors"
	"sync"
	"time"
)

// RecordingPoster is a Poster that records every event for test assertions.
type RecordingPoster struct {
	mu     sync.Mutex
	events []ButtonEvent
}

// PostButton records ev.
func (r *RecordingPoster) PostButton(ev ButtonEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *RecordingPoster) Events() []ButtonEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ButtonEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards recorded events.
func (r *RecordingPoster) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// FakeTimer is a Timer that only fires when told to.
type FakeTimer struct {
	mu     sync.Mutex
	fn     func()
	armed  bool
	delay  time.Duration
	resets int
}

// Reset arms the timer.
func (f *FakeTimer) Reset(d time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.armed
	f.armed = true
	f.delay = d
	f.resets++
	return was
}

// Stop disarms the timer.
func (f *FakeTimer) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.armed
	f.armed = false
	return was
}

// Armed reports whether the timer is armed and the delay it was armed with.
func (f *FakeTimer) Armed() (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed, f.delay
}

// Resets returns how many times the timer was armed.
func (f *FakeTimer) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Fire runs the callback if the timer is armed, as expiry would.
// It reports whether the callback ran.
func (f *FakeTimer) Fire() bool {
	f.mu.Lock()
	if !f.armed {
		f.mu.Unlock()
		return false
	}
	f.armed = false
	fn := f.fn
	f.mu.Unlock()
	fn()
	return true
}

// Trigger runs the callback whether or not the timer is armed, like a
// firing that was already in flight when Stop was called.
func (f *FakeTimer) Trigger() {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn()
}

// FakeTimers is a TimerFactory that hands out FakeTimers and remembers them.
type FakeTimers struct {
	mu     sync.Mutex
	timers []*FakeTimer
	// Err, if set, is returned instead of a timer.
	Err error
}

// New allocates a FakeTimer. It has the TimerFactory signature.
func (f *FakeTimers) New(fn func()) (Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t := &FakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t, nil
}

// Last returns the most recently allocated timer, or nil.
func (f *FakeTimers) Last() *FakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

// Count returns how many timers were allocated.
func (f *FakeTimers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// ErrFakeTimer is a convenience error for FakeTimers.Err.
var ErrFakeTimer = errors.New("fake timer: allocation failed")

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock stopped at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
