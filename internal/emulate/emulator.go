package emulate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoTimer is reported by TimerErr when the timer slot could not be
// allocated. Emulation stays disabled for the lifetime of the Emulator.
var ErrNoTimer = errors.New("emulate: timer unavailable")

// Emulator is the emulation state machine of one device.
//
// Button and motion samples arrive on the caller's goroutine, timer firings
// on a goroutine owned by the timer. Both take the same mutex, so a firing
// is handled strictly before or after any sample, never in the middle.
type Emulator struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	motion tracker
	poster Poster
	now    func() time.Time
	stats  Stats

	timer    Timer
	timerErr error
	closed   bool

	// Captured when a hold starts; configuration changes apply to the next hold.
	deadline  time.Time
	threshold int
	target    Button
	// held is the target button pressed on promotion, released on exit.
	held Button
}

// New creates an Emulator that posts to poster. newTimer is called once to
// allocate the timer slot; if it fails, the Emulator is still returned but
// emulation is permanently disabled and TimerErr reports why.
func New(cfg Config, poster Poster, newTimer TimerFactory) *Emulator {
	e := &Emulator{
		cfg:    cfg,
		state:  StateIdle,
		motion: newTracker(),
		poster: poster,
		now:    time.Now,
	}
	if newTimer == nil {
		newTimer = AfterFunc
	}
	t, err := newTimer(e.expired)
	switch {
	case err != nil:
		e.timerErr = fmt.Errorf("%w: %v", ErrNoTimer, err)
	case t == nil:
		e.timerErr = ErrNoTimer
	default:
		e.timer = t
	}
	if e.timerErr != nil {
		e.cfg.Enabled = false
	}
	return e
}

// SetNowFunc overrides the clock used to reject stale timer firings.
func (e *Emulator) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.now = fn
	e.mu.Unlock()
}

// TimerErr returns the timer allocation failure, if any.
func (e *Emulator) TimerErr() error {
	return e.timerErr
}

// OnButtonEvent filters a button sample and reports whether it was consumed.
// A consumed sample must not be passed downstream; the emulator has posted
// whatever should replace it.
func (e *Emulator) OnButtonEvent(button Button, pressed bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active() {
		return false
	}

	// Any other button ends the hold; the sample itself passes through.
	if button != PrimaryButton {
		switch e.state {
		case StatePending:
			e.post(PrimaryButton, true)
			e.cancel()
			e.stats.ButtonCancels++
		case StateEmulating:
			e.post(e.held, false)
			e.cancel()
			e.stats.ButtonCancels++
		}
		return false
	}

	if !pressed {
		switch e.state {
		case StatePending:
			// Released before the timeout: replay the click it was.
			e.post(PrimaryButton, true)
			e.post(PrimaryButton, false)
			e.cancel()
			e.stats.EarlyReleases++
			return true
		case StateEmulating:
			e.post(e.held, false)
			e.cancel()
			return true
		default:
			return false
		}
	}

	if e.state == StateIdle {
		e.arm()
	}
	// A repeated press during a hold is swallowed.
	return true
}

// OnTimerFire promotes a pending hold to an emulated press. It is a no-op
// in any other state.
func (e *Emulator) OnTimerFire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promote()
}

// expired is the timer callback. A firing that lost the race with a cancel
// may still arrive after a new hold was armed; the deadline check keeps it
// from promoting that hold early.
func (e *Emulator) expired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.now().Before(e.deadline) {
		return
	}
	e.promote()
}

// OnAbsoluteMotion handles an absolute motion sample.
func (e *Emulator) OnAbsoluteMotion(v Valuators) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePending {
		e.motion.follow(v)
		return
	}
	if e.motion.absolute(v, e.threshold) {
		e.post(PrimaryButton, true)
		e.cancel()
		e.stats.MotionCancels++
	}
}

// OnRelativeMotion handles a relative motion sample.
func (e *Emulator) OnRelativeMotion(dx, dy int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePending {
		return
	}
	if e.motion.relative(dx, dy, e.threshold) {
		e.post(PrimaryButton, true)
		e.cancel()
		e.stats.MotionCancels++
	}
}

// Cancel returns to idle without posting anything. Calling it repeatedly
// has the same effect as calling it once.
func (e *Emulator) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel()
}

// Config returns the current configuration.
func (e *Emulator) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetEnabled turns emulation on or off. Turning it off during a hold
// settles the hold first so no button is left down downstream: a pending
// primary press is replayed, an emulated press is released.
func (e *Emulator) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timerErr != nil || e.closed {
		return
	}
	if !enabled {
		e.settle()
	}
	e.cfg.Enabled = enabled
}

// SetTimeout sets the hold time for the next hold.
func (e *Emulator) SetTimeout(d time.Duration) {
	e.mu.Lock()
	e.cfg.Timeout = d
	e.mu.Unlock()
}

// SetButton sets the button pressed by the next promotion.
func (e *Emulator) SetButton(b Button) {
	e.mu.Lock()
	e.cfg.Button = b
	e.mu.Unlock()
}

// SetThreshold sets the motion threshold for the next hold.
func (e *Emulator) SetThreshold(n int) {
	e.mu.Lock()
	e.cfg.Threshold = n
	e.mu.Unlock()
}

// Snapshot returns the current state, configuration and counters.
func (e *Emulator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:    e.state,
		Mode:     e.motion.mode,
		Config:   e.cfg,
		Stats:    e.stats,
		Disabled: e.timerErr != nil,
	}
}

// Close ends any hold and frees the timer. The Emulator ignores all input
// afterwards.
func (e *Emulator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	// The swallowed press of a pending hold never went downstream, so only
	// an emulated press needs releasing.
	if e.state == StateEmulating {
		e.post(e.held, false)
	}
	e.cancel()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.cfg.Enabled = false
	e.closed = true
}

func (e *Emulator) active() bool {
	return e.cfg.Enabled && e.timer != nil && !e.closed
}

// arm starts a hold. Caller holds e.mu.
func (e *Emulator) arm() {
	e.state = StatePending
	e.motion.begin()
	e.threshold = e.cfg.Threshold
	e.target = e.cfg.Button
	e.deadline = e.now().Add(e.cfg.Timeout)
	e.timer.Reset(e.cfg.Timeout)
	e.stats.Holds++
}

// promote presses the target button. Caller holds e.mu.
func (e *Emulator) promote() {
	if e.state != StatePending {
		return
	}
	e.timer.Stop()
	e.state = StateEmulating
	e.held = e.target
	e.post(e.held, true)
	e.stats.Promotions++
}

// settle ends a hold, posting whatever keeps the downstream stream
// balanced. Caller holds e.mu.
func (e *Emulator) settle() {
	switch e.state {
	case StatePending:
		e.post(PrimaryButton, true)
	case StateEmulating:
		e.post(e.held, false)
	}
	e.cancel()
}

// cancel returns to idle. Caller holds e.mu.
func (e *Emulator) cancel() {
	if e.state != StateIdle {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.state = StateIdle
		e.held = 0
		e.motion.reset()
	}
	e.motion.mode = ModeUnset
}

// post delivers a synthetic event. On absolute devices it is placed at the
// hold's start position so a replayed click lands where the finger went
// down, not where it drifted to. Caller holds e.mu.
func (e *Emulator) post(b Button, pressed bool) {
	ev := ButtonEvent{
		Button:    b,
		Pressed:   pressed,
		Mode:      ModeRelative,
		Synthetic: true,
	}
	if e.motion.mode == ModeAbsolute {
		ev.Mode = ModeAbsolute
		ev.Position = e.motion.start
	}
	if e.poster != nil {
		e.poster.PostButton(ev)
	}
}
