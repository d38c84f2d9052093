package emulate

import (
	"errors"
	"testing"
	"time"
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	emu    *Emulator
	poster *RecordingPoster
	timers *FakeTimers
	clock  *FakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		poster: &RecordingPoster{},
		timers: &FakeTimers{},
		clock:  NewFakeClock(testStart),
	}
	h.emu = New(cfg, h.poster, h.timers.New)
	h.emu.SetNowFunc(h.clock.Now)
	if h.timers.Count() != 1 {
		t.Fatalf("expected exactly one timer allocation, got %d", h.timers.Count())
	}
	return h
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

// expire advances the clock past the armed timeout and fires the timer.
func (h *harness) expire(t *testing.T) {
	t.Helper()
	armed, d := h.timers.Last().Armed()
	if !armed {
		t.Fatal("expected timer to be armed")
	}
	h.clock.Advance(d)
	if !h.timers.Last().Fire() {
		t.Fatal("timer did not fire")
	}
}

func press(b Button) ButtonEvent {
	return ButtonEvent{Button: b, Pressed: true, Mode: ModeRelative, Synthetic: true}
}

func release(b Button) ButtonEvent {
	return ButtonEvent{Button: b, Pressed: false, Mode: ModeRelative, Synthetic: true}
}

func at(ev ButtonEvent, x, y int) ButtonEvent {
	ev.Mode = ModeAbsolute
	ev.Position = Position{X: x, Y: y}
	return ev
}

func assertEvents(t *testing.T, got []ButtonEvent, want ...ButtonEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events: got %d %+v, want %d %+v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func assertState(t *testing.T, e *Emulator, want State) {
	t.Helper()
	if got := e.Snapshot().State; got != want {
		t.Errorf("state: got %s, want %s", got, want)
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("emulation should be off by default")
	}
	if cfg.Timeout != time.Second {
		t.Errorf("Timeout: got %v, want 1s", cfg.Timeout)
	}
	if cfg.Button != 3 {
		t.Errorf("Button: got %d, want 3", cfg.Button)
	}
	if cfg.Threshold != 20 {
		t.Errorf("Threshold: got %d, want 20", cfg.Threshold)
	}

	h := newHarness(t, cfg)
	assertState(t, h.emu, StateIdle)
	if armed, _ := h.timers.Last().Armed(); armed {
		t.Error("timer should not be armed after New")
	}
}

func TestDisabledNeverConsumes(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if h.emu.OnButtonEvent(PrimaryButton, true) {
		t.Error("press consumed while disabled")
	}
	if h.emu.OnButtonEvent(PrimaryButton, false) {
		t.Error("release consumed while disabled")
	}
	if h.emu.OnButtonEvent(2, true) {
		t.Error("other button consumed while disabled")
	}
	assertEvents(t, h.poster.Events())
	assertState(t, h.emu, StateIdle)
	if h.timers.Last().Resets() != 0 {
		t.Error("timer armed while disabled")
	}
}

func TestPressArmsTimer(t *testing.T) {
	cfg := enabledConfig()
	cfg.Timeout = 750 * time.Millisecond
	h := newHarness(t, cfg)

	if !h.emu.OnButtonEvent(PrimaryButton, true) {
		t.Fatal("primary press should be consumed")
	}
	assertState(t, h.emu, StatePending)
	armed, d := h.timers.Last().Armed()
	if !armed || d != 750*time.Millisecond {
		t.Errorf("timer: armed=%v delay=%v, want armed with 750ms", armed, d)
	}
	assertEvents(t, h.poster.Events())
}

func TestQuickTapReplaysClick(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnButtonEvent(PrimaryButton, true)
	h.clock.Advance(200 * time.Millisecond)
	if !h.emu.OnButtonEvent(PrimaryButton, false) {
		t.Error("release during hold should be consumed")
	}

	assertEvents(t, h.poster.Events(), press(1), release(1))
	assertState(t, h.emu, StateIdle)
	if armed, _ := h.timers.Last().Armed(); armed {
		t.Error("timer still armed after release")
	}
	if h.emu.Snapshot().Stats.EarlyReleases != 1 {
		t.Errorf("EarlyReleases: got %d, want 1", h.emu.Snapshot().Stats.EarlyReleases)
	}
}

func TestHoldPromotesToTargetButton(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnButtonEvent(PrimaryButton, true)
	h.expire(t)

	assertEvents(t, h.poster.Events(), press(3))
	assertState(t, h.emu, StateEmulating)

	if !h.emu.OnButtonEvent(PrimaryButton, false) {
		t.Error("release during emulation should be consumed")
	}
	assertEvents(t, h.poster.Events(), press(3), release(3))
	assertState(t, h.emu, StateIdle)

	stats := h.emu.Snapshot().Stats
	if stats.Holds != 1 || stats.Promotions != 1 {
		t.Errorf("stats: got %+v, want 1 hold and 1 promotion", stats)
	}
}

func TestAbsoluteMotionWithinThresholdPromotes(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnAbsoluteMotion(XY(100, 100))
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.clock.Advance(200 * time.Millisecond)
	h.emu.OnAbsoluteMotion(XY(115, 100))
	assertState(t, h.emu, StatePending)

	h.clock.Advance(800 * time.Millisecond)
	if !h.timers.Last().Fire() {
		t.Fatal("timer did not fire")
	}

	assertEvents(t, h.poster.Events(), at(press(3), 100, 100))
	assertState(t, h.emu, StateEmulating)
}

func TestAbsoluteMotionBeyondThresholdCancels(t *testing.T) {
	tests := []struct {
		name string
		v    Valuators
	}{
		{"x", XY(121, 100)},
		{"y", XY(100, 79)},
		{"x only axis", func() Valuators {
			var v Valuators
			v.Set(AxisX, 79)
			return v
		}()},
		{"both", XY(150, 150)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, enabledConfig())
			h.emu.OnAbsoluteMotion(XY(100, 100))
			h.emu.OnButtonEvent(PrimaryButton, true)
			h.emu.OnAbsoluteMotion(tt.v)

			assertEvents(t, h.poster.Events(), at(press(1), 100, 100))
			assertState(t, h.emu, StateIdle)
			if armed, _ := h.timers.Last().Armed(); armed {
				t.Error("timer still armed after cancel")
			}

			// The real release now passes through untouched.
			if h.emu.OnButtonEvent(PrimaryButton, false) {
				t.Error("release after cancel should not be consumed")
			}
			if n := len(h.poster.Events()); n != 1 {
				t.Errorf("events after release: got %d, want 1", n)
			}
		})
	}
}

func TestAbsoluteMotionAtThresholdDoesNotCancel(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnAbsoluteMotion(XY(100, 100))
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnAbsoluteMotion(XY(120, 80))

	assertState(t, h.emu, StatePending)
	assertEvents(t, h.poster.Events())
}

func TestRelativeMotionAccumulates(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)

	h.emu.OnRelativeMotion(8, 0)
	h.emu.OnRelativeMotion(8, -3)
	assertState(t, h.emu, StatePending)
	if mode := h.emu.Snapshot().Mode; mode != ModeRelative {
		t.Errorf("mode: got %s, want RELATIVE", mode)
	}

	h.emu.OnRelativeMotion(5, 0)
	assertState(t, h.emu, StateIdle)
	assertEvents(t, h.poster.Events(), press(1))
	if h.emu.Snapshot().Stats.MotionCancels != 1 {
		t.Error("expected one motion cancel")
	}
}

func TestRelativeMotionBackAndForthStaysPending(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	for i := 0; i < 10; i++ {
		h.emu.OnRelativeMotion(15, 15)
		h.emu.OnRelativeMotion(-15, -15)
	}
	assertState(t, h.emu, StatePending)
}

func TestRelativeMotionIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnRelativeMotion(500, 500)
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnRelativeMotion(5, 5)
	assertState(t, h.emu, StatePending)
}

func TestOtherButtonWhilePendingFlushesPrimary(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)

	if h.emu.OnButtonEvent(2, true) {
		t.Error("other button must not be consumed")
	}
	assertEvents(t, h.poster.Events(), press(1))
	assertState(t, h.emu, StateIdle)
	if armed, _ := h.timers.Last().Armed(); armed {
		t.Error("timer still armed")
	}
}

func TestOtherButtonWhileEmulatingReleasesTarget(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.expire(t)

	if h.emu.OnButtonEvent(2, true) {
		t.Error("other button must not be consumed")
	}
	assertEvents(t, h.poster.Events(), press(3), release(3))
	assertState(t, h.emu, StateIdle)

	// The primary release that follows is passed through.
	if h.emu.OnButtonEvent(PrimaryButton, false) {
		t.Error("primary release after cancel should not be consumed")
	}
}

func TestDuplicatePressIsSwallowed(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	if !h.emu.OnButtonEvent(PrimaryButton, true) {
		t.Error("duplicate press while pending should be consumed")
	}
	if h.timers.Last().Resets() != 1 {
		t.Errorf("timer resets: got %d, want 1", h.timers.Last().Resets())
	}

	h.expire(t)
	if !h.emu.OnButtonEvent(PrimaryButton, true) {
		t.Error("duplicate press while emulating should be consumed")
	}
	assertEvents(t, h.poster.Events(), press(3))
	assertState(t, h.emu, StateEmulating)
}

func TestTimerFireWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnTimerFire()
	h.timers.Last().Trigger()
	assertState(t, h.emu, StateIdle)
	assertEvents(t, h.poster.Events())
}

func TestStaleTimerFiringDoesNotPromoteNextHold(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnButtonEvent(PrimaryButton, true)
	h.clock.Advance(time.Second)
	h.emu.OnButtonEvent(PrimaryButton, false)
	h.poster.Reset()

	// A new hold starts before the first hold's in-flight firing runs.
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.clock.Advance(10 * time.Millisecond)
	h.timers.Last().Trigger()

	assertState(t, h.emu, StatePending)
	assertEvents(t, h.poster.Events())

	h.clock.Advance(time.Second)
	h.timers.Last().Trigger()
	assertState(t, h.emu, StateEmulating)
	assertEvents(t, h.poster.Events(), press(3))
}

func TestOnTimerFireIgnoresDeadline(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnTimerFire()
	assertState(t, h.emu, StateEmulating)
	if armed, _ := h.timers.Last().Armed(); armed {
		t.Error("timer should be disarmed after promotion")
	}
	assertEvents(t, h.poster.Events(), press(3))
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnAbsoluteMotion(XY(10, 10))
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnAbsoluteMotion(XY(12, 12))

	h.emu.Cancel()
	first := h.emu.Snapshot()
	h.emu.Cancel()
	second := h.emu.Snapshot()

	if first != second {
		t.Errorf("second cancel changed state: %+v -> %+v", first, second)
	}
	if first.State != StateIdle || first.Mode != ModeUnset {
		t.Errorf("after cancel: got %s/%s, want IDLE/UNSET", first.State, first.Mode)
	}
	assertEvents(t, h.poster.Events())
}

func TestConfigChangeAppliesToNextHold(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnAbsoluteMotion(XY(0, 0))
	h.emu.OnButtonEvent(PrimaryButton, true)

	h.emu.SetThreshold(5)
	h.emu.SetButton(2)
	h.emu.SetTimeout(100 * time.Millisecond)

	// Still measured against the threshold captured at arming.
	h.emu.OnAbsoluteMotion(XY(10, 0))
	assertState(t, h.emu, StatePending)

	h.expire(t)
	assertEvents(t, h.poster.Events(), at(press(3), 0, 0))

	h.emu.OnButtonEvent(PrimaryButton, false)
	h.poster.Reset()

	h.emu.OnButtonEvent(PrimaryButton, true)
	if _, d := h.timers.Last().Armed(); d != 100*time.Millisecond {
		t.Errorf("next hold timeout: got %v, want 100ms", d)
	}
	h.emu.OnAbsoluteMotion(XY(16, 10))
	assertEvents(t, h.poster.Events(), at(press(1), 10, 0))
}

func TestEmulatedReleaseUsesPressedButton(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.expire(t)
	h.emu.SetButton(2)
	h.emu.OnButtonEvent(PrimaryButton, false)
	assertEvents(t, h.poster.Events(), press(3), release(3))
}

func TestStartPositionFollowsMotionBetweenHolds(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnAbsoluteMotion(XY(100, 100))
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnButtonEvent(PrimaryButton, false)
	h.poster.Reset()

	// Only Y changes; X keeps its last value.
	var v Valuators
	v.Set(AxisY, 300)
	h.emu.OnAbsoluteMotion(v)
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnAbsoluteMotion(XY(100, 330))

	assertEvents(t, h.poster.Events(), at(press(1), 100, 300))
}

func TestSecondHoldWithoutFreshSampleUsesLastPosition(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.emu.OnAbsoluteMotion(XY(50, 50))
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnAbsoluteMotion(XY(55, 50))
	h.emu.OnButtonEvent(PrimaryButton, false)
	h.poster.Reset()

	// Same spot again: the device sends no new coordinates.
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.OnAbsoluteMotion(XY(60, 50))
	assertState(t, h.emu, StatePending)
}

func TestDisableDuringHoldReplaysPrimary(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)

	h.emu.SetEnabled(false)
	assertEvents(t, h.poster.Events(), press(1))
	assertState(t, h.emu, StateIdle)

	if h.emu.OnButtonEvent(PrimaryButton, false) {
		t.Error("release after disable should pass through")
	}
}

func TestDisableDuringEmulationReleasesTarget(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.expire(t)

	h.emu.SetEnabled(false)
	assertEvents(t, h.poster.Events(), press(3), release(3))
	assertState(t, h.emu, StateIdle)
}

func TestTimerAllocationFailureDisablesEmulation(t *testing.T) {
	poster := &RecordingPoster{}
	timers := &FakeTimers{Err: ErrFakeTimer}
	e := New(enabledConfig(), poster, timers.New)

	if !errors.Is(e.TimerErr(), ErrNoTimer) {
		t.Errorf("TimerErr: got %v, want ErrNoTimer", e.TimerErr())
	}
	if e.OnButtonEvent(PrimaryButton, true) {
		t.Error("press consumed without a timer")
	}
	e.SetEnabled(true)
	if e.Config().Enabled {
		t.Error("emulation enabled without a timer")
	}
	if !e.Snapshot().Disabled {
		t.Error("snapshot should report Disabled")
	}
}

func TestCloseReleasesEmulatedButton(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.expire(t)

	h.emu.Close()
	h.emu.Close()
	assertEvents(t, h.poster.Events(), press(3), release(3))

	if h.emu.OnButtonEvent(PrimaryButton, true) {
		t.Error("press consumed after close")
	}
	h.timers.Last().Trigger()
	assertState(t, h.emu, StateIdle)
}

func TestClosePendingPostsNothing(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.emu.OnButtonEvent(PrimaryButton, true)
	h.emu.Close()
	assertEvents(t, h.poster.Events())
	if armed, _ := h.timers.Last().Armed(); armed {
		t.Error("timer armed after close")
	}
}

func TestAfterFuncFires(t *testing.T) {
	poster := &RecordingPoster{}
	cfg := enabledConfig()
	cfg.Timeout = 5 * time.Millisecond
	e := New(cfg, poster, AfterFunc)
	defer e.Close()

	e.OnButtonEvent(PrimaryButton, true)

	deadline := time.Now().Add(2 * time.Second)
	for e.Snapshot().State != StateEmulating {
		if time.Now().After(deadline) {
			t.Fatal("timer never promoted the hold")
		}
		time.Sleep(time.Millisecond)
	}
	assertEvents(t, poster.Events(), press(3))
}

func TestAfterFuncCancelledBeforeExpiry(t *testing.T) {
	poster := &RecordingPoster{}
	cfg := enabledConfig()
	cfg.Timeout = 50 * time.Millisecond
	e := New(cfg, poster, AfterFunc)
	defer e.Close()

	e.OnButtonEvent(PrimaryButton, true)
	e.OnButtonEvent(PrimaryButton, false)
	time.Sleep(100 * time.Millisecond)

	assertState(t, e, StateIdle)
	assertEvents(t, poster.Events(), press(1), release(1))
}
