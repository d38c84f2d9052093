package emulate

import (
	"time"
)

// Timer is the one-shot timer slot an Emulator arms while a hold is
// pending. *time.Timer satisfies it.
type Timer interface {
	// Reset arms the timer to fire after d, replacing any earlier deadline.
	Reset(d time.Duration) bool
	// Stop disarms the timer. It is safe to call when nothing is armed.
	Stop() bool
}

// TimerFactory allocates the timer slot for one device. It is called once,
// when the Emulator is created; fn runs each time the timer fires.
type TimerFactory func(fn func()) (Timer, error)

// AfterFunc is the TimerFactory backed by time.AfterFunc. The timer is
// created stopped so arming it later does not allocate.
func AfterFunc(fn func()) (Timer, error) {
	t := time.AfterFunc(time.Hour, fn)
	t.Stop()
	return t, nil
}
