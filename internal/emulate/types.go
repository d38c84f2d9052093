// Package emulate turns a press-and-hold of the primary button on a
// single-button touch device into a press of another button.
//
// A primary press is held back while a one-shot timer runs. If the timer
// expires first, the configured target button is pressed instead. Moving
// the contact beyond the threshold, releasing early, or pressing any other
// button replays the original primary press and ends the hold.
//
// This package has no I/O. Events leave through a Poster and the timer is
// supplied by a TimerFactory, so tests can drive it deterministically.
package emulate

import "time"

// State is the emulation state of a single device.
type State string

const (
	// StateIdle means no hold is in progress.
	StateIdle State = "IDLE"
	// StatePending means the primary button is held and the timer is armed.
	StatePending State = "PENDING"
	// StateEmulating means the timer fired and the target button is down.
	StateEmulating State = "EMULATING"
)

// Button is a logical pointer button number. Button 0 is not a button.
type Button uint8

// PrimaryButton is the only button a single-button touch device reports.
const PrimaryButton Button = 1

// CoordinateMode tells a consumer whether a posted event carries a position.
type CoordinateMode string

const (
	// ModeUnset means no motion has been seen during the current hold.
	ModeUnset CoordinateMode = "UNSET"
	// ModeAbsolute events carry the position of the touch-down point.
	ModeAbsolute CoordinateMode = "ABSOLUTE"
	// ModeRelative events carry no position; the pointer stays where it is.
	ModeRelative CoordinateMode = "RELATIVE"
)

// Position is a point in device coordinates.
type Position struct {
	X int
	Y int
}

// ButtonEvent is a button press or release delivered downstream.
type ButtonEvent struct {
	Button  Button
	Pressed bool
	// Mode is ModeAbsolute when Position is meaningful, ModeRelative otherwise.
	Mode     CoordinateMode
	Position Position
	// Synthetic is true for events generated by the emulator rather than
	// passed through from the device.
	Synthetic bool
}

// Poster delivers button events downstream.
// PostButton runs with the emulator lock held, including from the timer
// goroutine, so it must not block and must not call back into the Emulator.
type Poster interface {
	PostButton(ev ButtonEvent)
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(ev ButtonEvent)

// PostButton calls f(ev).
func (f PosterFunc) PostButton(ev ButtonEvent) {
	f(ev)
}

// Defaults used when a device does not configure emulation.
const (
	DefaultTimeout   = 1000 * time.Millisecond
	DefaultButton    = Button(3)
	DefaultThreshold = 20
)

// Config holds the tunable emulation parameters of one device.
type Config struct {
	Enabled bool
	// Timeout is how long the primary button must be held before promotion.
	Timeout time.Duration
	// Button is pressed in place of the primary button on promotion.
	Button Button
	// Threshold is the largest displacement per axis, in device units,
	// that does not cancel a pending hold.
	Threshold int
}

// DefaultConfig returns the configuration of a device with no options set.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Timeout:   DefaultTimeout,
		Button:    DefaultButton,
		Threshold: DefaultThreshold,
	}
}

// Stats counts how holds have ended since the device was attached.
type Stats struct {
	// Holds is the number of primary presses that armed the timer.
	Holds int
	// Promotions is the number of holds that became target button presses.
	Promotions int
	// EarlyReleases is the number of holds released before the timeout.
	EarlyReleases int
	// MotionCancels is the number of holds cancelled by moving too far.
	MotionCancels int
	// ButtonCancels is the number of holds or emulations ended by another button.
	ButtonCancels int
}

// Snapshot is a point-in-time view of an Emulator.
type Snapshot struct {
	State  State
	Mode   CoordinateMode
	Config Config
	Stats  Stats
	// Disabled is true when the timer slot could not be allocated and
	// emulation can never be enabled on this device.
	Disabled bool
}
