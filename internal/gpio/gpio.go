// Package gpio provides a push-button input with hardware abstraction.
// The real implementation watches a Linux GPIO character device line for
// edge events. The fake implementation allows testing without hardware.
package gpio

// Handler receives the logical button state on every edge.
type Handler func(pressed bool)

// Button is a single push-button wired to a GPIO line.
type Button interface {
	// Pressed returns the current logical state of the button.
	Pressed() (bool, error)

	// Close stops edge delivery and releases GPIO resources.
	Close() error
}

// Line describes where a button is wired.
type Line struct {
	Chip   string
	Offset int
	// ActiveLow inverts the line so a grounded input reads as pressed.
	ActiveLow bool
}
