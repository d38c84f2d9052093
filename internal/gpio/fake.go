package gpio

import (
	"errors"
	"sync"
)

// ErrClosed is returned by a FakeButton after Close.
var ErrClosed = errors.New("gpio: button closed")

// FakeButton is a test double driven by Press and Release.
type FakeButton struct {
	mu      sync.Mutex
	fn      Handler
	pressed bool
	closed  bool

	// ReadError, if set, will be returned by Pressed()
	ReadError error
}

// NewFakeButton creates a FakeButton that reports edges to fn.
func NewFakeButton(fn Handler) *FakeButton {
	return &FakeButton{fn: fn}
}

// Press simulates a falling-to-active edge. Repeated presses without a
// release produce no edge, as on real hardware.
func (f *FakeButton) Press() {
	f.edge(true)
}

// Release simulates the button being let go.
func (f *FakeButton) Release() {
	f.edge(false)
}

func (f *FakeButton) edge(pressed bool) {
	f.mu.Lock()
	if f.closed || f.pressed == pressed {
		f.mu.Unlock()
		return
	}
	f.pressed = pressed
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(pressed)
	}
}

// Pressed returns the simulated state.
func (f *FakeButton) Pressed() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if f.closed {
		return false, ErrClosed
	}
	return f.pressed, nil
}

// Close stops edge delivery.
func (f *FakeButton) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeButton) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
