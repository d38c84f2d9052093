//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealButton watches a GPIO line using the Linux GPIO character device.
type RealButton struct {
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealButton requests l as an input with edge detection on both edges.
// fn runs on the gpiocdev event goroutine for every debounced edge. A nil
// fn requests the line without edge detection, for one-off reads.
func NewRealButton(l Line, debounce time.Duration, fn Handler) (*RealButton, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if fn != nil {
		opts = append(opts,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				fn(evt.Type == gpiocdev.LineEventRisingEdge)
			}))
	}
	// Pull the line away from its active level so an unwired input reads
	// as released.
	if l.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	line, err := gpiocdev.RequestLine(l.Chip, l.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", l.Chip, l.Offset, err)
	}
	return &RealButton{line: line, activeLow: l.ActiveLow}, nil
}

// Pressed returns the logical line value.
func (r *RealButton) Pressed() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v == 1, nil
}

// Close releases the line.
// Reconfigures the line as a plain biased input first so edge detection is
// off before the request is released.
func (r *RealButton) Close() error {
	var errs []error
	var err error
	if r.activeLow {
		err = r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
	} else {
		err = r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
