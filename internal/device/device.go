// Package device ties one input source to its emulator and property store.
// Raw samples go in through Button and the motion methods; whatever should
// reach downstream consumers comes out on a shared event queue.
package device

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/holdclick/internal/emulate"
	"github.com/sweeney/holdclick/internal/property"
)

// Event is a button event delivered downstream.
type Event struct {
	Device string
	Time   time.Time
	emulate.ButtonEvent
}

// Options configures a Device.
type Options struct {
	// Queue receives downstream events. Sends never block; events that do
	// not fit are counted as dropped.
	Queue chan<- Event
	// NewTimer allocates the emulation timer. Nil uses emulate.AfterFunc.
	NewTimer emulate.TimerFactory
	// NoButtons marks a source without buttons. It gets no emulation and
	// no properties.
	NoButtons bool
	// Now is the clock used to stamp events. Nil uses time.Now.
	Now func() time.Time
}

// Device is one attached input source.
type Device struct {
	Name string

	emu    *emulate.Emulator
	props  *property.Store
	queue  chan<- Event
	now    func() time.Time
	noBtns bool

	dropped atomic.Uint64
	posted  atomic.Uint64

	mu     sync.Mutex
	last   emulate.Position
	hasAbs bool
	closed bool

	// evMu guards lastEv, which PostButton writes from the timer goroutine.
	evMu   sync.Mutex
	lastEv *Event
}

// Attach creates a device with emulation configured by cfg.
func Attach(name string, cfg emulate.Config, opts Options) (*Device, error) {
	d := &Device{
		Name:   name,
		props:  property.NewStore(),
		queue:  opts.Queue,
		now:    opts.Now,
		noBtns: opts.NoButtons,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.noBtns {
		return d, nil
	}

	d.emu = emulate.New(cfg, d, opts.NewTimer)
	if err := d.emu.TimerErr(); err != nil {
		log.Printf("device %s: emulation disabled: %v", name, err)
	}
	if _, err := property.Attach(d.props, d.emu); err != nil {
		d.emu.Close()
		return nil, err
	}
	return d, nil
}

// PostButton implements emulate.Poster. It is called with the emulator
// lock held and never blocks.
func (d *Device) PostButton(ev emulate.ButtonEvent) {
	out := Event{Device: d.Name, Time: d.now(), ButtonEvent: ev}
	d.evMu.Lock()
	d.lastEv = &out
	d.evMu.Unlock()
	select {
	case d.queue <- out:
		d.posted.Add(1)
	default:
		d.dropped.Add(1)
	}
}

// Button feeds a raw button sample. Samples the emulator does not consume
// are forwarded unchanged.
func (d *Device) Button(b emulate.Button, pressed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.noBtns {
		return
	}
	if d.emu.OnButtonEvent(b, pressed) {
		return
	}
	ev := emulate.ButtonEvent{Button: b, Pressed: pressed, Mode: emulate.ModeRelative}
	if d.hasAbs {
		ev.Mode = emulate.ModeAbsolute
		ev.Position = d.last
	}
	d.PostButton(ev)
}

// AbsoluteMotion feeds an absolute motion sample.
func (d *Device) AbsoluteMotion(v emulate.Valuators) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if x, ok := v.Get(emulate.AxisX); ok {
		d.last.X = x
		d.hasAbs = true
	}
	if y, ok := v.Get(emulate.AxisY); ok {
		d.last.Y = y
		d.hasAbs = true
	}
	if d.emu != nil {
		d.emu.OnAbsoluteMotion(v)
	}
}

// RelativeMotion feeds a relative motion sample.
func (d *Device) RelativeMotion(dx, dy int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.emu == nil {
		return
	}
	d.emu.OnRelativeMotion(dx, dy)
}

// Properties returns the device property store.
func (d *Device) Properties() *property.Store {
	return d.props
}

// Emulator returns the device's emulator, or nil for a device without
// buttons.
func (d *Device) Emulator() *emulate.Emulator {
	return d.emu
}

// Status summarises the device for reporting.
type Status struct {
	Name      string
	Buttons   bool
	Emulation *emulate.Snapshot
	Posted    uint64
	Dropped   uint64
	LastEvent *Event
}

// Status returns a snapshot of the device.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Name:    d.Name,
		Buttons: !d.noBtns,
		Posted:  d.posted.Load(),
		Dropped: d.dropped.Load(),
	}
	if d.emu != nil {
		snap := d.emu.Snapshot()
		st.Emulation = &snap
	}
	d.evMu.Lock()
	if d.lastEv != nil {
		ev := *d.lastEv
		st.LastEvent = &ev
	}
	d.evMu.Unlock()
	return st
}

// Close detaches the device, releasing any emulated press. The shared
// queue is left open.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.emu != nil {
		d.emu.Close()
	}
	d.closed = true
}
