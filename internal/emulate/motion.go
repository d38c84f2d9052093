package emulate

// Axis identifies a motion axis. Only X and Y take part in cancellation.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	numAxes
)

// Valuators is an absolute motion sample in which each axis may be absent.
type Valuators struct {
	values [numAxes]int
	mask   uint8
}

// XY returns a sample with both axes present.
func XY(x, y int) Valuators {
	var v Valuators
	v.Set(AxisX, x)
	v.Set(AxisY, y)
	return v
}

// Set marks axis a as present with the given value.
func (v *Valuators) Set(a Axis, value int) {
	if a < 0 || a >= numAxes {
		return
	}
	v.values[a] = value
	v.mask |= 1 << uint(a)
}

// Get returns the value of axis a and whether it is present.
func (v Valuators) Get(a Axis) (int, bool) {
	if a < 0 || a >= numAxes || v.mask&(1<<uint(a)) == 0 {
		return 0, false
	}
	return v.values[a], true
}

// tracker keeps the reference point that motion during a hold is measured
// against. Not safe for concurrent use; the Emulator lock covers it.
type tracker struct {
	// last is the most recent absolute position, kept across holds so a
	// hold that starts without a fresh sample still has a reference.
	last Position
	// start is the hold's reference point. Outside a hold it follows last.
	start Position
	// delta is the relative motion accumulated during the hold.
	delta Position
	// mode is decided by the first motion sample of a hold.
	mode CoordinateMode
}

func newTracker() tracker {
	return tracker{mode: ModeUnset}
}

// follow records an absolute sample outside a pending hold.
func (t *tracker) follow(v Valuators) {
	for a := AxisX; a < numAxes; a++ {
		if value, ok := v.Get(a); ok {
			t.last.set(a, value)
			t.start.set(a, value)
		}
	}
}

// begin starts a hold at the last known position.
func (t *tracker) begin() {
	t.start = t.last
	t.delta = Position{}
	t.mode = ModeUnset
}

// reset clears the hold reference when returning to idle.
func (t *tracker) reset() {
	t.start = Position{}
	t.delta = Position{}
	t.mode = ModeUnset
}

// mark fixes the coordinate mode for the rest of the hold.
func (t *tracker) mark(m CoordinateMode) {
	if t.mode == ModeUnset {
		t.mode = m
	}
}

// absolute reports whether an absolute sample moved beyond threshold from
// the start position. Axes are checked X then Y and the first one over the
// threshold decides.
func (t *tracker) absolute(v Valuators, threshold int) bool {
	t.mark(ModeAbsolute)
	moved := false
	for a := AxisX; a < numAxes; a++ {
		value, ok := v.Get(a)
		if !ok {
			continue
		}
		t.last.set(a, value)
		if !moved && abs(value-t.start.get(a)) > threshold {
			moved = true
		}
	}
	return moved
}

// relative accumulates a relative sample and reports whether the total
// displacement exceeds threshold on either axis.
func (t *tracker) relative(dx, dy, threshold int) bool {
	t.delta.X += dx
	t.delta.Y += dy
	t.mark(ModeRelative)
	return abs(t.delta.X) > threshold || abs(t.delta.Y) > threshold
}

func (p Position) get(a Axis) int {
	if a == AxisY {
		return p.Y
	}
	return p.X
}

func (p *Position) set(a Axis, value int) {
	if a == AxisY {
		p.Y = value
		return
	}
	p.X = value
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
