package property

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/holdclick/internal/emulate"
)

func newBridge(t *testing.T) (*Store, *emulate.Emulator, Atoms) {
	t.Helper()
	timers := &emulate.FakeTimers{}
	emu := emulate.New(emulate.DefaultConfig(), &emulate.RecordingPoster{}, timers.New)
	store := NewStore()
	if _, err := Attach(store, emu); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return store, emu, EmulationAtoms()
}

func readInt(t *testing.T, s *Store, a Atom) int64 {
	t.Helper()
	v, err := s.Get(a)
	if err != nil {
		t.Fatalf("Get %q: %v", Name(a), err)
	}
	n, err := v.Int(0)
	if err != nil {
		t.Fatalf("Int %q: %v", Name(a), err)
	}
	return n
}

func TestInternIsStable(t *testing.T) {
	a := Intern("Test Property")
	b := Intern("Test Property")
	if a != b {
		t.Errorf("Intern: got %d then %d", a, b)
	}
	if Name(a) != "Test Property" {
		t.Errorf("Name: got %q", Name(a))
	}
	if a <= TypeInteger {
		t.Errorf("atom %d collides with built-in atoms", a)
	}
	if _, ok := Lookup("Never Interned"); ok {
		t.Error("Lookup created an atom")
	}
	if Name(Atom(1 << 30)) != "" {
		t.Error("Name of unknown atom should be empty")
	}
}

func TestAttachPublishesConfig(t *testing.T) {
	store, _, atoms := newBridge(t)

	tests := []struct {
		atom   Atom
		format int
		want   int64
	}{
		{atoms.Enabled, 8, 0},
		{atoms.Timeout, 32, 1000},
		{atoms.Button, 8, 3},
		{atoms.Threshold, 32, 20},
	}
	for _, tt := range tests {
		t.Run(Name(tt.atom), func(t *testing.T) {
			v, err := store.Get(tt.atom)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !v.Is(TypeInteger, tt.format, 1) {
				t.Errorf("value shape: got type=%d format=%d size=%d", v.Type, v.Format, v.Size)
			}
			if got := readInt(t, store, tt.atom); got != tt.want {
				t.Errorf("value: got %d, want %d", got, tt.want)
			}
			if err := store.Delete(tt.atom); !errors.Is(err, ErrNotDeletable) {
				t.Errorf("Delete: got %v, want ErrNotDeletable", err)
			}
		})
	}

	if n := len(store.List()); n != 4 {
		t.Errorf("List: got %d properties, want 4", n)
	}
}

func TestWritesApplyToEmulator(t *testing.T) {
	store, emu, atoms := newBridge(t)

	writes := []struct {
		atom  Atom
		value Value
	}{
		{atoms.Enabled, Bool(true)},
		{atoms.Timeout, Int32(250)},
		{atoms.Button, Int8(2)},
		{atoms.Threshold, Int32(7)},
	}
	for _, w := range writes {
		if err := store.Change(w.atom, w.value); err != nil {
			t.Fatalf("Change %q: %v", Name(w.atom), err)
		}
	}

	cfg := emu.Config()
	want := emulate.Config{Enabled: true, Timeout: 250 * time.Millisecond, Button: 2, Threshold: 7}
	if cfg != want {
		t.Errorf("config: got %+v, want %+v", cfg, want)
	}
	if got := readInt(t, store, atoms.Timeout); got != 250 {
		t.Errorf("timeout read-back: got %d, want 250", got)
	}
}

func TestRejectedWriteLeavesValueUnchanged(t *testing.T) {
	store, emu, atoms := newBridge(t)

	err := store.Change(atoms.Timeout, Int8(50))
	if !errors.Is(err, ErrBadValue) {
		t.Fatalf("8-bit timeout write: got %v, want ErrBadValue", err)
	}
	if got := readInt(t, store, atoms.Timeout); got != 1000 {
		t.Errorf("timeout read-back: got %d, want 1000", got)
	}
	if emu.Config().Timeout != time.Second {
		t.Errorf("emulator timeout changed to %v", emu.Config().Timeout)
	}
}

func TestBadValues(t *testing.T) {
	store, emu, atoms := newBridge(t)
	pair, _ := Ints(32, 10, 20)
	short := Value{Type: TypeInteger, Format: 32, Size: 1, Data: []byte{1, 2}}
	wrongType := Int8(1)
	wrongType.Type = Intern("CARDINAL")

	tests := []struct {
		name  string
		atom  Atom
		value Value
	}{
		{"enabled 32-bit", atoms.Enabled, Int32(1)},
		{"enabled wrong type", atoms.Enabled, wrongType},
		{"timeout two items", atoms.Timeout, pair},
		{"timeout negative", atoms.Timeout, Int32(-5)},
		{"button 32-bit", atoms.Button, Int32(2)},
		{"button zero", atoms.Button, Int8(0)},
		{"threshold 8-bit", atoms.Threshold, Int8(5)},
		{"threshold negative", atoms.Threshold, Int32(-1)},
		{"truncated data", atoms.Threshold, short},
		{"bad format", atoms.Threshold, Value{Type: TypeInteger, Format: 12, Size: 1, Data: []byte{1, 0}}},
	}

	before := emu.Config()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Change(tt.atom, tt.value); !errors.Is(err, ErrBadValue) {
				t.Errorf("Change: got %v, want ErrBadValue", err)
			}
			if err := store.Check(tt.atom, tt.value); !errors.Is(err, ErrBadValue) {
				t.Errorf("Check: got %v, want ErrBadValue", err)
			}
		})
	}
	if emu.Config() != before {
		t.Errorf("config changed by rejected writes: %+v -> %+v", before, emu.Config())
	}
}

func TestCheckDoesNotApply(t *testing.T) {
	store, emu, atoms := newBridge(t)
	if err := store.Check(atoms.Threshold, Int32(99)); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if emu.Config().Threshold != 20 {
		t.Errorf("threshold applied by Check: %d", emu.Config().Threshold)
	}
	if got := readInt(t, store, atoms.Threshold); got != 20 {
		t.Errorf("threshold read-back: got %d, want 20", got)
	}
}

func TestVetoByLaterHandlerPreventsCommit(t *testing.T) {
	store, emu, atoms := newBridge(t)
	store.Register(HandlerFunc(func(a Atom, v Value, checkOnly bool) error {
		if a == atoms.Button {
			return ErrBadValue
		}
		return nil
	}))

	if err := store.Change(atoms.Button, Int8(5)); !errors.Is(err, ErrBadValue) {
		t.Fatalf("Change: got %v, want ErrBadValue", err)
	}
	if emu.Config().Button != 3 {
		t.Errorf("button applied despite veto: %d", emu.Config().Button)
	}
}

func TestUnownedPropertiesAreStored(t *testing.T) {
	store, _, _ := newBridge(t)
	other := Intern("Device Accel Profile")
	if err := store.Change(other, Int32(-1)); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if got := readInt(t, store, other); got != -1 {
		t.Errorf("read-back: got %d, want -1", got)
	}
	if err := store.Delete(other); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if _, err := store.Get(other); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("Get after delete: got %v, want ErrUnknownProperty", err)
	}
}

func TestDisableThroughPropertySettlesHold(t *testing.T) {
	timers := &emulate.FakeTimers{}
	poster := &emulate.RecordingPoster{}
	cfg := emulate.DefaultConfig()
	cfg.Enabled = true
	emu := emulate.New(cfg, poster, timers.New)
	store := NewStore()
	if _, err := Attach(store, emu); err != nil {
		t.Fatal(err)
	}

	emu.OnButtonEvent(emulate.PrimaryButton, true)
	if err := store.Change(EmulationAtoms().Enabled, Bool(false)); err != nil {
		t.Fatal(err)
	}
	events := poster.Events()
	if len(events) != 1 || events[0].Button != 1 || !events[0].Pressed {
		t.Errorf("events: got %+v, want a single press of button 1", events)
	}
}

func TestValueItems(t *testing.T) {
	v, err := Ints(16, 1, -2, 300)
	if err != nil {
		t.Fatal(err)
	}
	items, err := v.Items()
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{1, -2, 300}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d: got %d, want %d", i, items[i], want[i])
		}
	}
	if _, err := v.Int(3); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := Ints(24, 1); !errors.Is(err, ErrBadValue) {
		t.Errorf("Ints(24): got %v, want ErrBadValue", err)
	}
}
