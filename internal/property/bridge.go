package property

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/holdclick/internal/emulate"
)

// Target is the configuration the bridge reads and writes.
// *emulate.Emulator satisfies it.
type Target interface {
	Config() emulate.Config
	SetEnabled(bool)
	SetTimeout(time.Duration)
	SetButton(emulate.Button)
	SetThreshold(int)
}

// Atoms holds the handles of the four emulation properties.
type Atoms struct {
	Enabled   Atom
	Timeout   Atom
	Button    Atom
	Threshold Atom
}

var (
	emuAtoms     Atoms
	emuAtomsOnce sync.Once
)

// EmulationAtoms returns the emulation property atoms, interning them on
// first use.
func EmulationAtoms() Atoms {
	emuAtomsOnce.Do(func() {
		emuAtoms = Atoms{
			Enabled:   Intern(NameEnabled),
			Timeout:   Intern(NameTimeout),
			Button:    Intern(NameButton),
			Threshold: Intern(NameThreshold),
		}
	})
	return emuAtoms
}

// Bridge validates writes to the emulation properties and applies them
// to a Target.
type Bridge struct {
	target Target
	atoms  Atoms
}

// Attach publishes target's current configuration as four non-deletable
// properties on store and registers a Bridge to handle writes to them.
func Attach(store *Store, target Target) (*Bridge, error) {
	b := &Bridge{target: target, atoms: EmulationAtoms()}
	cfg := target.Config()

	initial := []struct {
		atom  Atom
		value Value
	}{
		{b.atoms.Enabled, Bool(cfg.Enabled)},
		{b.atoms.Timeout, Int32(int32(cfg.Timeout / time.Millisecond))},
		{b.atoms.Button, Int8(uint8(cfg.Button))},
		{b.atoms.Threshold, Int32(int32(cfg.Threshold))},
	}
	for _, p := range initial {
		if err := store.Change(p.atom, p.value); err != nil {
			return nil, fmt.Errorf("create property %q: %w", Name(p.atom), err)
		}
		if err := store.SetDeletable(p.atom, false); err != nil {
			return nil, fmt.Errorf("protect property %q: %w", Name(p.atom), err)
		}
	}
	store.Register(b)
	return b, nil
}

// SetProperty implements Handler.
func (b *Bridge) SetProperty(atom Atom, v Value, checkOnly bool) error {
	switch atom {
	case b.atoms.Enabled:
		n, err := single(v, 8)
		if err != nil {
			return err
		}
		if !checkOnly {
			b.target.SetEnabled(n != 0)
		}

	case b.atoms.Timeout:
		n, err := single(v, 32)
		if err != nil {
			return err
		}
		ms := int32(n)
		if ms < 0 {
			return fmt.Errorf("%w: negative timeout %d", ErrBadValue, ms)
		}
		if !checkOnly {
			b.target.SetTimeout(time.Duration(ms) * time.Millisecond)
		}

	case b.atoms.Button:
		n, err := single(v, 8)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: button 0", ErrBadValue)
		}
		if !checkOnly {
			b.target.SetButton(emulate.Button(n))
		}

	case b.atoms.Threshold:
		n, err := single(v, 32)
		if err != nil {
			return err
		}
		t := int32(n)
		if t < 0 {
			return fmt.Errorf("%w: negative threshold %d", ErrBadValue, t)
		}
		if !checkOnly {
			b.target.SetThreshold(int(t))
		}
	}
	return nil
}

// single checks that v is one integer item of the given format and
// returns it unsigned.
func single(v Value, format int) (uint64, error) {
	if !v.Is(TypeInteger, format, 1) {
		return 0, fmt.Errorf("%w: want 1 item of %d-bit INTEGER, got %d of %d-bit %q",
			ErrBadValue, format, v.Size, v.Format, Name(v.Type))
	}
	return v.Uint(0)
}
