package property

import "sync"

// Property names understood by the emulation bridge.
const (
	NameEnabled   = "Evdev Third Button Emulation"
	NameTimeout   = "Evdev Third Button Emulation Timeout"
	NameButton    = "Evdev Third Button Emulation Button"
	NameThreshold = "Evdev Third Button Emulation Threshold"
)

// registry interns property names to process-wide atoms. Atoms are never
// released.
type registry struct {
	mu     sync.Mutex
	byName map[string]Atom
	names  []string
}

var (
	atoms     *registry
	atomsOnce sync.Once
)

func global() *registry {
	atomsOnce.Do(func() {
		atoms = &registry{byName: make(map[string]Atom)}
		// Atoms below this are reserved for built-in types.
		atoms.names = make([]string, TypeInteger+1)
		atoms.names[TypeInteger] = "INTEGER"
		atoms.byName["INTEGER"] = TypeInteger
	})
	return atoms
}

// Intern returns the atom for name, creating it on first use.
func Intern(name string) Atom {
	r := global()
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byName[name]; ok {
		return a
	}
	a := Atom(len(r.names))
	r.names = append(r.names, name)
	r.byName[name] = a
	return a
}

// Lookup returns the atom for name without creating it.
func Lookup(name string) (Atom, bool) {
	r := global()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byName[name]
	return a, ok
}

// Name returns the name an atom was interned from, or "" for unknown atoms.
func Name(a Atom) string {
	r := global()
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(a) >= len(r.names) {
		return ""
	}
	return r.names[a]
}
