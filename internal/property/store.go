package property

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrBadValue is returned when a value has the wrong type, format or
	// size for the property it is written to.
	ErrBadValue = errors.New("bad value")
	// ErrUnknownProperty is returned for reads and deletes of a property
	// the store does not hold.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrNotDeletable is returned when deleting a protected property.
	ErrNotDeletable = errors.New("property not deletable")
)

// Handler is consulted on every write to a store it is registered with.
// With checkOnly set it must validate without applying. Handlers ignore
// atoms they do not own by returning nil.
type Handler interface {
	SetProperty(atom Atom, v Value, checkOnly bool) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(atom Atom, v Value, checkOnly bool) error

// SetProperty calls f.
func (f HandlerFunc) SetProperty(atom Atom, v Value, checkOnly bool) error {
	return f(atom, v, checkOnly)
}

type entry struct {
	value     Value
	deletable bool
}

// Store holds the properties of one device. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	props    map[Atom]*entry
	handlers []Handler
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{props: make(map[Atom]*entry)}
}

// Register adds a handler. Handlers run in registration order.
func (s *Store) Register(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Change writes v to atom, creating the property if needed. Every handler
// checks the value first; if any rejects it nothing is applied. Otherwise
// every handler applies it and the store keeps a copy.
func (s *Store) Change(atom Atom, v Value) error {
	if err := wellFormed(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.run(atom, v, true); err != nil {
		return err
	}
	if err := s.run(atom, v, false); err != nil {
		return err
	}
	if e, ok := s.props[atom]; ok {
		e.value = v.clone()
	} else {
		s.props[atom] = &entry{value: v.clone(), deletable: true}
	}
	return nil
}

// Check runs the handlers' validation for a write of v to atom without
// applying anything.
func (s *Store) Check(atom Atom, v Value) error {
	if err := wellFormed(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(atom, v, true)
}

// Get returns a copy of the stored value of atom.
func (s *Store) Get(atom Atom) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.props[atom]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownProperty, Name(atom))
	}
	return e.value.clone(), nil
}

// SetDeletable marks whether atom may be deleted.
func (s *Store) SetDeletable(atom Atom, deletable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.props[atom]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, Name(atom))
	}
	e.deletable = deletable
	return nil
}

// Delete removes atom unless it is protected.
func (s *Store) Delete(atom Atom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.props[atom]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, Name(atom))
	}
	if !e.deletable {
		return fmt.Errorf("%w: %q", ErrNotDeletable, Name(atom))
	}
	delete(s.props, atom)
	return nil
}

// List returns the atoms held by the store, ordered by name.
func (s *Store) List() []Atom {
	s.mu.Lock()
	out := make([]Atom, 0, len(s.props))
	for a := range s.props {
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return Name(out[i]) < Name(out[j]) })
	return out
}

// run calls every handler. Caller holds s.mu.
func (s *Store) run(atom Atom, v Value, checkOnly bool) error {
	for _, h := range s.handlers {
		if err := h.SetProperty(atom, v, checkOnly); err != nil {
			return err
		}
	}
	return nil
}

func wellFormed(v Value) error {
	width, err := itemWidth(v.Format)
	if err != nil {
		return err
	}
	if v.Size < 0 || len(v.Data) != v.Size*width {
		return fmt.Errorf("%w: %d bytes for %d items of %d bits", ErrBadValue, len(v.Data), v.Size, v.Format)
	}
	return nil
}
