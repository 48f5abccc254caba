package cache

// State is a value that is either present or confirmed absent.
//
// Absence is a first-class result, distinct from a pending Future and from a
// failed fetch. The zero State is absent.
type State[V any] struct {
	value   V
	present bool
}

// Present wraps value as a present state.
func Present[V any](value V) State[V] {
	return State[V]{value: value, present: true}
}

// Absent returns the confirmed-absent state.
func Absent[V any]() State[V] {
	return State[V]{}
}

// StateOf builds a state from a comma-ok pair.
func StateOf[V any](value V, ok bool) State[V] {
	if !ok {
		return Absent[V]()
	}

	return Present(value)
}

// Get returns the wrapped value and whether it is present.
func (s State[V]) Get() (V, bool) {
	return s.value, s.present
}

// IsAbsent reports whether the state is confirmed absent.
func (s State[V]) IsAbsent() bool {
	return !s.present
}
