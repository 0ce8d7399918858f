// Package ecs provides the entity-component foundation shared by the server
// simulation and the client mirror: fixed-capacity sparse component stores and
// an entity manager that owns id lifetime.
//
// Nothing in this package is safe for concurrent use. The tick goroutine owns
// the manager and every store registered with it.
package ecs

import (
	"iter"

	"github.com/rotisserie/eris"
)

// EntityID indexes every component store.
type EntityID uint32

// Store is the type-erased view the EntityManager needs of a component store.
type Store interface {
	Erase(id EntityID)
	Resize(capacity int)
	Cap() int
}

// SparseArray maps an EntityID to at most one T. Slot i is occupied iff
// entity i currently has the component.
type SparseArray[T any] struct {
	data     []T
	occupied []bool
	count    int

	// onChange is installed by EntityManager.Register to keep signatures in sync.
	onChange func(id EntityID, present bool)
}

// NewSparseArray creates a store holding up to capacity entities.
func NewSparseArray[T any](capacity int) *SparseArray[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &SparseArray[T]{
		data:     make([]T, capacity),
		occupied: make([]bool, capacity),
	}
}

// Cap returns the number of addressable slots.
func (s *SparseArray[T]) Cap() int {
	return len(s.data)
}

// Len returns the number of occupied slots.
func (s *SparseArray[T]) Len() int {
	return s.count
}

// Set creates or overwrites the slot for id.
func (s *SparseArray[T]) Set(id EntityID, v T) error {
	if int(id) >= len(s.data) {
		return eris.Wrapf(ErrOutOfRange, "set entity %d on store of capacity %d", id, len(s.data))
	}
	s.data[id] = v
	if !s.occupied[id] {
		s.occupied[id] = true
		s.count++
		if s.onChange != nil {
			s.onChange(id, true)
		}
	}
	return nil
}

// Get returns a pointer to the component of id. The pointer stays valid until
// the slot is erased or the store is resized.
func (s *SparseArray[T]) Get(id EntityID) (*T, bool) {
	if !s.Has(id) {
		return nil, false
	}
	return &s.data[id], true
}

// Value returns a copy of the component of id.
func (s *SparseArray[T]) Value(id EntityID) (T, bool) {
	var zero T
	if !s.Has(id) {
		return zero, false
	}
	return s.data[id], true
}

// Has reports whether id holds a component. Out of range ids never do.
func (s *SparseArray[T]) Has(id EntityID) bool {
	return int(id) < len(s.occupied) && s.occupied[id]
}

// Erase clears the slot of id. Erasing an empty or out of range slot is a no-op.
func (s *SparseArray[T]) Erase(id EntityID) {
	if !s.Has(id) {
		return
	}
	var zero T
	s.data[id] = zero
	s.occupied[id] = false
	s.count--
	if s.onChange != nil {
		s.onChange(id, false)
	}
}

// Resize reallocates the store to capacity, keeping slots by index. Slots at or
// beyond a smaller capacity are dropped.
func (s *SparseArray[T]) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	if capacity == len(s.data) {
		return
	}

	data := make([]T, capacity)
	occupied := make([]bool, capacity)
	copy(data, s.data)
	copy(occupied, s.occupied)

	for i := capacity; i < len(s.occupied); i++ {
		if s.occupied[i] {
			s.count--
			if s.onChange != nil {
				s.onChange(EntityID(i), false)
			}
		}
	}

	s.data = data
	s.occupied = occupied
}

// All iterates occupied slots in ascending id order.
func (s *SparseArray[T]) All() iter.Seq2[EntityID, *T] {
	return func(yield func(EntityID, *T) bool) {
		for i := range s.data {
			if !s.occupied[i] {
				continue
			}
			if !yield(EntityID(i), &s.data[i]) {
				return
			}
		}
	}
}

// Clear erases every slot.
func (s *SparseArray[T]) Clear() {
	for i := range s.occupied {
		s.Erase(EntityID(i))
	}
}
