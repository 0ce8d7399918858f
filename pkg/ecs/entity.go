package ecs

import (
	"fmt"
	"iter"

	"github.com/rotisserie/eris"
)

// Signature has one bit per registered store, set while the entity holds that
// component.
type Signature uint64

// Has reports whether every bit of other is set in s.
func (s Signature) Has(other Signature) bool {
	return s&other == other
}

// Ref is an (id, generation) handle. It goes stale once the id is destroyed,
// even if the id is later reused.
type Ref struct {
	ID  EntityID
	Gen uint32
}

func (r Ref) String() string {
	return fmt.Sprintf("Entity(%d:%d)", r.ID, r.Gen)
}

type registeredStore struct {
	bit   Signature
	store Store
}

// EntityManager owns entity ids and composes the component stores registered
// with it. Stores must be registered before entities using them are created.
type EntityManager struct {
	alive       []bool
	generations []uint32
	signatures  []Signature
	stores      []registeredStore

	live       int
	lowestFree int
}

// NewEntityManager creates a manager for ids in [0, capacity).
func NewEntityManager(capacity int) *EntityManager {
	if capacity < 0 {
		capacity = 0
	}
	return &EntityManager{
		alive:       make([]bool, capacity),
		generations: make([]uint32, capacity),
		signatures:  make([]Signature, capacity),
	}
}

// Register adds store to the set cleared on Destroy and ResetEntityComponents
// and returns the signature bit assigned to it. The store is resized to the
// manager's capacity.
func (m *EntityManager) Register(store Store) (Signature, error) {
	if len(m.stores) >= 64 {
		return 0, ErrTooManyStores
	}

	bit := Signature(1) << len(m.stores)
	if store.Cap() != len(m.alive) {
		store.Resize(len(m.alive))
	}
	if o, ok := store.(observable); ok {
		o.observe(func(id EntityID, present bool) {
			if int(id) >= len(m.signatures) {
				return
			}
			if present {
				m.signatures[id] |= bit
			} else {
				m.signatures[id] &^= bit
			}
		})
	}

	m.stores = append(m.stores, registeredStore{bit: bit, store: store})
	return bit, nil
}

// Capacity returns the number of addressable ids.
func (m *EntityManager) Capacity() int {
	return len(m.alive)
}

// Live returns the number of live entities.
func (m *EntityManager) Live() int {
	return m.live
}

// Create returns the lowest id not currently live.
func (m *EntityManager) Create() (EntityID, error) {
	for i := m.lowestFree; i < len(m.alive); i++ {
		if m.alive[i] {
			continue
		}
		m.markAlive(EntityID(i))
		m.lowestFree = i + 1
		return EntityID(i), nil
	}
	m.lowestFree = len(m.alive)
	return 0, eris.Wrapf(ErrCapacityExhausted, "capacity %d", len(m.alive))
}

// CreateAt marks a specific id live. Used by mirrors that receive ids from an
// authority instead of allocating them.
func (m *EntityManager) CreateAt(id EntityID) error {
	if int(id) >= len(m.alive) {
		return eris.Wrapf(ErrOutOfRange, "create entity %d with capacity %d", id, len(m.alive))
	}
	if m.alive[id] {
		return eris.Wrapf(ErrAlreadyAlive, "entity %d", id)
	}
	m.markAlive(id)
	return nil
}

func (m *EntityManager) markAlive(id EntityID) {
	m.alive[id] = true
	m.live++
}

// Destroy erases id from every registered store, in registration order, and
// frees the id. Destroying a free id is a no-op.
func (m *EntityManager) Destroy(id EntityID) {
	if !m.Alive(id) {
		return
	}

	m.eraseAll(id)

	m.alive[id] = false
	m.generations[id]++
	m.live--
	if int(id) < m.lowestFree {
		m.lowestFree = int(id)
	}
}

// ResetEntityComponents clears all component data of id but keeps the id and
// its generation. Used when an avatar respawns with the same identity.
func (m *EntityManager) ResetEntityComponents(id EntityID) {
	if int(id) >= len(m.alive) {
		return
	}
	m.eraseAll(id)
}

func (m *EntityManager) eraseAll(id EntityID) {
	for _, rs := range m.stores {
		rs.store.Erase(id)
	}
	m.signatures[id] = 0
}

// Alive reports whether id is live.
func (m *EntityManager) Alive(id EntityID) bool {
	return int(id) < len(m.alive) && m.alive[id]
}

// Signature returns the component mask of id.
func (m *EntityManager) Signature(id EntityID) Signature {
	if int(id) >= len(m.signatures) {
		return 0
	}
	return m.signatures[id]
}

// Ref returns a generational handle to a live id.
func (m *EntityManager) Ref(id EntityID) (Ref, bool) {
	if !m.Alive(id) {
		return Ref{}, false
	}
	return Ref{ID: id, Gen: m.generations[id]}, true
}

// Resolve validates ref against the current generation of its id.
func (m *EntityManager) Resolve(ref Ref) (EntityID, error) {
	if !m.Alive(ref.ID) || m.generations[ref.ID] != ref.Gen {
		return 0, eris.Wrapf(ErrStaleRef, "%s", ref)
	}
	return ref.ID, nil
}

// Entities iterates live ids in ascending order.
func (m *EntityManager) Entities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for i, ok := range m.alive {
			if !ok {
				continue
			}
			if !yield(EntityID(i)) {
				return
			}
		}
	}
}

// Query iterates live ids whose signature contains mask.
func (m *EntityManager) Query(mask Signature) iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for i, ok := range m.alive {
			if !ok || !m.signatures[i].Has(mask) {
				continue
			}
			if !yield(EntityID(i)) {
				return
			}
		}
	}
}

// Resize grows or shrinks the id space and every registered store. Live
// entities at or beyond a smaller capacity are destroyed first.
func (m *EntityManager) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	for i := capacity; i < len(m.alive); i++ {
		m.Destroy(EntityID(i))
	}

	alive := make([]bool, capacity)
	generations := make([]uint32, capacity)
	signatures := make([]Signature, capacity)
	copy(alive, m.alive)
	copy(generations, m.generations)
	copy(signatures, m.signatures)
	m.alive, m.generations, m.signatures = alive, generations, signatures

	for _, rs := range m.stores {
		rs.store.Resize(capacity)
	}
	if m.lowestFree > capacity {
		m.lowestFree = capacity
	}
}
