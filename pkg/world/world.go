// Package world composes the fixed set of game component kinds into one
// entity manager and converts between world state and snapshot descriptors.
package world

import (
	"errors"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"

	"github.com/rotisserie/eris"
)

// Masks holds the signature bit of every component kind.
type Masks struct {
	Position   ecs.Signature
	Velocity   ecs.Signature
	Kind       ecs.Signature
	Collider   ecs.Signature
	Health     ecs.Signature
	Player     ecs.Signature
	Weapon     ecs.Signature
	Projectile ecs.Signature
	Enemy      ecs.Signature
	State      ecs.Signature
}

// World owns one store per component kind. Stores are registered in field
// order, which is also the order Destroy erases them in.
type World struct {
	Entities *ecs.EntityManager

	Positions   *ecs.SparseArray[Position]
	Velocities  *ecs.SparseArray[Velocity]
	Kinds       *ecs.SparseArray[protocol.EntityKind]
	Colliders   *ecs.SparseArray[Collider]
	Healths     *ecs.SparseArray[Health]
	Players     *ecs.SparseArray[Player]
	Weapons     *ecs.SparseArray[Weapon]
	Projectiles *ecs.SparseArray[Projectile]
	Enemies     *ecs.SparseArray[Enemy]
	States      *ecs.SparseArray[State]

	Masks Masks
}

func New(capacity int) (*World, error) {
	w := &World{
		Entities:    ecs.NewEntityManager(capacity),
		Positions:   ecs.NewSparseArray[Position](capacity),
		Velocities:  ecs.NewSparseArray[Velocity](capacity),
		Kinds:       ecs.NewSparseArray[protocol.EntityKind](capacity),
		Colliders:   ecs.NewSparseArray[Collider](capacity),
		Healths:     ecs.NewSparseArray[Health](capacity),
		Players:     ecs.NewSparseArray[Player](capacity),
		Weapons:     ecs.NewSparseArray[Weapon](capacity),
		Projectiles: ecs.NewSparseArray[Projectile](capacity),
		Enemies:     ecs.NewSparseArray[Enemy](capacity),
		States:      ecs.NewSparseArray[State](capacity),
	}

	registrations := []struct {
		store ecs.Store
		bit   *ecs.Signature
	}{
		{w.Positions, &w.Masks.Position},
		{w.Velocities, &w.Masks.Velocity},
		{w.Kinds, &w.Masks.Kind},
		{w.Colliders, &w.Masks.Collider},
		{w.Healths, &w.Masks.Health},
		{w.Players, &w.Masks.Player},
		{w.Weapons, &w.Masks.Weapon},
		{w.Projectiles, &w.Masks.Projectile},
		{w.Enemies, &w.Masks.Enemy},
		{w.States, &w.Masks.State},
	}
	for _, r := range registrations {
		bit, err := w.Entities.Register(r.store)
		if err != nil {
			return nil, eris.Wrap(err, "register component store")
		}
		*r.bit = bit
	}
	return w, nil
}

// Capacity returns the maximum number of concurrent entities.
func (w *World) Capacity() int {
	return w.Entities.Capacity()
}

// Describe builds the wire descriptor of id. Entities without a kind or a
// position are not visible to clients.
func (w *World) Describe(id ecs.EntityID) (protocol.EntityDescriptor, bool) {
	kind, ok := w.Kinds.Value(id)
	if !ok || kind == protocol.KindNone {
		return protocol.EntityDescriptor{}, false
	}
	pos, ok := w.Positions.Value(id)
	if !ok {
		return protocol.EntityDescriptor{}, false
	}

	d := protocol.EntityDescriptor{
		ID:   uint32(id),
		Kind: kind,
		X:    pos.X,
		Y:    pos.Y,
	}
	if vel, ok := w.Velocities.Value(id); ok {
		d.VX, d.VY = vel.X, vel.Y
	}
	if h, ok := w.Healths.Value(id); ok {
		d.Health = h.Current
	}
	if s, ok := w.States.Value(id); ok {
		d.Flags = s.Flags
	}
	if p, ok := w.Projectiles.Value(id); ok && p.Hostile {
		d.Flags |= protocol.StateHostile
	}
	if w.Enemies.Has(id) {
		d.Flags |= protocol.StateHostile
	}
	return d, true
}

// AppendDescriptors appends the descriptors of live visible entities in
// ascending id order. include may be nil.
func (w *World) AppendDescriptors(dst []protocol.EntityDescriptor, include func(ecs.EntityID) bool) []protocol.EntityDescriptor {
	dst, _ = w.AppendDescriptorsCapped(dst, include)
	return dst
}

// AppendDescriptorsCapped is AppendDescriptors that also reports how many
// visible entities did not fit under protocol.MaxSnapshotEntities.
func (w *World) AppendDescriptorsCapped(dst []protocol.EntityDescriptor, include func(ecs.EntityID) bool) ([]protocol.EntityDescriptor, int) {
	var dropped int
	for id := range w.Entities.Entities() {
		if include != nil && !include(id) {
			continue
		}
		d, ok := w.Describe(id)
		if !ok {
			continue
		}
		if len(dst) >= protocol.MaxSnapshotEntities {
			dropped++
			continue
		}
		dst = append(dst, d)
	}
	return dst, dropped
}

// ApplySnapshot overwrites the world with the entities of snap. Entities
// missing from snap are destroyed; an id whose kind changed is reset first,
// since the authority reused it. Descriptors outside capacity are skipped and
// reported as ecs.ErrOutOfRange after the rest has been applied, together with
// any component that could not be stored.
func (w *World) ApplySnapshot(snap protocol.Snapshot) error {
	present := make([]bool, w.Capacity())
	var skipped int
	var errs []error

	for _, d := range snap.Entities {
		id := ecs.EntityID(d.ID)
		if int(id) >= len(present) {
			skipped++
			continue
		}
		present[id] = true

		if !w.Entities.Alive(id) {
			if err := w.Entities.CreateAt(id); err != nil {
				return err
			}
		} else if kind, _ := w.Kinds.Value(id); kind != d.Kind {
			w.Entities.ResetEntityComponents(id)
		}

		if err := errors.Join(
			w.Kinds.Set(id, d.Kind),
			w.Positions.Set(id, Position{X: d.X, Y: d.Y}),
			w.Velocities.Set(id, Velocity{X: d.VX, Y: d.VY}),
			w.Healths.Set(id, Health{Current: d.Health}),
			w.States.Set(id, State{Flags: d.Flags}),
		); err != nil {
			errs = append(errs, eris.Wrapf(err, "apply entity %d", id))
		}
	}

	for id := range w.Entities.Entities() {
		if !present[id] {
			w.Entities.Destroy(id)
		}
	}

	if skipped > 0 {
		errs = append(errs, eris.Wrapf(ecs.ErrOutOfRange, "%d descriptors beyond capacity %d", skipped, len(present)))
	}
	return errors.Join(errs...)
}
