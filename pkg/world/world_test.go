package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
)

func newWorld(t *testing.T, capacity int) *World {
	t.Helper()
	w, err := New(capacity)
	require.NoError(t, err)
	return w
}

func TestMasksAreDistinct(t *testing.T) {
	w := newWorld(t, 4)
	masks := []ecs.Signature{
		w.Masks.Position, w.Masks.Velocity, w.Masks.Kind, w.Masks.Collider, w.Masks.Health,
		w.Masks.Player, w.Masks.Weapon, w.Masks.Projectile, w.Masks.Enemy, w.Masks.State,
	}
	var all ecs.Signature
	for _, m := range masks {
		assert.NotZero(t, m)
		assert.Zero(t, all&m)
		all |= m
	}
}

func TestDestroyClearsEveryStore(t *testing.T) {
	w := newWorld(t, 4)
	id, err := w.Entities.Create()
	require.NoError(t, err)

	require.NoError(t, w.Positions.Set(id, Position{1, 2}))
	require.NoError(t, w.Players.Set(id, Player{Name: "p"}))
	require.NoError(t, w.States.Set(id, State{Flags: protocol.StateFiring}))
	assert.True(t, w.Entities.Signature(id).Has(w.Masks.Position|w.Masks.Player|w.Masks.State))

	w.Entities.Destroy(id)
	assert.False(t, w.Positions.Has(id))
	assert.False(t, w.Players.Has(id))
	assert.False(t, w.States.Has(id))
	assert.Zero(t, w.Entities.Signature(id))
}

func TestDescribe(t *testing.T) {
	w := newWorld(t, 4)
	id, _ := w.Entities.Create()
	w.Kinds.Set(id, protocol.KindEnemy)
	w.Positions.Set(id, Position{700, 100})
	w.Velocities.Set(id, Velocity{-80, 0})
	w.Healths.Set(id, Health{Current: 2, Max: 2})
	w.Enemies.Set(id, Enemy{Bounty: 100})

	d, ok := w.Describe(id)
	require.True(t, ok)
	assert.Equal(t, protocol.EntityDescriptor{
		ID: uint32(id), Kind: protocol.KindEnemy, X: 700, Y: 100, VX: -80, Health: 2, Flags: protocol.StateHostile,
	}, d)

	bare, _ := w.Entities.Create()
	_, ok = w.Describe(bare)
	assert.False(t, ok)
}

func TestAppendDescriptorsFilters(t *testing.T) {
	w := newWorld(t, 8)
	for i := 0; i < 3; i++ {
		id, _ := w.Entities.Create()
		w.Kinds.Set(id, protocol.KindPlayer)
		w.Positions.Set(id, Position{float32(i), 0})
	}

	all := w.AppendDescriptors(nil, nil)
	require.Len(t, all, 3)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{all[0].ID, all[1].ID, all[2].ID})

	odd := w.AppendDescriptors(nil, func(id ecs.EntityID) bool { return id%2 == 1 })
	require.Len(t, odd, 1)
	assert.Equal(t, uint32(1), odd[0].ID)
}

func TestApplySnapshotMirrors(t *testing.T) {
	w := newWorld(t, 8)

	require.NoError(t, w.ApplySnapshot(protocol.Snapshot{Tick: 1, Entities: []protocol.EntityDescriptor{
		{ID: 2, Kind: protocol.KindPlayer, X: 10, Y: 20, Health: 5},
		{ID: 5, Kind: protocol.KindEnemy, X: 700, Y: 50, Health: 2},
	}}))
	assert.Equal(t, 2, w.Entities.Live())
	pos, ok := w.Positions.Value(2)
	require.True(t, ok)
	assert.Equal(t, Position{10, 20}, pos)

	// entity 5 is gone and id 2 was reused for a projectile
	require.NoError(t, w.ApplySnapshot(protocol.Snapshot{Tick: 2, Entities: []protocol.EntityDescriptor{
		{ID: 2, Kind: protocol.KindProjectile, X: 11, Y: 20},
	}}))
	assert.Equal(t, 1, w.Entities.Live())
	assert.False(t, w.Entities.Alive(5))
	assert.False(t, w.Positions.Has(5))
	kind, _ := w.Kinds.Value(2)
	assert.Equal(t, protocol.KindProjectile, kind)
}

func TestApplySnapshotOutOfRange(t *testing.T) {
	w := newWorld(t, 2)

	err := w.ApplySnapshot(protocol.Snapshot{Entities: []protocol.EntityDescriptor{
		{ID: 1, Kind: protocol.KindPlayer},
		{ID: 9, Kind: protocol.KindEnemy},
	}})
	assert.True(t, errors.Is(err, ecs.ErrOutOfRange))
	assert.True(t, w.Entities.Alive(1))
}

func TestAppendDescriptorsReportsTruncation(t *testing.T) {
	w := newWorld(t, protocol.MaxSnapshotEntities+5)
	for i := 0; i < protocol.MaxSnapshotEntities+5; i++ {
		id, err := w.Entities.Create()
		require.NoError(t, err)
		require.NoError(t, w.Kinds.Set(id, protocol.KindEnemy))
		require.NoError(t, w.Positions.Set(id, Position{}))
	}

	descs, dropped := w.AppendDescriptorsCapped(nil, nil)
	assert.Len(t, descs, protocol.MaxSnapshotEntities)
	assert.Equal(t, 5, dropped)
	assert.Equal(t, uint32(protocol.MaxSnapshotEntities-1), descs[len(descs)-1].ID)

	descs, dropped = w.AppendDescriptorsCapped(nil, func(id ecs.EntityID) bool { return id%2 == 0 })
	assert.Len(t, descs, (protocol.MaxSnapshotEntities+5+1)/2)
	assert.Zero(t, dropped)
}

func TestApplySnapshotReportsStoreErrors(t *testing.T) {
	w := newWorld(t, 4)
	w.States.Resize(2)

	err := w.ApplySnapshot(protocol.Snapshot{Entities: []protocol.EntityDescriptor{
		{ID: 1, Kind: protocol.KindPlayer, X: 1},
		{ID: 3, Kind: protocol.KindEnemy, X: 3},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ecs.ErrOutOfRange)

	// the rest of the snapshot still lands
	pos, ok := w.Positions.Value(3)
	require.True(t, ok)
	assert.Equal(t, Position{X: 3}, pos)
	assert.True(t, w.States.Has(1))
	assert.False(t, w.States.Has(3))
}
