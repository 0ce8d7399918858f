package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
	"rtype/pkg/world"
)

const frame = 16 * time.Millisecond

// newSim returns a simulation with enemy spawning pushed out of reach.
func newSim(t *testing.T) *Simulation {
	t.Helper()
	w, err := world.New(64)
	require.NoError(t, err)

	rules := DefaultRules()
	rules.EnemySpawnInterval = time.Hour
	return New(w, rules, nil)
}

func addEnemy(t *testing.T, s *Simulation, pos world.Position) ecs.EntityID {
	t.Helper()
	require.True(t, s.spawnEnemy())
	var last ecs.EntityID
	for id := range s.World.Entities.Query(s.World.Masks.Enemy) {
		last = id
	}
	s.World.Positions.Set(last, pos)
	s.World.Velocities.Set(last, world.Velocity{})
	return last
}

func TestStagesRunInOrder(t *testing.T) {
	s := newSim(t)
	var order []string
	s.RegisterSystem(recorder{baseSystem{"late", 100}, &order})
	s.RegisterSystem(recorder{baseSystem{"early", -5}, &order})
	s.RegisterSystem(recorder{baseSystem{"late2", 100}, &order})

	s.Step(frame)
	assert.Equal(t, []string{"early", "late", "late2"}, order)
}

type recorder struct {
	baseSystem
	order *[]string
}

func (r recorder) Update(*Simulation, time.Duration) {
	*r.order = append(*r.order, r.name)
}

func TestPlayerMovesAndIsClamped(t *testing.T) {
	s := newSim(t)
	id, err := s.SpawnPlayer(1, "alice", time.Now())
	require.NoError(t, err)

	start, _ := s.World.Positions.Value(id)
	require.NoError(t, s.SetInput(id, protocol.InputRight))
	s.Step(500 * time.Millisecond)

	pos, _ := s.World.Positions.Value(id)
	assert.InDelta(t, start.X+100, pos.X, 0.01)
	assert.InDelta(t, start.Y, pos.Y, 0.01)

	require.NoError(t, s.SetInput(id, protocol.InputUp|protocol.InputLeft))
	s.Step(10 * time.Second)
	pos, _ = s.World.Positions.Value(id)
	assert.Equal(t, world.Position{X: 0, Y: 0}, pos)

	require.NoError(t, s.SetInput(id, protocol.InputDown|protocol.InputRight))
	s.Step(10 * time.Second)
	pos, _ = s.World.Positions.Value(id)
	assert.Equal(t, world.Position{X: world.MaxPlayerX, Y: world.MaxPlayerY}, pos)
}

func TestSetInputRequiresPlayer(t *testing.T) {
	s := newSim(t)
	assert.ErrorIs(t, s.SetInput(3, protocol.InputFire), ErrNotPlayer)
}

func TestFireRespectsCooldown(t *testing.T) {
	s := newSim(t)
	id, err := s.SpawnPlayer(1, "alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SetInput(id, protocol.InputFire))

	s.Step(frame)
	assert.Equal(t, 1, s.World.Projectiles.Len())
	st, _ := s.World.States.Value(id)
	assert.NotZero(t, st.Flags&protocol.StateFiring)

	s.Step(frame)
	assert.Equal(t, 1, s.World.Projectiles.Len())

	for i := 0; i < 12; i++ {
		s.Step(frame)
	}
	assert.Equal(t, 2, s.World.Projectiles.Len())
}

func TestProjectileExpires(t *testing.T) {
	s := newSim(t)
	id, _ := s.SpawnPlayer(1, "alice", time.Now())
	s.World.Positions.Set(id, world.Position{X: 0, Y: 300})
	require.NoError(t, s.SetInput(id, protocol.InputFire))
	s.Step(frame)
	require.NoError(t, s.SetInput(id, 0))
	require.Equal(t, 1, s.World.Projectiles.Len())

	s.Step(4 * time.Second)
	assert.Zero(t, s.World.Projectiles.Len())
}

func TestKillAwardsOwner(t *testing.T) {
	s := newSim(t)
	pid, _ := s.SpawnPlayer(1, "alice", time.Now())
	s.World.Positions.Set(pid, world.Position{X: 100, Y: 300})
	enemy := addEnemy(t, s, world.Position{X: 160, Y: 290})

	// two hits, the cooldown between them is 200ms
	require.NoError(t, s.SetInput(pid, protocol.InputFire))
	for i := 0; i < 40 && s.World.Entities.Alive(enemy); i++ {
		s.Step(frame)
	}

	assert.False(t, s.World.Entities.Alive(enemy))
	p, _ := s.World.Players.Value(pid)
	assert.Equal(t, uint32(100), p.Score)
	assert.Equal(t, uint32(1), p.Kills)
}

func TestPlayerRespawnKeepsIdentity(t *testing.T) {
	s := newSim(t)
	pid, _ := s.SpawnPlayer(1, "alice", time.Now())
	ref, ok := s.World.Entities.Ref(pid)
	require.True(t, ok)

	p, _ := s.World.Players.Get(pid)
	p.Score = 300
	s.World.Positions.Set(pid, world.Position{X: 400, Y: 400})
	h, _ := s.World.Healths.Get(pid)
	h.Current = 1

	s.damage(pid, 1, ecs.Ref{})

	got, err := s.World.Entities.Resolve(ref)
	require.NoError(t, err)
	assert.Equal(t, pid, got)

	pos, _ := s.World.Positions.Value(pid)
	assert.Equal(t, p.Spawn, pos)
	health, _ := s.World.Healths.Value(pid)
	assert.Equal(t, s.Rules.PlayerHealth, health.Current)
	player, _ := s.World.Players.Value(pid)
	assert.Equal(t, uint32(300), player.Score)

	st, _ := s.World.States.Value(pid)
	assert.NotZero(t, st.Flags&protocol.StateRespawning)
	assert.True(t, invulnerable(s.World, pid))

	s.Step(s.Rules.RespawnTime)
	st, _ = s.World.States.Value(pid)
	assert.Zero(t, st.Flags&protocol.StateRespawning)
}

func TestEnemySpawnerRespectsMax(t *testing.T) {
	w, err := world.New(256)
	require.NoError(t, err)
	rules := DefaultRules()
	rules.EnemySpeed = 0
	rules.EnemyFireInterval = time.Hour
	s := New(w, rules, nil)

	for i := 0; i < 20; i++ {
		s.Step(rules.EnemySpawnInterval)
	}
	assert.Equal(t, rules.MaxEnemies, s.Enemies())
}

func TestEnemiesShootLeft(t *testing.T) {
	s := newSim(t)
	addEnemy(t, s, world.Position{X: 600, Y: 100})

	s.Step(s.Rules.EnemyFireInterval)
	require.Equal(t, 1, s.World.Projectiles.Len())
	for _, p := range s.World.Projectiles.All() {
		assert.True(t, p.Hostile)
	}
	for id := range s.World.Entities.Query(s.World.Masks.Projectile) {
		vel, _ := s.World.Velocities.Value(id)
		assert.Less(t, vel.X, float32(0))
	}
}

func TestRemovePlayer(t *testing.T) {
	s := newSim(t)
	pid, _ := s.SpawnPlayer(7, "bob", time.Now())

	p, ok := s.RemovePlayer(pid)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Name)
	assert.False(t, s.World.Entities.Alive(pid))

	_, ok = s.RemovePlayer(pid)
	assert.False(t, ok)
}

func TestSpawnFailureLeavesNoHalfBuiltEntity(t *testing.T) {
	s := newSim(t)
	s.World.Players.Resize(0)

	_, err := s.SpawnPlayer(1, "alice", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ecs.ErrOutOfRange)
	assert.Zero(t, s.World.Entities.Live())
	assert.Zero(t, s.World.Positions.Len())

	s.World.Enemies.Resize(0)
	assert.False(t, s.spawnEnemy())
	assert.Zero(t, s.World.Entities.Live())
	assert.Zero(t, s.World.Kinds.Len())
}

func TestFailedProjectileIsDestroyed(t *testing.T) {
	s := newSim(t)
	owner, err := s.SpawnPlayer(1, "alice", time.Now())
	require.NoError(t, err)
	s.World.Projectiles.Resize(0)

	s.spawnProjectile(owner, world.Position{X: 10, Y: 10}, 100, false)
	assert.Equal(t, 1, s.World.Entities.Live())
	assert.Equal(t, 1, s.World.Kinds.Len())
}
