// Package game is the authoritative simulation advanced by the server tick.
// It reads player intents from the world and moves everything else forward
// by one step.
package game

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
	"rtype/pkg/rlog"
	"rtype/pkg/world"
)

var ErrNotPlayer = eris.New("entity is not a player")

// System is one stage of a simulation step. Systems of a lower stage run
// first; systems of the same stage run in registration order.
type System interface {
	Name() string
	Stage() int
	Update(s *Simulation, dt time.Duration)
}

type Simulation struct {
	World *world.World
	Rules Rules

	systems map[int][]System
	stages  []int

	rng        *rand.Rand
	spawnTimer time.Duration
	logger     rlog.Logger
}

// New creates a simulation over w with the default systems registered.
func New(w *world.World, rules Rules, logger rlog.Logger) *Simulation {
	if logger == nil {
		logger = rlog.Nop()
	}
	s := &Simulation{
		World:      w,
		Rules:      rules,
		systems:    make(map[int][]System),
		rng:        rand.New(rand.NewPCG(rules.Seed, rules.Seed^0x9e3779b97f4a7c15)),
		spawnTimer: rules.EnemySpawnInterval,
		logger:     logger,
	}
	for _, sys := range DefaultSystems() {
		s.RegisterSystem(sys)
	}
	return s
}

func (s *Simulation) RegisterSystem(sys System) {
	inserted := false
	for i, stage := range s.stages {
		if sys.Stage() == stage {
			inserted = true
			break
		}
		if sys.Stage() < stage {
			s.stages = append(s.stages[:i], append([]int{sys.Stage()}, s.stages[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		s.stages = append(s.stages, sys.Stage())
	}
	s.systems[sys.Stage()] = append(s.systems[sys.Stage()], sys)
}

// Step advances the world by dt.
func (s *Simulation) Step(dt time.Duration) {
	for _, stage := range s.stages {
		for _, sys := range s.systems[stage] {
			sys.Update(s, dt)
		}
	}
}

// ============================================================================
// Players
// ============================================================================

// SpawnPlayer creates the avatar of a joining client.
func (s *Simulation) SpawnPlayer(clientID uint32, name string, now time.Time) (ecs.EntityID, error) {
	id, err := s.World.Entities.Create()
	if err != nil {
		return 0, err
	}

	spawn := world.Position{X: 50, Y: 100 + float32((clientID-1)%5)*100}
	err = s.setupPlayer(id, world.Player{
		ClientID: clientID,
		Name:     name,
		Spawn:    spawn,
		JoinedAt: now,
	}, 0)
	if err != nil {
		s.World.Entities.Destroy(id)
		return 0, eris.Wrapf(err, "spawn player %d", clientID)
	}
	return id, nil
}

func (s *Simulation) setupPlayer(id ecs.EntityID, p world.Player, flags protocol.StateFlags) error {
	w := s.World
	state := world.State{Flags: flags}
	if flags&protocol.StateRespawning != 0 {
		state.Timer = s.Rules.RespawnTime
	}
	return errors.Join(
		w.Kinds.Set(id, protocol.KindPlayer),
		w.Positions.Set(id, p.Spawn),
		w.Velocities.Set(id, world.Velocity{}),
		w.Colliders.Set(id, s.Rules.PlayerCollider),
		w.Healths.Set(id, world.Health{Current: s.Rules.PlayerHealth, Max: s.Rules.PlayerHealth}),
		w.Players.Set(id, p),
		w.Weapons.Set(id, world.Weapon{Interval: s.Rules.FireCooldown}),
		w.States.Set(id, state),
	)
}

// SetInput stores the control intents the player acts on during the next
// Step.
func (s *Simulation) SetInput(id ecs.EntityID, flags protocol.InputFlags) error {
	p, ok := s.World.Players.Get(id)
	if !ok {
		return eris.Wrapf(ErrNotPlayer, "entity %d", id)
	}
	p.Input = flags
	return nil
}

// RemovePlayer destroys the avatar and returns its final player record.
func (s *Simulation) RemovePlayer(id ecs.EntityID) (world.Player, bool) {
	p, ok := s.World.Players.Value(id)
	if !ok {
		return world.Player{}, false
	}
	s.World.Entities.Destroy(id)
	return p, true
}

// Respawn resets the avatar in place. The id and its generation survive, so
// references held by the session stay valid.
func (s *Simulation) Respawn(id ecs.EntityID) {
	p, ok := s.World.Players.Value(id)
	if !ok {
		return
	}
	p.Input = 0
	s.World.Entities.ResetEntityComponents(id)
	if err := s.setupPlayer(id, p, protocol.StateRespawning); err != nil {
		s.logger.Error("failed to respawn player", "entity", id, "client", p.ClientID, "error", err)
		return
	}
	s.logger.Debug("player respawned", "entity", id, "client", p.ClientID)
}

// ============================================================================
// Spawning
// ============================================================================

func (s *Simulation) spawnProjectile(owner ecs.EntityID, from world.Position, vx float32, hostile bool) {
	ref, ok := s.World.Entities.Ref(owner)
	if !ok {
		return
	}
	id, err := s.World.Entities.Create()
	if err != nil {
		s.logger.Debug("projectile dropped", "error", err)
		return
	}

	w := s.World
	err = errors.Join(
		w.Kinds.Set(id, protocol.KindProjectile),
		w.Positions.Set(id, from),
		w.Velocities.Set(id, world.Velocity{X: vx}),
		w.Colliders.Set(id, s.Rules.ProjectileCollider),
		w.Projectiles.Set(id, world.Projectile{
			Owner:   ref,
			Hostile: hostile,
			Damage:  s.Rules.ProjectileDamage,
			TTL:     s.Rules.ProjectileTTL,
		}),
	)
	if err != nil {
		w.Entities.Destroy(id)
		s.logger.Error("failed to spawn projectile", "owner", owner, "error", err)
	}
}

func (s *Simulation) spawnEnemy() bool {
	id, err := s.World.Entities.Create()
	if err != nil {
		s.logger.Debug("enemy spawn skipped", "error", err)
		return false
	}

	c := s.Rules.EnemyCollider
	w := s.World
	err = errors.Join(
		w.Kinds.Set(id, protocol.KindEnemy),
		w.Positions.Set(id, world.Position{X: world.ArenaWidth, Y: s.rng.Float32() * (world.ArenaHeight - c.H)}),
		w.Velocities.Set(id, world.Velocity{X: -s.Rules.EnemySpeed}),
		w.Colliders.Set(id, c),
		w.Healths.Set(id, world.Health{Current: s.Rules.EnemyHealth, Max: s.Rules.EnemyHealth}),
		w.Enemies.Set(id, world.Enemy{Bounty: s.Rules.EnemyBounty}),
		w.Weapons.Set(id, world.Weapon{Interval: s.Rules.EnemyFireInterval, Cooldown: s.Rules.EnemyFireInterval}),
	)
	if err != nil {
		w.Entities.Destroy(id)
		s.logger.Error("failed to spawn enemy", "entity", id, "error", err)
		return false
	}
	return true
}

// Enemies returns the number of live enemies.
func (s *Simulation) Enemies() int {
	return s.World.Enemies.Len()
}
