package game

import (
	"time"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
	"rtype/pkg/world"
)

const (
	StageControl = iota * 10
	StageSpawn
	StageMovement
	StageLifetime
	StageCollision
	StageState
)

type baseSystem struct {
	name  string
	stage int
}

func (b baseSystem) Name() string { return b.name }
func (b baseSystem) Stage() int   { return b.stage }

// DefaultSystems returns the systems every simulation runs.
func DefaultSystems() []System {
	return []System{
		ControlSystem{baseSystem{"control", StageControl}},
		EnemySystem{baseSystem{"enemies", StageSpawn}},
		MovementSystem{baseSystem{"movement", StageMovement}},
		LifetimeSystem{baseSystem{"lifetime", StageLifetime}},
		CollisionSystem{baseSystem{"collision", StageCollision}},
		StateSystem{baseSystem{"state", StageState}},
	}
}

func seconds(dt time.Duration) float32 {
	return float32(dt.Seconds())
}

// ControlSystem turns player intents into velocity and shots.
type ControlSystem struct{ baseSystem }

func (ControlSystem) Update(s *Simulation, dt time.Duration) {
	w := s.World
	for id := range w.Entities.Query(w.Masks.Player | w.Masks.Velocity) {
		p, _ := w.Players.Get(id)
		vel, _ := w.Velocities.Get(id)

		var vx, vy float32
		if p.Input.Has(protocol.InputLeft) {
			vx -= s.Rules.PlayerSpeed
		}
		if p.Input.Has(protocol.InputRight) {
			vx += s.Rules.PlayerSpeed
		}
		if p.Input.Has(protocol.InputUp) {
			vy -= s.Rules.PlayerSpeed
		}
		if p.Input.Has(protocol.InputDown) {
			vy += s.Rules.PlayerSpeed
		}
		vel.X, vel.Y = vx, vy

		state, _ := w.States.Get(id)
		weapon, ok := w.Weapons.Get(id)
		if !ok || state == nil {
			continue
		}
		state.Flags &^= protocol.StateFiring
		if weapon.Cooldown > 0 {
			weapon.Cooldown -= dt
		}
		if !p.Input.Has(protocol.InputFire) || weapon.Cooldown > 0 || state.Flags&protocol.StateRespawning != 0 {
			continue
		}

		weapon.Cooldown = weapon.Interval
		state.Flags |= protocol.StateFiring

		pos, _ := w.Positions.Value(id)
		c, _ := w.Colliders.Value(id)
		s.spawnProjectile(id, world.Position{X: pos.X + c.W, Y: pos.Y + c.H/2}, s.Rules.ProjectileSpeed, false)
	}
}

// EnemySystem spawns enemies at the right edge and makes them shoot.
type EnemySystem struct{ baseSystem }

func (EnemySystem) Update(s *Simulation, dt time.Duration) {
	s.spawnTimer -= dt
	if s.spawnTimer <= 0 {
		s.spawnTimer += s.Rules.EnemySpawnInterval
		if s.Enemies() < s.Rules.MaxEnemies {
			s.spawnEnemy()
		}
	}

	w := s.World
	for id := range w.Entities.Query(w.Masks.Enemy | w.Masks.Weapon | w.Masks.Position) {
		weapon, _ := w.Weapons.Get(id)
		weapon.Cooldown -= dt
		if weapon.Cooldown > 0 {
			continue
		}
		weapon.Cooldown += weapon.Interval

		pos, _ := w.Positions.Value(id)
		c, _ := w.Colliders.Value(id)
		s.spawnProjectile(id, world.Position{X: pos.X - s.Rules.ProjectileCollider.W, Y: pos.Y + c.H/2}, -s.Rules.ProjectileSpeed, true)
	}
}

// MovementSystem integrates velocity and keeps players inside the arena.
type MovementSystem struct{ baseSystem }

func (MovementSystem) Update(s *Simulation, dt time.Duration) {
	w := s.World
	step := seconds(dt)
	for id := range w.Entities.Query(w.Masks.Position | w.Masks.Velocity) {
		pos, _ := w.Positions.Get(id)
		vel, _ := w.Velocities.Value(id)
		pos.X += vel.X * step
		pos.Y += vel.Y * step

		if w.Players.Has(id) {
			pos.X = clamp(pos.X, 0, world.MaxPlayerX)
			pos.Y = clamp(pos.Y, 0, world.MaxPlayerY)
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

// LifetimeSystem removes expired projectiles and anything that left the
// arena for good.
type LifetimeSystem struct{ baseSystem }

func (LifetimeSystem) Update(s *Simulation, dt time.Duration) {
	w := s.World
	for id := range w.Entities.Query(w.Masks.Projectile) {
		p, _ := w.Projectiles.Get(id)
		p.TTL -= dt
		if p.TTL <= 0 || outside(w, id) {
			w.Entities.Destroy(id)
		}
	}
	for id := range w.Entities.Query(w.Masks.Enemy) {
		if outside(w, id) {
			w.Entities.Destroy(id)
		}
	}
}

func outside(w *world.World, id ecs.EntityID) bool {
	pos, ok := w.Positions.Value(id)
	if !ok {
		return true
	}
	c, _ := w.Colliders.Value(id)
	return pos.X+c.W < 0 || pos.X > world.ArenaWidth || pos.Y+c.H < 0 || pos.Y > world.ArenaHeight
}

// CollisionSystem applies projectile hits and enemy rams.
type CollisionSystem struct{ baseSystem }

func (CollisionSystem) Update(s *Simulation, _ time.Duration) {
	w := s.World

	for pid := range w.Entities.Query(w.Masks.Projectile | w.Masks.Position | w.Masks.Collider) {
		proj, _ := w.Projectiles.Value(pid)
		targets := w.Masks.Enemy
		if proj.Hostile {
			targets = w.Masks.Player
		}

		for tid := range w.Entities.Query(targets | w.Masks.Health | w.Masks.Position | w.Masks.Collider) {
			if !overlap(w, pid, tid) || invulnerable(w, tid) {
				continue
			}
			w.Entities.Destroy(pid)
			s.damage(tid, proj.Damage, proj.Owner)
			break
		}
	}

	for eid := range w.Entities.Query(w.Masks.Enemy | w.Masks.Position | w.Masks.Collider) {
		for tid := range w.Entities.Query(w.Masks.Player | w.Masks.Health | w.Masks.Position | w.Masks.Collider) {
			if !overlap(w, eid, tid) || invulnerable(w, tid) {
				continue
			}
			w.Entities.Destroy(eid)
			s.damage(tid, s.Rules.ProjectileDamage, ecs.Ref{})
			break
		}
	}
}

func overlap(w *world.World, a, b ecs.EntityID) bool {
	pa, _ := w.Positions.Value(a)
	ca, _ := w.Colliders.Value(a)
	pb, _ := w.Positions.Value(b)
	cb, _ := w.Colliders.Value(b)
	return pa.X < pb.X+cb.W && pb.X < pa.X+ca.W && pa.Y < pb.Y+cb.H && pb.Y < pa.Y+ca.H
}

func invulnerable(w *world.World, id ecs.EntityID) bool {
	st, ok := w.States.Value(id)
	return ok && st.Flags&protocol.StateRespawning != 0
}

// damage removes health from id. A destroyed enemy pays its bounty to the
// owner of the shot if that player still exists; a player at zero health
// respawns.
func (s *Simulation) damage(id ecs.EntityID, amount int16, by ecs.Ref) {
	w := s.World
	h, ok := w.Healths.Get(id)
	if !ok {
		return
	}
	h.Current -= amount
	if h.Current > 0 {
		return
	}

	if w.Players.Has(id) {
		s.Respawn(id)
		return
	}

	var bounty uint32
	if e, ok := w.Enemies.Value(id); ok {
		bounty = e.Bounty
	}
	w.Entities.Destroy(id)

	owner, err := w.Entities.Resolve(by)
	if err != nil {
		return
	}
	if p, ok := w.Players.Get(owner); ok {
		p.Score += bounty
		p.Kills++
	}
}

// StateSystem runs down timed states.
type StateSystem struct{ baseSystem }

func (StateSystem) Update(s *Simulation, dt time.Duration) {
	w := s.World
	for id := range w.Entities.Query(w.Masks.State) {
		st, _ := w.States.Get(id)
		if st.Timer <= 0 {
			continue
		}
		st.Timer -= dt
		if st.Timer <= 0 {
			st.Timer = 0
			st.Flags &^= protocol.StateRespawning
		}
	}
}
