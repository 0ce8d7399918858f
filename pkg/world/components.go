package world

import (
	"time"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
)

// Arena bounds. Players are clamped so their box stays on screen.
const (
	ArenaWidth  float32 = 800
	ArenaHeight float32 = 600
	MaxPlayerX  float32 = 795
	MaxPlayerY  float32 = 590
)

type Position struct{ X, Y float32 }

type Velocity struct{ X, Y float32 }

// Collider is an axis-aligned box anchored at the entity position.
type Collider struct{ W, H float32 }

type Health struct {
	Current int16
	Max     int16
}

// Player is attached to the avatar entity of a connected client.
type Player struct {
	ClientID uint32
	Name     string
	Score    uint32
	Kills    uint32
	Spawn    Position
	Input    protocol.InputFlags
	JoinedAt time.Time
}

type Weapon struct {
	Interval time.Duration
	Cooldown time.Duration
}

// Projectile damages the first opposing collider it overlaps.
type Projectile struct {
	Owner   ecs.Ref
	Hostile bool
	Damage  int16
	TTL     time.Duration
}

type Enemy struct {
	Bounty uint32
}

// State carries flags mirrored to clients. Timer counts down the current
// timed state such as respawn invulnerability.
type State struct {
	Flags protocol.StateFlags
	Timer time.Duration
}
