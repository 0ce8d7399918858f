package game

import (
	"time"

	"rtype/pkg/world"
)

// Rules are the tunables of the simulation.
type Rules struct {
	PlayerSpeed    float32
	PlayerHealth   int16
	PlayerCollider world.Collider
	FireCooldown   time.Duration
	RespawnTime    time.Duration

	ProjectileSpeed    float32
	ProjectileTTL      time.Duration
	ProjectileDamage   int16
	ProjectileCollider world.Collider

	EnemySpawnInterval time.Duration
	MaxEnemies         int
	EnemySpeed         float32
	EnemyHealth        int16
	EnemyFireInterval  time.Duration
	EnemyBounty        uint32
	EnemyCollider      world.Collider

	// Seed drives enemy placement.
	Seed uint64
}

func DefaultRules() Rules {
	return Rules{
		PlayerSpeed:    200,
		PlayerHealth:   5,
		PlayerCollider: world.Collider{W: 33, H: 17},
		FireCooldown:   200 * time.Millisecond,
		RespawnTime:    time.Second,

		ProjectileSpeed:    300,
		ProjectileTTL:      3 * time.Second,
		ProjectileDamage:   1,
		ProjectileCollider: world.Collider{W: 16, H: 4},

		EnemySpawnInterval: 2 * time.Second,
		MaxEnemies:         8,
		EnemySpeed:         80,
		EnemyHealth:        2,
		EnemyFireInterval:  1500 * time.Millisecond,
		EnemyBounty:        100,
		EnemyCollider:      world.Collider{W: 33, H: 36},

		Seed: 1,
	}
}
