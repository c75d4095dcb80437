// Package host describes the primitives kbsync consumes from the game
// server it is embedded in. Each host environment provides one
// implementation; pkg/host/sim is an in-memory one.
package host

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
)

type FluidHandling uint8

const (
	// Liquids are passed through.
	FluidNone FluidHandling = iota
	// Only source blocks stop the ray.
	FluidSourceOnly
	// Any liquid stops the ray.
	FluidAlways
)

type World interface {
	// RayTraceDown casts a ray straight down from origin and returns the
	// distance to the top of the nearest solid, non-passable surface, or
	// None if nothing was hit within maxDistance. Geometry belonging to
	// the entity named by ignore is never hit.
	RayTraceDown(
		origin mgl64.Vec3,
		maxDistance float64,
		fluids FluidHandling,
		ignore string,
	) opt.Option[float64]
}

type Entity interface {
	ID() string
	Position() mgl64.Vec3
	Velocity() mgl64.Vec3
	// OnGround is the server's own ground flag.
	OnGround() bool
	// Suspended is true when ground prediction is meaningless: the entity
	// is submerged, climbing, gliding or stuck in a web.
	Suspended() bool
	Sprinting() bool
	// AttackCooldown is the attack charge progress in [0, 1].
	AttackCooldown() float64
	// KnockbackLevel is the knockback enchantment level of the held item.
	KnockbackLevel() int
	// MeasuredPing is the host's own round-trip estimate in milliseconds.
	MeasuredPing() float64
}

type Transport interface {
	// SendTimingProbe writes a timing probe to the entity's connection and
	// returns the identifier the client will echo back.
	SendTimingProbe(entityID string) (uint64, error)
}

type Handle interface {
	// Stop cancels the pending callback. It returns false if the callback
	// already ran or was already stopped.
	Stop() bool
	TimeLeft() time.Duration
}

type Scheduler interface {
	After(d time.Duration, fn func()) Handle
}

// Host bundles everything an engine needs from its environment.
type Host interface {
	Transport
	Scheduler

	World() World
	Entity(id string) (Entity, bool)
}
