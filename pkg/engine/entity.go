package engine

import (
	"context"

	"github.com/cfoust/kbsync/pkg/ground"
	"github.com/cfoust/kbsync/pkg/host"
	"github.com/cfoust/kbsync/pkg/latency"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

// Room for a few echoes and probe dispatches. Anything beyond that is
// dropped.
const inboxSize = 16

// Physics is what the engine knows about an entity's motion beyond what the
// host reports.
type Physics struct {
	// Last vertical velocity the host told us about. Falls back to the
	// host's own velocity when None.
	VerticalVelocity opt.Option[float64]
	Gravity          float64
	// In [0, 1].
	KnockbackResistance float64
	LastDamageTick      opt.Option[int64]
}

type Entity struct {
	ID      string
	Host    host.Entity
	Latency *latency.Estimator

	mutex    deadlock.Mutex
	physics  Physics
	disabled bool
	// Set once the entity is disconnected.
	closed bool
	// Tick of the last hit that was actually adjusted.
	lastAdjusted opt.Option[int64]

	inbox   chan func()
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

func newEntity(h host.Entity, settings latency.Settings, limiter *rate.Limiter) *Entity {
	return &Entity{
		ID:      h.ID(),
		Host:    h,
		Latency: latency.New(settings),
		physics: Physics{
			VerticalVelocity: opt.None[float64](),
			Gravity:          ground.DefaultGravity,
			LastDamageTick:   opt.None[int64](),
		},
		lastAdjusted: opt.None[int64](),
		inbox:        make(chan func(), inboxSize),
		limiter:      limiter,
	}
}

func (e *Entity) Logger() zerolog.Logger {
	return log.With().Str("entity", e.ID).Logger()
}

// Poll runs work posted to the entity until the context is cancelled.
func (e *Entity) Poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.inbox:
			fn()
		}
	}
}

// post queues fn without blocking and reports whether it was accepted.
func (e *Entity) post(fn func()) bool {
	select {
	case e.inbox <- fn:
		return true
	default:
		return false
	}
}

func (e *Entity) Physics() Physics {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.physics
}

func (e *Entity) Disabled() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.disabled
}

func (e *Entity) setDisabled(disabled bool) {
	e.mutex.Lock()
	e.disabled = disabled
	e.mutex.Unlock()
}

// verticalVelocity must be called with the entity lock held.
func (e *Entity) verticalVelocity() float64 {
	if opt.IsNone(e.physics.VerticalVelocity) {
		return e.Host.Velocity().Y()
	}
	return e.physics.VerticalVelocity.Value
}

// EstimatedPing is the compensated ping of the entity in milliseconds.
func (e *Entity) EstimatedPing() float64 {
	return e.Latency.EstimatedPing(e.Host.MeasuredPing())
}
