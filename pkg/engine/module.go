// Package engine applies latency compensated knockback to connected
// entities.
//
// Each connected entity gets a latency estimator fed by timing probes, a
// physics record and a combat window. When an entity is damaged while
// airborne on the server, the engine asks whether the client has already
// landed on its own screen. If it has, the vertical knockback is replaced
// with the one a grounded hit would have produced.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cfoust/kbsync/pkg/combat"
	"github.com/cfoust/kbsync/pkg/config"
	"github.com/cfoust/kbsync/pkg/ground"
	"github.com/cfoust/kbsync/pkg/host"
	"github.com/cfoust/kbsync/pkg/knockback"
	"github.com/cfoust/kbsync/pkg/store"
	"github.com/cfoust/kbsync/pkg/ticker"
	"github.com/cfoust/kbsync/pkg/utils"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

var ErrUnknownEntity = errors.New("unknown entity")

type Skip string

const (
	SkipNone        Skip = ""
	SkipDisabled    Skip = "disabled"
	SkipExempt      Skip = "exempt"
	SkipUnknown     Skip = "unknown"
	SkipServerFloor Skip = "server-grounded"
	SkipReentry     Skip = "reentry"
	SkipPrediction  Skip = "prediction"
)

// Adjustment is the result of a damage event. When Apply is false the host
// should keep the knockback it computed itself.
type Adjustment struct {
	Apply    bool    `cbor:"apply" json:"apply"`
	Vertical float64 `cbor:"vertical" json:"vertical"`
	Skip     Skip    `cbor:"skip,omitempty" json:"skip,omitempty"`

	Outcome  string  `cbor:"outcome,omitempty" json:"outcome,omitempty"`
	Ping     float64 `cbor:"ping" json:"ping"`
	Distance float64 `cbor:"distance" json:"distance"`
	// Milliseconds
	Lead float64 `cbor:"lead" json:"lead"`
}

type Engine struct {
	Events *utils.Topic[Event]
	Combat *combat.Tracker

	config    *config.Config
	host      host.Host
	store     store.Store
	predictor *ground.Predictor
	footprint ground.Footprint
	window    time.Duration
	gravity   float64

	enabled atomic.Bool
	probes  *ticker.Ticker

	mutex    deadlock.RWMutex
	entities map[string]*Entity
}

func New(cfg *config.Config, h host.Host, s store.Store) *Engine {
	e := &Engine{
		Events:    utils.NewTopic[Event](),
		Combat:    combat.NewTracker(h, combat.NewRegistry()),
		config:    cfg,
		host:      h,
		store:     s,
		predictor: ground.NewPredictor(cfg.GroundSettings()),
		footprint: cfg.Footprint(),
		window:    cfg.CombatWindow(),
		gravity:   cfg.Ground.Gravity,
		probes:    ticker.New(cfg.ProbeInterval()),
		entities:  make(map[string]*Entity),
	}

	e.Combat.OnChange = func(id string, active bool) {
		e.publish(Event{
			Type:   EventCombat,
			Entity: id,
			Active: active,
		})
	}

	e.SetEnabled(cfg.Enabled)
	return e
}

func (e *Engine) publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	e.Events.Publish(event)
}

func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// SetEnabled turns compensation on or off for every entity. Probing is
// paused while disabled.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
	if enabled {
		e.probes.Resume()
	} else {
		e.probes.Pause()
	}

	log.Info().Bool("enabled", enabled).Msg("knockback compensation toggled")
	e.publish(Event{Type: EventToggle, Enabled: enabled})
}

func (e *Engine) Entity(id string) (*Entity, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	entity, ok := e.entities[id]
	return entity, ok
}

func (e *Engine) entity(id string) (*Entity, error) {
	entity, ok := e.Entity(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return entity, nil
}

// Connect starts tracking the host entity with the given id. Connecting an
// entity twice returns the existing one.
func (e *Engine) Connect(ctx context.Context, id string) (*Entity, error) {
	if entity, ok := e.Entity(id); ok {
		return entity, nil
	}

	h, ok := e.host.Entity(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}

	disabled, err := e.store.Disabled(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load preference for %s: %w", id, err)
	}

	entity := newEntity(
		h,
		e.config.LatencySettings(),
		rate.NewLimiter(rate.Every(e.config.ProbeInterval()), e.config.Latency.EchoBurst),
	)
	entity.physics.Gravity = e.gravity
	entity.disabled = disabled

	e.mutex.Lock()
	if existing, ok := e.entities[id]; ok {
		e.mutex.Unlock()
		return existing, nil
	}
	e.entities[id] = entity
	e.mutex.Unlock()

	e.Combat.Track(id)

	entityCtx, cancel := context.WithCancel(context.Background())
	entity.cancel = cancel
	go entity.Poll(entityCtx)

	logger := entity.Logger()
	logger.Info().Bool("disabled", disabled).Msg("connected")
	e.publish(Event{Type: EventConnect, Entity: id})

	return entity, nil
}

func (e *Engine) Disconnect(id string) {
	e.mutex.Lock()
	entity, ok := e.entities[id]
	delete(e.entities, id)
	e.mutex.Unlock()

	if !ok {
		return
	}

	// Damage events still in flight must not reopen the window
	entity.mutex.Lock()
	entity.closed = true
	entity.mutex.Unlock()

	entity.cancel()
	e.Combat.Close(id, true)
	e.Combat.Forget(id)

	logger := entity.Logger()
	logger.Info().Msg("disconnected")
	e.publish(Event{Type: EventDisconnect, Entity: id})
}

// IDs returns the ids of all connected entities.
func (e *Engine) IDs() []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	ids := make([]string, 0, len(e.entities))
	for id := range e.entities {
		ids = append(ids, id)
	}
	return ids
}

// SendProbe queues a timing probe for the entity. The probe is written from
// the entity's own goroutine so that its echo can never be applied first.
func (e *Engine) SendProbe(id string) error {
	entity, err := e.entity(id)
	if err != nil {
		return err
	}

	logger := entity.Logger()

	ok := entity.post(func() {
		sentAt := time.Now()
		probeID, err := e.host.SendTimingProbe(id)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to send timing probe")
			return
		}
		entity.Latency.ProbeSent(probeID, sentAt)
	})
	if !ok {
		logger.Warn().Msg("inbox full, skipping probe")
	}

	return nil
}

func (e *Engine) ProbeAll() {
	for _, id := range e.IDs() {
		// The entity may have left in the meantime
		_ = e.SendProbe(id)
	}
}

// OnProbeEcho hands the echo of a timing probe to the owning entity.
// Echoes for unknown probes are discarded there.
func (e *Engine) OnProbeEcho(entityID string, probeID uint64, arrival time.Time) error {
	entity, err := e.entity(entityID)
	if err != nil {
		return err
	}

	logger := entity.Logger()

	if !entity.limiter.Allow() {
		logger.Debug().Uint64("probe", probeID).Msg("echo rate exceeded, dropping")
		return nil
	}

	ok := entity.post(func() {
		if !entity.Latency.RecordProbeEcho(probeID, arrival) {
			logger.Debug().Uint64("probe", probeID).Msg("discarding stale echo")
			return
		}

		ping := entity.EstimatedPing()
		logger.Debug().Float64("ping", ping).Msg("ping updated")
		e.publish(Event{
			Type:   EventPing,
			Entity: entityID,
			Ping:   ping,
		})
	})
	if !ok {
		logger.Warn().Uint64("probe", probeID).Msg("inbox full, dropping echo")
	}

	return nil
}

// OnDamageEvent decides whether the knockback of a hit on defender should
// be replaced and opens or refreshes the defender's combat window.
func (e *Engine) OnDamageEvent(attackerID, defenderID string, tick int64) Adjustment {
	defender, ok := e.Entity(defenderID)
	if !ok {
		return Adjustment{Skip: SkipUnknown}
	}

	adjustment := e.adjust(attackerID, defender, tick)

	// Disconnect may have run since the lookup
	defender.mutex.Lock()
	if defender.closed {
		defender.mutex.Unlock()
		return Adjustment{Skip: SkipUnknown}
	}
	e.Combat.Open(defenderID, e.window)
	defender.mutex.Unlock()

	if adjustment.Apply {
		logger := defender.Logger()
		logger.Debug().
			Str("attacker", attackerID).
			Float64("vertical", adjustment.Vertical).
			Float64("ping", adjustment.Ping).
			Float64("distance", adjustment.Distance).
			Msg("adjusted knockback")
	}

	result := adjustment
	e.publish(Event{
		Type:       EventDamage,
		Entity:     defenderID,
		Attacker:   attackerID,
		Adjustment: &result,
	})

	return adjustment
}

func (e *Engine) adjust(attackerID string, defender *Entity, tick int64) Adjustment {
	if !e.Enabled() {
		return Adjustment{Skip: SkipDisabled}
	}

	attacker, ok := e.host.Entity(attackerID)
	if !ok {
		return Adjustment{Skip: SkipUnknown}
	}

	defender.mutex.Lock()
	defer defender.mutex.Unlock()

	if defender.closed {
		return Adjustment{Skip: SkipUnknown}
	}

	defender.physics.LastDamageTick = opt.Some(tick)

	if defender.disabled {
		return Adjustment{Skip: SkipExempt}
	}

	h := defender.Host
	if h.OnGround() {
		return Adjustment{Skip: SkipServerFloor}
	}

	// A hit landing shortly after an adjusted one while the window is
	// still open keeps the knockback the host computed.
	reentry := int64(e.config.Combat.ReentryTicks)
	if !opt.IsNone(defender.lastAdjusted) &&
		e.Combat.IsActive(defender.ID) &&
		tick-defender.lastAdjusted.Value < reentry {
		return Adjustment{Skip: SkipReentry}
	}

	ping := defender.EstimatedPing()
	distance := e.footprint.DistanceToGround(e.host.World(), defender.ID, h.Position())

	prediction := e.predictor.Predict(ground.Query{
		VerticalVelocity: defender.verticalVelocity(),
		DistanceToGround: distance,
		EstimatedPing:    ping,
		Gravity:          defender.physics.Gravity,
		Suspended:        h.Suspended(),
	})

	adjustment := Adjustment{
		Outcome:  prediction.Outcome.String(),
		Ping:     ping,
		Distance: distance,
		Lead:     float64(prediction.Lead) / float64(time.Millisecond),
	}

	if !prediction.Ahead() {
		adjustment.Skip = SkipPrediction
		return adjustment
	}

	adjustment.Apply = true
	adjustment.Vertical = knockback.VerticalComponent(knockback.Attack{
		Sprinting:      attacker.Sprinting(),
		Cooldown:       attacker.AttackCooldown(),
		KnockbackLevel: attacker.KnockbackLevel(),
		Resistance:     defender.physics.KnockbackResistance,
	})
	defender.lastAdjusted = opt.Some(tick)

	return adjustment
}

// ObserveVelocity records the vertical velocity the host last sent to the
// entity's client.
func (e *Engine) ObserveVelocity(id string, vertical float64) error {
	entity, err := e.entity(id)
	if err != nil {
		return err
	}

	entity.mutex.Lock()
	entity.physics.VerticalVelocity = opt.Some(vertical)
	entity.mutex.Unlock()
	return nil
}

func (e *Engine) SetGravity(id string, gravity float64) error {
	entity, err := e.entity(id)
	if err != nil {
		return err
	}

	entity.mutex.Lock()
	entity.physics.Gravity = gravity
	entity.mutex.Unlock()
	return nil
}

func (e *Engine) SetResistance(id string, resistance float64) error {
	entity, err := e.entity(id)
	if err != nil {
		return err
	}

	if math.IsNaN(resistance) {
		resistance = 0
	}

	entity.mutex.Lock()
	entity.physics.KnockbackResistance = math.Max(0, math.Min(1, resistance))
	entity.mutex.Unlock()
	return nil
}

// EstimatedPing returns the compensated ping of a connected entity, or 0 if
// it is not connected.
func (e *Engine) EstimatedPing(id string) float64 {
	entity, ok := e.Entity(id)
	if !ok {
		return 0
	}
	return entity.EstimatedPing()
}

func (e *Engine) IsInCombat(id string) bool {
	return e.Combat.IsActive(id)
}

// Toggle flips whether compensation applies to a single entity and stores
// the choice. It returns true if compensation is now enabled for it. The
// entity does not have to be connected.
func (e *Engine) Toggle(ctx context.Context, id string) (bool, error) {
	disabled, err := e.store.Disabled(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load preference for %s: %w", id, err)
	}

	disabled = !disabled
	err = e.store.SetDisabled(ctx, id, disabled)
	if err != nil {
		return false, fmt.Errorf("failed to store preference for %s: %w", id, err)
	}

	if entity, ok := e.Entity(id); ok {
		entity.setDisabled(disabled)
	}

	log.Info().Str("entity", id).Bool("enabled", !disabled).Msg("toggled compensation")
	e.publish(Event{
		Type:    EventToggle,
		Entity:  id,
		Enabled: !disabled,
	})

	return !disabled, nil
}

// Run sends timing probes to every connected entity until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer e.probes.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.probes.C:
			e.ProbeAll()
		}
	}
}

// Shutdown disconnects every entity.
func (e *Engine) Shutdown() {
	for _, id := range e.IDs() {
		e.Disconnect(id)
	}
	e.probes.Stop()
}
