package engine

import (
	"context"
	"testing"
	"time"

	"github.com/cfoust/kbsync/pkg/config"
	"github.com/cfoust/kbsync/pkg/host"
	"github.com/cfoust/kbsync/pkg/host/sim"
	"github.com/cfoust/kbsync/pkg/knockback"
	"github.com/cfoust/kbsync/pkg/store"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualHandle struct {
	fn      func()
	stopped bool
}

func (h *manualHandle) Stop() bool {
	wasLive := !h.stopped
	h.stopped = true
	return wasLive
}

func (h *manualHandle) TimeLeft() time.Duration {
	return 0
}

type manualScheduler struct {
	handles []*manualHandle
}

func (s *manualScheduler) After(d time.Duration, fn func()) host.Handle {
	handle := &manualHandle{fn: fn}
	s.handles = append(s.handles, handle)
	return handle
}

// expire fires every timer that was not stopped.
func (s *manualScheduler) expire() {
	for _, handle := range s.handles {
		if handle.stopped {
			continue
		}
		handle.stopped = true
		handle.fn()
	}
}

type fixture struct {
	engine    *Engine
	host      *sim.Host
	scheduler *manualScheduler
	attacker  *sim.Player
	defender  *sim.Player
}

func setup(t *testing.T) *fixture {
	cfg, err := config.Process(nil)
	require.NoError(t, err)

	world := sim.NewWorld()
	world.Floor(64)

	h := sim.New(world)
	scheduler := &manualScheduler{}
	h.Scheduler = scheduler

	attacker := sim.NewPlayer("attacker")
	attacker.SetPosition(mgl64.Vec3{2, 64, 0})
	attacker.SetOnGround(true)
	attacker.SetSprinting(true)
	h.AddPlayer(attacker)

	// Airborne, 1.3 blocks up, high ping
	defender := sim.NewPlayer("defender")
	defender.SetPosition(mgl64.Vec3{0, 65.3, 0})
	defender.SetLatency(500 * time.Millisecond)
	h.AddPlayer(defender)

	engine := New(cfg, h, store.NewMemoryStore())
	t.Cleanup(engine.Shutdown)

	ctx := context.Background()
	_, err = engine.Connect(ctx, "attacker")
	require.NoError(t, err)
	_, err = engine.Connect(ctx, "defender")
	require.NoError(t, err)

	return &fixture{
		engine:    engine,
		host:      h,
		scheduler: scheduler,
		attacker:  attacker,
		defender:  defender,
	}
}

func TestAdjustsAirborneHit(t *testing.T) {
	f := setup(t)

	assert.Equal(t, 475.0, f.engine.EstimatedPing("defender"))
	assert.False(t, f.engine.IsInCombat("defender"))

	adjustment := f.engine.OnDamageEvent("attacker", "defender", 100)
	require.True(t, adjustment.Apply)
	assert.Equal(t, knockback.MaxVertical, adjustment.Vertical)
	assert.Equal(t, "ahead", adjustment.Outcome)
	assert.InDelta(t, 1.3, adjustment.Distance, 1e-9)
	assert.Equal(t, 300.0, adjustment.Lead)
	assert.True(t, f.engine.IsInCombat("defender"))

	entity, ok := f.engine.Entity("defender")
	require.True(t, ok)
	physics := entity.Physics()
	require.False(t, opt.IsNone(physics.LastDamageTick))
	assert.Equal(t, int64(100), physics.LastDamageTick.Value)

	// The window closes once its timer fires
	f.scheduler.expire()
	assert.False(t, f.engine.IsInCombat("defender"))
}

func TestPartialCharge(t *testing.T) {
	f := setup(t)
	f.attacker.SetSprinting(false)
	f.attacker.SetAttackCooldown(0.5)
	require.NoError(t, f.engine.SetResistance("defender", 0.5))

	adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
	require.True(t, adjustment.Apply)
	assert.InDelta(t, knockback.PartialVertical-0.20000000595, adjustment.Vertical, 1e-12)

	// Resistance is clamped
	require.NoError(t, f.engine.SetResistance("defender", 4))
	assert.Equal(t, 1.0, mustEntity(t, f.engine, "defender").Physics().KnockbackResistance)
}

func mustEntity(t *testing.T, e *Engine, id string) *Entity {
	entity, ok := e.Entity(id)
	require.True(t, ok)
	return entity
}

func TestNoAdjustment(t *testing.T) {
	{
		f := setup(t)
		f.defender.SetLatency(20 * time.Millisecond)
		adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
		assert.False(t, adjustment.Apply)
		assert.Equal(t, SkipPrediction, adjustment.Skip)
		assert.Equal(t, "low-ping", adjustment.Outcome)

		// The window still opens
		assert.True(t, f.engine.IsInCombat("defender"))
	}

	{
		f := setup(t)
		f.defender.SetOnGround(true)
		adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
		assert.False(t, adjustment.Apply)
		assert.Equal(t, SkipServerFloor, adjustment.Skip)
	}

	{
		f := setup(t)
		f.defender.SetSuspended(true)
		adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
		assert.False(t, adjustment.Apply)
		assert.Equal(t, "suspended", adjustment.Outcome)
	}

	{
		f := setup(t)
		f.defender.SetPosition(mgl64.Vec3{0, 66, 0})
		adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
		assert.False(t, adjustment.Apply)
		assert.Equal(t, "too-far", adjustment.Outcome)
	}

	{
		f := setup(t)
		require.NoError(t, f.engine.SetGravity("defender", 0))
		adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
		assert.False(t, adjustment.Apply)
		assert.Equal(t, "no-gravity", adjustment.Outcome)
	}

	{
		f := setup(t)
		adjustment := f.engine.OnDamageEvent("attacker", "nobody", 1)
		assert.Equal(t, SkipUnknown, adjustment.Skip)
		assert.False(t, f.engine.IsInCombat("nobody"))

		adjustment = f.engine.OnDamageEvent("nobody", "defender", 1)
		assert.Equal(t, SkipUnknown, adjustment.Skip)
	}
}

func TestObservedVelocity(t *testing.T) {
	f := setup(t)
	f.defender.SetPosition(mgl64.Vec3{0, 64.5, 0})
	f.defender.SetLatency(625 * time.Millisecond)

	// Rising: 6 ticks to the apex, 7 to fall, 650ms lead
	require.NoError(t, f.engine.ObserveVelocity("defender", 0.42))
	adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
	assert.False(t, adjustment.Apply)
	assert.Equal(t, "behind", adjustment.Outcome)
	assert.Equal(t, 650.0, adjustment.Lead)

	// Without an observation the host velocity is used
	f = setup(t)
	f.defender.SetPosition(mgl64.Vec3{0, 64.5, 0})
	f.defender.SetLatency(625 * time.Millisecond)
	f.defender.SetVelocity(mgl64.Vec3{0, 0.42, 0})
	adjustment = f.engine.OnDamageEvent("attacker", "defender", 1)
	assert.Equal(t, "behind", adjustment.Outcome)

	f.defender.SetVelocity(mgl64.Vec3{})
	adjustment = f.engine.OnDamageEvent("attacker", "defender", 50)
	assert.True(t, adjustment.Apply)
}

func TestReentry(t *testing.T) {
	f := setup(t)

	assert.True(t, f.engine.OnDamageEvent("attacker", "defender", 100).Apply)

	adjustment := f.engine.OnDamageEvent("attacker", "defender", 105)
	assert.False(t, adjustment.Apply)
	assert.Equal(t, SkipReentry, adjustment.Skip)

	assert.True(t, f.engine.OnDamageEvent("attacker", "defender", 110).Apply)

	// Once the window closes there is nothing to guard against
	f.scheduler.expire()
	assert.True(t, f.engine.OnDamageEvent("attacker", "defender", 111).Apply)
}

func TestToggle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.engine.SetEnabled(false)
	assert.False(t, f.engine.Enabled())
	adjustment := f.engine.OnDamageEvent("attacker", "defender", 1)
	assert.Equal(t, SkipDisabled, adjustment.Skip)
	f.engine.SetEnabled(true)

	enabled, err := f.engine.Toggle(ctx, "defender")
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.True(t, mustEntity(t, f.engine, "defender").Disabled())

	adjustment = f.engine.OnDamageEvent("attacker", "defender", 100)
	assert.Equal(t, SkipExempt, adjustment.Skip)

	// The preference survives reconnecting
	f.engine.Disconnect("defender")
	entity, err := f.engine.Connect(ctx, "defender")
	require.NoError(t, err)
	assert.True(t, entity.Disabled())

	enabled, err = f.engine.Toggle(ctx, "defender")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, f.engine.OnDamageEvent("attacker", "defender", 200).Apply)

	// Entities that are not connected can be toggled too
	enabled, err = f.engine.Toggle(ctx, "offline")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestConnect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.engine.Connect(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	first, _ := f.engine.Entity("defender")
	second, err := f.engine.Connect(ctx, "defender")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.ElementsMatch(t, []string{"attacker", "defender"}, f.engine.IDs())

	f.engine.OnDamageEvent("attacker", "defender", 1)
	f.engine.Disconnect("defender")
	assert.False(t, f.engine.IsInCombat("defender"))
	assert.Equal(t, 0.0, f.engine.EstimatedPing("defender"))
	assert.ErrorIs(t, f.engine.ObserveVelocity("defender", 0), ErrUnknownEntity)

	// Twice is fine
	f.engine.Disconnect("defender")
}

func TestProbeRoundTrip(t *testing.T) {
	f := setup(t)
	f.defender.SetLatency(80 * time.Millisecond)
	f.host.OnEcho(func(entityID string, probeID uint64, arrival time.Time) {
		_ = f.engine.OnProbeEcho(entityID, probeID, arrival)
	})

	events := f.engine.Events.Subscribe(16)
	defer events.Done()

	require.NoError(t, f.engine.SendProbe("defender"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events.Recv():
			if event.Type != EventPing || event.Entity != "defender" {
				continue
			}
			assert.GreaterOrEqual(t, event.Ping, 55.0)

			current, previous := mustEntity(t, f.engine, "defender").Latency.Samples()
			require.False(t, opt.IsNone(current))
			assert.GreaterOrEqual(t, current.Value, 80.0)
			// Still falls back to the measured ping
			assert.True(t, opt.IsNone(previous))
			return
		case <-deadline:
			t.Fatal("no ping update")
		}
	}
}

func TestStaleEcho(t *testing.T) {
	f := setup(t)
	f.host.DropEchoes(true)

	require.NoError(t, f.engine.SendProbe("defender"))
	entity := mustEntity(t, f.engine, "defender")
	require.Eventually(t, func() bool {
		return entity.Latency.IsProbeOurs(1)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.OnProbeEcho("defender", 42, time.Now()))
	require.NoError(t, f.engine.OnProbeEcho("defender", 1, time.Now()))
	require.Eventually(t, func() bool {
		current, _ := entity.Latency.Samples()
		return !opt.IsNone(current)
	}, time.Second, 5*time.Millisecond)

	// The probe was already answered
	require.NoError(t, f.engine.OnProbeEcho("defender", 1, time.Now()))
	time.Sleep(20 * time.Millisecond)
	_, previous := entity.Latency.Samples()
	assert.True(t, opt.IsNone(previous))

	assert.ErrorIs(t, f.engine.OnProbeEcho("ghost", 1, time.Now()), ErrUnknownEntity)
}

func TestStates(t *testing.T) {
	f := setup(t)
	f.engine.OnDamageEvent("attacker", "defender", 7)

	state, err := f.engine.State("defender")
	require.NoError(t, err)
	assert.Equal(t, "defender", state.ID)
	assert.Equal(t, 475.0, state.Ping)
	assert.Equal(t, 500.0, state.Measured)
	assert.True(t, state.InCombat)
	assert.Nil(t, state.Current)
	require.NotNil(t, state.LastDamageTick)
	assert.Equal(t, int64(7), *state.LastDamageTick)

	assert.Len(t, f.engine.States(), 2)

	_, err = f.engine.State("ghost")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestCombatEvents(t *testing.T) {
	f := setup(t)
	events := f.engine.Events.Subscribe(16)
	defer events.Done()

	f.engine.OnDamageEvent("attacker", "defender", 1)
	f.scheduler.expire()

	var types []EventType
	var active []bool
	for len(types) < 3 {
		event := <-events.Recv()
		types = append(types, event.Type)
		if event.Type == EventCombat {
			active = append(active, event.Active)
		}
	}

	assert.Equal(t, []EventType{EventCombat, EventDamage, EventCombat}, types)
	assert.Equal(t, []bool{true, false}, active)
}

// leavingHost disconnects an entity while the engine is still resolving
// the attacker of a hit on it.
type leavingHost struct {
	*sim.Host
	engine  *Engine
	leaving string
}

func (h *leavingHost) Entity(id string) (host.Entity, bool) {
	if h.engine != nil && id == "attacker" && h.leaving != "" {
		leaving := h.leaving
		h.leaving = ""
		h.engine.Disconnect(leaving)
	}
	return h.Host.Entity(id)
}

func TestDisconnectDuringDamage(t *testing.T) {
	cfg, err := config.Process(nil)
	require.NoError(t, err)

	world := sim.NewWorld()
	world.Floor(64)

	inner := sim.New(world)
	scheduler := &manualScheduler{}
	inner.Scheduler = scheduler

	attacker := sim.NewPlayer("attacker")
	attacker.SetSprinting(true)
	inner.AddPlayer(attacker)

	defender := sim.NewPlayer("defender")
	defender.SetPosition(mgl64.Vec3{0, 65.3, 0})
	defender.SetLatency(500 * time.Millisecond)
	inner.AddPlayer(defender)

	h := &leavingHost{Host: inner}
	engine := New(cfg, h, store.NewMemoryStore())
	t.Cleanup(engine.Shutdown)

	ctx := context.Background()
	_, err = engine.Connect(ctx, "attacker")
	require.NoError(t, err)
	_, err = engine.Connect(ctx, "defender")
	require.NoError(t, err)

	h.engine = engine
	h.leaving = "defender"

	adjustment := engine.OnDamageEvent("attacker", "defender", 1)
	assert.False(t, adjustment.Apply)
	assert.Equal(t, SkipUnknown, adjustment.Skip)

	_, connected := engine.Entity("defender")
	assert.False(t, connected)
	assert.False(t, engine.IsInCombat("defender"))
	assert.Equal(t, 0, engine.Combat.Registry().Len())
	assert.Equal(t, time.Duration(0), engine.Combat.TimeLeft("defender"))
	for _, handle := range scheduler.handles {
		assert.True(t, handle.stopped)
	}
}
