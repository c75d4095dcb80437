package sim

import (
	"time"

	"github.com/cfoust/kbsync/pkg/host"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sasha-s/go-deadlock"
)

// Player is a scriptable host.Entity.
type Player struct {
	id string

	mutex          deadlock.RWMutex
	position       mgl64.Vec3
	velocity       mgl64.Vec3
	onGround       bool
	suspended      bool
	sprinting      bool
	attackCooldown float64
	knockbackLevel int
	latency        time.Duration
}

var _ host.Entity = (*Player)(nil)

func NewPlayer(id string) *Player {
	return &Player{
		id:             id,
		attackCooldown: 1,
	}
}

func (p *Player) ID() string {
	return p.id
}

func (p *Player) Position() mgl64.Vec3 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.position
}

func (p *Player) SetPosition(position mgl64.Vec3) {
	p.mutex.Lock()
	p.position = position
	p.mutex.Unlock()
}

func (p *Player) Velocity() mgl64.Vec3 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.velocity
}

func (p *Player) SetVelocity(velocity mgl64.Vec3) {
	p.mutex.Lock()
	p.velocity = velocity
	p.mutex.Unlock()
}

func (p *Player) OnGround() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.onGround
}

func (p *Player) SetOnGround(onGround bool) {
	p.mutex.Lock()
	p.onGround = onGround
	p.mutex.Unlock()
}

func (p *Player) Suspended() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.suspended
}

func (p *Player) SetSuspended(suspended bool) {
	p.mutex.Lock()
	p.suspended = suspended
	p.mutex.Unlock()
}

func (p *Player) Sprinting() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.sprinting
}

func (p *Player) SetSprinting(sprinting bool) {
	p.mutex.Lock()
	p.sprinting = sprinting
	p.mutex.Unlock()
}

func (p *Player) AttackCooldown() float64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.attackCooldown
}

func (p *Player) SetAttackCooldown(cooldown float64) {
	p.mutex.Lock()
	p.attackCooldown = cooldown
	p.mutex.Unlock()
}

func (p *Player) KnockbackLevel() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.knockbackLevel
}

func (p *Player) SetKnockbackLevel(level int) {
	p.mutex.Lock()
	p.knockbackLevel = level
	p.mutex.Unlock()
}

// MeasuredPing reports the simulated round trip.
func (p *Player) MeasuredPing() float64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return float64(p.latency) / float64(time.Millisecond)
}

func (p *Player) Latency() time.Duration {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.latency
}

// SetLatency sets the round trip the loopback transport simulates for this
// player's probes.
func (p *Player) SetLatency(latency time.Duration) {
	p.mutex.Lock()
	p.latency = latency
	p.mutex.Unlock()
}
