// Package ground predicts whether a client has already landed on its own
// screen while the server still sees it in the air.
//
// The client runs ahead of the server by roughly its one-way latency. If
// an airborne entity would reach the ground within that lead, the client
// has already predicted landing and a knockback computed from the server's
// airborne state would look wrong to the player.
package ground

import (
	"math"
	"time"

	"github.com/cfoust/kbsync/pkg/latency"
)

const (
	// DefaultGravity is the vanilla per-tick vertical velocity decay.
	DefaultGravity = 0.08

	DefaultTickRate = 20.0

	// DefaultMaxFallTicks bounds the fall search. No reasonable latency
	// justifies predicting more than a second ahead.
	DefaultMaxFallTicks = 20

	// Beyond this distance the client cannot have landed in any case the
	// host computed knockback would differ from.
	DefaultMaxGroundDistance = 1.3

	// Indeterminate is returned by FallTicks when the search cap is hit.
	Indeterminate = -1
)

type Outcome uint8

const (
	OutcomeAhead Outcome = iota
	OutcomeBehind
	OutcomeSuspended
	OutcomeLowPing
	OutcomeGrounded
	OutcomeNoGravity
	OutcomeTooFar
	OutcomeIndeterminate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAhead:
		return "ahead"
	case OutcomeBehind:
		return "behind"
	case OutcomeSuspended:
		return "suspended"
	case OutcomeLowPing:
		return "low-ping"
	case OutcomeGrounded:
		return "grounded"
	case OutcomeNoGravity:
		return "no-gravity"
	case OutcomeTooFar:
		return "too-far"
	case OutcomeIndeterminate:
		return "indeterminate"
	}
	return "unknown"
}

type Settings struct {
	TickRate          float64
	MaxFallTicks      int
	MaxGroundDistance float64
}

func DefaultSettings() Settings {
	return Settings{
		TickRate:          DefaultTickRate,
		MaxFallTicks:      DefaultMaxFallTicks,
		MaxGroundDistance: DefaultMaxGroundDistance,
	}
}

// TickDuration is the length of a single simulation step.
func (s Settings) TickDuration() time.Duration {
	return time.Duration(float64(time.Second) / s.TickRate)
}

type Query struct {
	// Positive means rising.
	VerticalVelocity float64
	// Blocks between the entity's feet and the surface below it.
	DistanceToGround float64
	// Compensated ping in milliseconds.
	EstimatedPing float64
	Gravity       float64
	// See host.Entity.Suspended.
	Suspended bool
}

type Prediction struct {
	Outcome   Outcome
	ApexTicks int
	FallTicks int
	// How far ahead the client must be to have already landed.
	Lead time.Duration
}

func (p Prediction) Ahead() bool {
	return p.Outcome == OutcomeAhead
}

type Predictor struct {
	Settings
}

func NewPredictor(settings Settings) *Predictor {
	return &Predictor{Settings: settings}
}

func (p *Predictor) IsClientAheadOfServerGround(q Query) bool {
	return p.Predict(q).Ahead()
}

func (p *Predictor) Predict(q Query) Prediction {
	switch {
	case q.Suspended:
		return Prediction{Outcome: OutcomeSuspended}
	case math.IsNaN(q.EstimatedPing) || q.EstimatedPing < latency.PingOffset:
		return Prediction{Outcome: OutcomeLowPing}
	case math.IsNaN(q.DistanceToGround) || q.DistanceToGround <= 0:
		return Prediction{Outcome: OutcomeGrounded}
	case math.IsNaN(q.Gravity) || q.Gravity <= 0 || p.TickRate <= 0:
		return Prediction{Outcome: OutcomeNoGravity}
	}

	velocity := q.VerticalVelocity
	if math.IsNaN(velocity) {
		velocity = 0
	}

	apexTicks := ApexTicks(velocity, q.Gravity)
	if apexTicks > p.MaxFallTicks {
		return Prediction{Outcome: OutcomeIndeterminate, ApexTicks: apexTicks}
	}

	height := ApexHeight(velocity, apexTicks, q.Gravity) + q.DistanceToGround
	fallTicks := FallTicks(height, q.Gravity, p.MaxFallTicks)
	if fallTicks == Indeterminate {
		return Prediction{
			Outcome:   OutcomeIndeterminate,
			ApexTicks: apexTicks,
			FallTicks: fallTicks,
		}
	}

	prediction := Prediction{
		ApexTicks: apexTicks,
		FallTicks: fallTicks,
		Lead:      time.Duration(apexTicks+fallTicks) * p.TickDuration(),
	}

	leadMillis := float64(apexTicks+fallTicks) * 1000 / p.TickRate
	switch {
	case q.EstimatedPing < leadMillis:
		prediction.Outcome = OutcomeBehind
	case p.MaxGroundDistance > 0 && q.DistanceToGround > p.MaxGroundDistance:
		prediction.Outcome = OutcomeTooFar
	default:
		prediction.Outcome = OutcomeAhead
	}

	return prediction
}

// ApexTicks is the number of ticks a rising entity needs to stop rising.
func ApexTicks(velocity, gravity float64) int {
	if velocity <= 0 || gravity <= 0 {
		return 0
	}
	return int(math.Ceil(velocity / gravity))
}

// ApexHeight is the height gained over ticks while rising, never negative.
func ApexHeight(velocity float64, ticks int, gravity float64) float64 {
	if velocity <= 0 || ticks <= 0 {
		return 0
	}
	t := float64(ticks)
	return math.Max(0, velocity*t-0.5*gravity*t*t)
}

// FallTicks searches the smallest whole tick count within which an entity
// at rest falls height blocks. It returns Indeterminate if that takes more
// than maxTicks.
func FallTicks(height, gravity float64, maxTicks int) int {
	if gravity <= 0 {
		return Indeterminate
	}

	for ticks := 0; ticks <= maxTicks; ticks++ {
		t := float64(ticks)
		if 0.5*gravity*t*t >= height {
			return ticks
		}
	}

	return Indeterminate
}
