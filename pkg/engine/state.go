package engine

import (
	"github.com/repeale/fp-go/option"
)

// State is a snapshot of a connected entity.
type State struct {
	ID       string   `json:"id"`
	Ping     float64  `json:"ping"`
	Jitter   float64  `json:"jitter"`
	Current  *float64 `json:"current,omitempty"`
	Previous *float64 `json:"previous,omitempty"`
	Measured float64  `json:"measured"`
	InCombat bool     `json:"inCombat"`
	Disabled bool     `json:"disabled"`

	Gravity          float64  `json:"gravity"`
	Resistance       float64  `json:"resistance"`
	VerticalVelocity *float64 `json:"verticalVelocity,omitempty"`
	LastDamageTick   *int64   `json:"lastDamageTick,omitempty"`
}

func toPointer[T any](value opt.Option[T]) *T {
	if opt.IsNone(value) {
		return nil
	}
	v := value.Value
	return &v
}

func (e *Engine) state(entity *Entity) State {
	current, previous := entity.Latency.Samples()

	entity.mutex.Lock()
	physics := entity.physics
	disabled := entity.disabled
	entity.mutex.Unlock()

	return State{
		ID:               entity.ID,
		Ping:             entity.EstimatedPing(),
		Jitter:           entity.Latency.Jitter(),
		Current:          toPointer(current),
		Previous:         toPointer(previous),
		Measured:         entity.Host.MeasuredPing(),
		InCombat:         e.IsInCombat(entity.ID),
		Disabled:         disabled,
		Gravity:          physics.Gravity,
		Resistance:       physics.KnockbackResistance,
		VerticalVelocity: toPointer(physics.VerticalVelocity),
		LastDamageTick:   toPointer(physics.LastDamageTick),
	}
}

func (e *Engine) State(id string) (State, error) {
	entity, err := e.entity(id)
	if err != nil {
		return State{}, err
	}
	return e.state(entity), nil
}

// States returns a snapshot of every connected entity.
func (e *Engine) States() []State {
	e.mutex.RLock()
	entities := make([]*Entity, 0, len(e.entities))
	for _, entity := range e.entities {
		entities = append(entities, entity)
	}
	e.mutex.RUnlock()

	states := make([]State, 0, len(entities))
	for _, entity := range entities {
		states = append(states, e.state(entity))
	}
	return states
}
