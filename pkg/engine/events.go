package engine

import (
	"time"
)

type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventPing       EventType = "ping"
	EventDamage     EventType = "damage"
	EventCombat     EventType = "combat"
	EventToggle     EventType = "toggle"
)

// Event is published on Engine.Events for diagnostics. Only the fields
// relevant to the event type are set.
type Event struct {
	Type   EventType `cbor:"type" json:"type"`
	Entity string    `cbor:"entity,omitempty" json:"entity,omitempty"`
	Time   time.Time `cbor:"time" json:"time"`

	Ping       float64     `cbor:"ping,omitempty" json:"ping,omitempty"`
	Active     bool        `cbor:"active,omitempty" json:"active,omitempty"`
	Enabled    bool        `cbor:"enabled,omitempty" json:"enabled,omitempty"`
	Attacker   string      `cbor:"attacker,omitempty" json:"attacker,omitempty"`
	Adjustment *Adjustment `cbor:"adjustment,omitempty" json:"adjustment,omitempty"`
}
