// Package scenario scripts players and hits against the in-memory host.
package scenario

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cfoust/kbsync/pkg/engine"
	"github.com/cfoust/kbsync/pkg/host/sim"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

type Player struct {
	ID        string     `yaml:"id"`
	Position  [3]float64 `yaml:"position"`
	Velocity  [3]float64 `yaml:"velocity"`
	OnGround  bool       `yaml:"onGround"`
	Suspended bool       `yaml:"suspended"`
	Sprinting bool       `yaml:"sprinting"`
	// Defaults to a full charge.
	Cooldown   *float64 `yaml:"cooldown"`
	Knockback  int      `yaml:"knockback"`
	Resistance float64  `yaml:"resistance"`
	// Round trip in milliseconds.
	Latency int `yaml:"latency"`
}

type Hit struct {
	Attacker string `yaml:"attacker"`
	Defender string `yaml:"defender"`
	Tick     int64  `yaml:"tick"`
}

type Scenario struct {
	Floor   float64  `yaml:"floor"`
	Probes  int      `yaml:"probes"`
	Players []Player `yaml:"players"`
	Hits    []Hit    `yaml:"hits"`
}

func Parse(data []byte) (*Scenario, error) {
	var scenario Scenario
	err := yaml.Unmarshal(data, &scenario)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	ids := make(map[string]struct{})
	for _, player := range scenario.Players {
		if player.ID == "" {
			return nil, fmt.Errorf("player without id")
		}
		if _, ok := ids[player.ID]; ok {
			return nil, fmt.Errorf("duplicate player %s", player.ID)
		}
		ids[player.ID] = struct{}{}
	}

	for _, hit := range scenario.Hits {
		for _, id := range []string{hit.Attacker, hit.Defender} {
			if _, ok := ids[id]; !ok {
				return nil, fmt.Errorf("hit refers to unknown player %s", id)
			}
		}
	}

	return &scenario, nil
}

// Load reads a scenario from path, or the built-in one if path is empty.
func Load(path string) (*Scenario, error) {
	if path == "" {
		return Parse(DEFAULT)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func vec(v [3]float64) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[1], v[2]}
}

// Build creates the world and players the scenario describes.
func (s *Scenario) Build() *sim.Host {
	world := sim.NewWorld()
	world.Floor(s.Floor)

	h := sim.New(world)
	for _, p := range s.Players {
		player := sim.NewPlayer(p.ID)
		player.SetPosition(vec(p.Position))
		player.SetVelocity(vec(p.Velocity))
		player.SetOnGround(p.OnGround)
		player.SetSuspended(p.Suspended)
		player.SetSprinting(p.Sprinting)
		if p.Cooldown != nil {
			player.SetAttackCooldown(*p.Cooldown)
		}
		player.SetKnockbackLevel(p.Knockback)
		player.SetLatency(time.Duration(p.Latency) * time.Millisecond)
		h.AddPlayer(player)
	}

	return h
}

// Connect connects every player and applies per-player physics.
func (s *Scenario) Connect(ctx context.Context, e *engine.Engine) error {
	for _, p := range s.Players {
		_, err := e.Connect(ctx, p.ID)
		if err != nil {
			return err
		}

		err = e.SetResistance(p.ID, p.Resistance)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) maxLatency() time.Duration {
	var latency time.Duration
	for _, p := range s.Players {
		if d := time.Duration(p.Latency) * time.Millisecond; d > latency {
			latency = d
		}
	}
	return latency
}

type HitReport struct {
	Tick     int64   `yaml:"tick"`
	Attacker string  `yaml:"attacker"`
	Defender string  `yaml:"defender"`
	Outcome  string  `yaml:"outcome,omitempty"`
	Skip     string  `yaml:"skip,omitempty"`
	Ping     float64 `yaml:"ping"`
	Distance float64 `yaml:"distance"`
	Lead     float64 `yaml:"lead"`
	Applied  bool    `yaml:"applied"`
	Vertical float64 `yaml:"vertical,omitempty"`
}

type PlayerReport struct {
	ID       string  `yaml:"id"`
	Ping     float64 `yaml:"ping"`
	Jitter   float64 `yaml:"jitter"`
	InCombat bool    `yaml:"inCombat"`
}

type Report struct {
	Hits    []HitReport    `yaml:"hits"`
	Players []PlayerReport `yaml:"players"`
}

func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Run measures every player's ping with real probes and then applies the
// hits in tick order. The host's echoes must already be routed to the
// engine.
func (s *Scenario) Run(ctx context.Context, e *engine.Engine) (*Report, error) {
	wait := s.maxLatency() + 50*time.Millisecond
	for i := 0; i < s.Probes; i++ {
		e.ProbeAll()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	hits := make([]Hit, len(s.Hits))
	copy(hits, s.Hits)
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Tick < hits[j].Tick
	})

	report := &Report{}
	for _, hit := range hits {
		adjustment := e.OnDamageEvent(hit.Attacker, hit.Defender, hit.Tick)
		report.Hits = append(report.Hits, HitReport{
			Tick:     hit.Tick,
			Attacker: hit.Attacker,
			Defender: hit.Defender,
			Outcome:  adjustment.Outcome,
			Skip:     string(adjustment.Skip),
			Ping:     adjustment.Ping,
			Distance: adjustment.Distance,
			Lead:     adjustment.Lead,
			Applied:  adjustment.Apply,
			Vertical: adjustment.Vertical,
		})
	}

	for _, p := range s.Players {
		state, err := e.State(p.ID)
		if err != nil {
			return nil, err
		}

		report.Players = append(report.Players, PlayerReport{
			ID:       state.ID,
			Ping:     state.Ping,
			Jitter:   state.Jitter,
			InCombat: state.InCombat,
		})
	}

	return report, nil
}
