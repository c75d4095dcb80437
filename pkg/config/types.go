package config

import (
	"time"

	"github.com/cfoust/kbsync/pkg/ground"
	"github.com/cfoust/kbsync/pkg/latency"
	"github.com/cfoust/kbsync/pkg/store"
)

type LatencySettings struct {
	SpikeThreshold float64
	// Milliseconds
	ProbeInterval int
	EchoBurst     int
}

type GroundSettings struct {
	TickRate          float64
	MaxFallTicks      int
	MaxGroundDistance float64
	MaxProbeDistance  float64
	Width             float64
	Inset             float64
	Gravity           float64
}

type CombatSettings struct {
	// Milliseconds
	Window       int
	ReentryTicks int
}

type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

type StoreSettings struct {
	Type  string
	Path  string
	Redis RedisSettings
}

type DiagnosticsSettings struct {
	Enabled bool
	Port    int
}

type Config struct {
	Enabled     bool
	Latency     LatencySettings
	Ground      GroundSettings
	Combat      CombatSettings
	Store       StoreSettings
	Diagnostics DiagnosticsSettings
}

func (c *Config) LatencySettings() latency.Settings {
	return latency.Settings{
		SpikeThreshold: c.Latency.SpikeThreshold,
	}
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Latency.ProbeInterval) * time.Millisecond
}

func (c *Config) GroundSettings() ground.Settings {
	return ground.Settings{
		TickRate:          c.Ground.TickRate,
		MaxFallTicks:      c.Ground.MaxFallTicks,
		MaxGroundDistance: c.Ground.MaxGroundDistance,
	}
}

func (c *Config) Footprint() ground.Footprint {
	return ground.Footprint{
		Width:            c.Ground.Width,
		Inset:            c.Ground.Inset,
		MaxProbeDistance: c.Ground.MaxProbeDistance,
	}
}

func (c *Config) CombatWindow() time.Duration {
	return time.Duration(c.Combat.Window) * time.Millisecond
}

func (c *Config) StoreSettings() store.Settings {
	return store.Settings{
		Type: store.Type(c.Store.Type),
		Path: c.Store.Path,
		Redis: store.RedisSettings{
			Address:  c.Store.Redis.Address,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
		},
	}
}
