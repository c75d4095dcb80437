// Package sim is an in-memory host: a world made of boxes, scriptable
// players and a loopback transport that echoes timing probes after each
// player's simulated latency.
package sim

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cfoust/kbsync/pkg/host"
	"github.com/cfoust/kbsync/pkg/timer"

	"github.com/sasha-s/go-deadlock"
)

type EchoFunc func(entityID string, probeID uint64, arrival time.Time)

type Host struct {
	host.Scheduler

	world   *World
	mutex   deadlock.RWMutex
	players map[string]*Player
	onEcho  EchoFunc
	probes  uint64
	// When set, probes are recorded but never echoed.
	dropEchoes atomic.Bool
}

var _ host.Host = (*Host)(nil)

func New(world *World) *Host {
	return &Host{
		Scheduler: timer.Scheduler{},
		world:     world,
		players:   make(map[string]*Player),
	}
}

func (h *Host) World() host.World {
	return h.world
}

func (h *Host) AddPlayer(player *Player) {
	h.mutex.Lock()
	h.players[player.ID()] = player
	h.mutex.Unlock()
}

func (h *Host) RemovePlayer(id string) {
	h.mutex.Lock()
	delete(h.players, id)
	h.mutex.Unlock()
}

func (h *Host) Player(id string) *Player {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.players[id]
}

func (h *Host) Entity(id string) (host.Entity, bool) {
	player := h.Player(id)
	if player == nil {
		return nil, false
	}
	return player, true
}

// OnEcho sets the function probe echoes are delivered to.
func (h *Host) OnEcho(fn EchoFunc) {
	h.mutex.Lock()
	h.onEcho = fn
	h.mutex.Unlock()
}

func (h *Host) DropEchoes(drop bool) {
	h.dropEchoes.Store(drop)
}

func (h *Host) SendTimingProbe(entityID string) (uint64, error) {
	player := h.Player(entityID)
	if player == nil {
		return 0, fmt.Errorf("no player %s", entityID)
	}

	id := atomic.AddUint64(&h.probes, 1)
	if h.dropEchoes.Load() {
		return id, nil
	}

	time.AfterFunc(player.Latency(), func() {
		h.mutex.RLock()
		onEcho := h.onEcho
		h.mutex.RUnlock()

		if onEcho != nil {
			onEcho(entityID, id, time.Now())
		}
	})

	return id, nil
}
