// Package combat tracks which entities were recently damaged.
//
// Every damage event opens a combat window for the defender. Opening a
// window that is already open refreshes it: the pending expiry is cancelled
// and a new one is scheduled, so at most one expiry is ever live per
// entity. Each window carries a generation counter. An expiry that fires
// after its window was refreshed or closed sees a newer generation and
// does nothing.
package combat

import (
	"time"

	"github.com/cfoust/kbsync/pkg/host"

	"github.com/cespare/xxhash/v2"
	"github.com/sasha-s/go-deadlock"
)

type Window struct {
	mutex      deadlock.Mutex
	active     bool
	generation uint64
	handle     host.Handle
}

func (w *Window) Active() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.active
}

func (w *Window) Generation() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.generation
}

type windowShard struct {
	mutex   deadlock.RWMutex
	windows map[string]*Window
}

type Tracker struct {
	registry  *Registry
	scheduler host.Scheduler
	shards    [numShards]windowShard

	// OnChange, if set, is called whenever an entity enters or leaves
	// combat. It is never called with a window lock held.
	OnChange func(id string, active bool)
}

func NewTracker(scheduler host.Scheduler, registry *Registry) *Tracker {
	t := &Tracker{
		registry:  registry,
		scheduler: scheduler,
	}
	for i := range t.shards {
		t.shards[i].windows = make(map[string]*Window)
	}
	return t
}

func (t *Tracker) Registry() *Registry {
	return t.registry
}

func (t *Tracker) shard(id string) *windowShard {
	return &t.shards[xxhash.Sum64String(id)%numShards]
}

func (t *Tracker) lookup(id string) *Window {
	shard := t.shard(id)
	shard.mutex.RLock()
	window := shard.windows[id]
	shard.mutex.RUnlock()
	return window
}

// Track creates the window for an entity. It is a no-op if one exists.
func (t *Tracker) Track(id string) *Window {
	shard := t.shard(id)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	window, ok := shard.windows[id]
	if !ok {
		window = &Window{}
		shard.windows[id] = window
	}
	return window
}

// Forget closes the entity's window and drops it.
func (t *Tracker) Forget(id string) {
	t.Close(id, true)

	shard := t.shard(id)
	shard.mutex.Lock()
	delete(shard.windows, id)
	shard.mutex.Unlock()
}

// Open opens or refreshes the combat window of an entity. The entity is
// visible in the registry before Open returns.
func (t *Tracker) Open(id string, duration time.Duration) {
	window := t.lookup(id)
	if window == nil {
		window = t.Track(id)
	}

	window.mutex.Lock()
	if window.handle != nil {
		window.handle.Stop()
	}

	window.generation++
	generation := window.generation
	wasActive := window.active
	window.active = true
	t.registry.Add(id)

	window.handle = t.scheduler.After(duration, func() {
		t.expire(id, window, generation)
	})
	window.mutex.Unlock()

	if !wasActive {
		t.notify(id, true)
	}
}

func (t *Tracker) expire(id string, window *Window, generation uint64) {
	window.mutex.Lock()
	if window.generation != generation || !window.active {
		window.mutex.Unlock()
		return
	}

	window.active = false
	window.handle = nil
	t.registry.Remove(id)
	window.mutex.Unlock()

	t.notify(id, false)
}

// Close ends the entity's combat window early. If viaCancellation is set
// the pending expiry is cancelled as well; otherwise it is left to fire
// and is ignored when it does. Closing a closed window does nothing.
func (t *Tracker) Close(id string, viaCancellation bool) {
	window := t.lookup(id)
	if window == nil {
		t.registry.Remove(id)
		return
	}

	window.mutex.Lock()
	if !window.active {
		window.mutex.Unlock()
		return
	}

	if viaCancellation && window.handle != nil {
		window.handle.Stop()
	}

	window.generation++
	window.active = false
	window.handle = nil
	t.registry.Remove(id)
	window.mutex.Unlock()

	t.notify(id, false)
}

func (t *Tracker) IsActive(id string) bool {
	return t.registry.Contains(id)
}

// TimeLeft returns how long the entity's window stays open, or 0.
func (t *Tracker) TimeLeft(id string) time.Duration {
	window := t.lookup(id)
	if window == nil {
		return 0
	}

	window.mutex.Lock()
	defer window.mutex.Unlock()
	if !window.active || window.handle == nil {
		return 0
	}
	return window.handle.TimeLeft()
}

func (t *Tracker) notify(id string, active bool) {
	if t.OnChange != nil {
		t.OnChange(id, active)
	}
}
