// Package timer provides the cancellable delayed callbacks that back
// combat windows.
package timer

import (
	"time"

	"github.com/cfoust/kbsync/pkg/host"

	"github.com/sasha-s/go-deadlock"
)

const (
	stateIdle = iota
	stateActive
	stateExpired
	stateStopped
)

// Timer runs a function once after its duration elapses. Unlike
// time.Timer it knows whether it fired, was stopped or is still pending.
type Timer struct {
	t  *time.Timer
	fn func()

	mutex     deadlock.Mutex
	state     int
	duration  time.Duration
	startedAt time.Time
}

// AfterFunc returns an idle Timer that calls f in its own goroutine once
// Start has been called and d has elapsed.
func AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{
		duration: d,
	}
	t.fn = func() {
		t.mutex.Lock()
		if t.state != stateActive {
			t.mutex.Unlock()
			return
		}
		t.state = stateExpired
		t.mutex.Unlock()

		f()
	}
	return t
}

func (t *Timer) Start() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != stateIdle {
		return false
	}
	t.startedAt = time.Now()
	t.state = stateActive
	t.t = time.AfterFunc(t.duration, t.fn)
	return true
}

// Stop prevents the Timer from firing. It returns false if the Timer
// already fired or was never started.
func (t *Timer) Stop() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != stateActive {
		return false
	}
	t.state = stateStopped
	t.t.Stop()
	return true
}

func (t *Timer) Expired() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state == stateExpired
}

// TimeLeft is safe to call on a nil Timer and returns 0 in that case.
func (t *Timer) TimeLeft() time.Duration {
	if t == nil {
		return 0
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch t.state {
	case stateIdle:
		return t.duration
	case stateActive:
		left := t.duration - time.Since(t.startedAt)
		if left < 0 {
			return 0
		}
		return left
	default:
		return 0
	}
}

// Scheduler is a host.Scheduler backed by wall clock Timers.
type Scheduler struct{}

var _ host.Scheduler = Scheduler{}

func (Scheduler) After(d time.Duration, fn func()) host.Handle {
	t := AfterFunc(d, fn)
	t.Start()
	return t
}
