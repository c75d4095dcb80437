// Package ticker is a time.Ticker that can be paused.
package ticker

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

type Ticker struct {
	C <-chan time.Time // The channel on which the ticks are delivered.

	mutex   deadlock.Mutex
	paused  bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
	ticker  *time.Ticker
}

func New(d time.Duration) *Ticker {
	c := make(chan time.Time, 1)
	t := &Ticker{
		C:      c,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ticker: time.NewTicker(d),
	}

	go t.run(c)

	return t
}

func (t *Ticker) run(c chan<- time.Time) {
	defer close(t.done)

	for {
		select {
		case tick := <-t.ticker.C:
			if t.Paused() {
				continue
			}
			// Slow consumers miss ticks rather than receive a backlog
			select {
			case c <- tick:
			default:
			}
		case <-t.stop:
			return
		}
	}
}

// Pause suppresses ticks until Resume is called.
func (t *Ticker) Pause() {
	t.mutex.Lock()
	t.paused = true
	t.mutex.Unlock()
}

func (t *Ticker) Resume() {
	t.mutex.Lock()
	t.paused = false
	t.mutex.Unlock()
}

func (t *Ticker) Paused() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.paused
}

func (t *Ticker) Stop() {
	t.mutex.Lock()
	if t.stopped {
		t.mutex.Unlock()
		return
	}
	t.stopped = true
	t.mutex.Unlock()

	close(t.stop)
	<-t.done
	t.ticker.Stop()
}

func (t *Ticker) Stopped() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stopped
}
