package latency

import (
	"math"
	"time"

	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

const (
	// PingOffset is subtracted from every ping sample to account for the
	// time the server spends between flushing a probe and reading its echo.
	// Ground prediction thresholds are tuned against this value.
	PingOffset = 25.0

	// MinPing is the floor of the compensated ping.
	MinPing = 1.0

	DefaultSpikeThreshold = 20.0

	// Gain of the jitter filter, as in RFC 3550.
	jitterGain = 1.0 / 16.0
)

type Settings struct {
	// A sample that exceeds the previous one by more than this many
	// milliseconds is treated as a spike and ignored.
	SpikeThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		SpikeThreshold: DefaultSpikeThreshold,
	}
}

// Estimator tracks the round-trip samples of one connection.
type Estimator struct {
	settings Settings

	mutex    deadlock.RWMutex
	current  opt.Option[float64]
	previous opt.Option[float64]
	jitter   float64

	lastProbeID   uint64
	lastProbeSent time.Time
	outstanding   bool
}

func New(settings Settings) *Estimator {
	return &Estimator{
		settings: settings,
		current:  opt.None[float64](),
		previous: opt.None[float64](),
	}
}

// ProbeSent records a probe that was just written to the connection.
// Any previously outstanding probe is forgotten.
func (e *Estimator) ProbeSent(id uint64, sentAt time.Time) {
	e.mutex.Lock()
	e.lastProbeID = id
	e.lastProbeSent = sentAt
	e.outstanding = true
	e.mutex.Unlock()
}

// IsProbeOurs reports whether id matches the outstanding probe.
func (e *Estimator) IsProbeOurs(id uint64) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.outstanding && id == e.lastProbeID
}

// RecordProbeEcho applies the echo of a timing probe. Echoes that do not
// match the outstanding probe are discarded and false is returned.
func (e *Estimator) RecordProbeEcho(id uint64, receivedAt time.Time) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.outstanding || id != e.lastProbeID {
		return false
	}
	e.outstanding = false

	sample := float64(receivedAt.Sub(e.lastProbeSent)) / float64(time.Millisecond)
	if sample < 0 {
		sample = 0
	}

	e.previous = e.current
	e.current = opt.Some(sample)

	if !opt.IsNone(e.previous) {
		delta := math.Abs(sample - e.previous.Value)
		e.jitter += (delta - e.jitter) * jitterGain
	}

	return true
}

// Samples returns the current and previous raw samples as one consistent
// pair.
func (e *Estimator) Samples() (current opt.Option[float64], previous opt.Option[float64]) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.current, e.previous
}

func (e *Estimator) Jitter() float64 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.jitter
}

// EstimatedPing returns the compensated one-way ping in milliseconds.
// measured is the host's own reading and stands in for any sample that has
// not been observed yet.
func (e *Estimator) EstimatedPing(measured float64) float64 {
	current, previous := e.Samples()
	return Compensate(
		orElse(current, measured),
		orElse(previous, measured),
		e.settings.SpikeThreshold,
	)
}

// Compensate picks between the current and previous sample, rejecting a
// sudden spike, and removes PingOffset. The result is never below MinPing.
func Compensate(current, previous, spikeThreshold float64) float64 {
	ping := current
	if current-previous > spikeThreshold {
		ping = previous
	}

	return math.Max(MinPing, ping-PingOffset)
}

func orElse(value opt.Option[float64], fallback float64) float64 {
	if opt.IsNone(value) {
		return math.Max(0, fallback)
	}
	return value.Value
}
