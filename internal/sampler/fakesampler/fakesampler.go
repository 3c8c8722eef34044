// Package fakesampler implements the Simulated Sampler: three synthetic
// sinusoids generated at a configured rate, with no wire dependencies.
// It exists to exercise the UI and buffer layers without hardware.
package fakesampler

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/sampler"
)

// angular frequencies, in radians/second, scaled by 2/pi as specified.
var frequencies = []float64{
	1 * 2 / math.Pi,
	10 * 2 / math.Pi,
	100 * 2 / math.Pi,
}

var signals = []sampler.SignalDescriptor{
	{ID: 0, DisplayName: "sine 2/pi rad/s"},
	{ID: 1, DisplayName: "sine 20/pi rad/s"},
	{ID: 2, DisplayName: "sine 200/pi rad/s"},
}

// Sampler is the Simulated Sampler backend.
type Sampler struct {
	*sampler.Lifecycle

	clock  clockwork.Clock
	period time.Duration

	mu     sync.Mutex
	active map[sampler.SignalID]bool
}

// New starts the worker goroutine and returns a ready Sampler. rate is the
// tick frequency in Hz; clock defaults to clockwork.NewRealClock() when
// nil, letting tests inject a fake clock.
func New(rate float64, clock clockwork.Clock) *Sampler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rate <= 0 {
		rate = 100
	}
	active := make(map[sampler.SignalID]bool, len(signals))
	for _, s := range signals {
		active[s.ID] = true
	}

	s := &Sampler{
		Lifecycle: sampler.NewLifecycle(0),
		clock:     clock,
		period:    time.Duration(float64(time.Second) / rate),
		active:    active,
	}
	s.RunWorker(s.run)
	return s
}

// AvailableSignals implements sampler.Sampler.
func (s *Sampler) AvailableSignals() []sampler.SignalDescriptor {
	out := make([]sampler.SignalDescriptor, len(signals))
	copy(out, signals)
	return out
}

// SetActiveSignals implements sampler.Sampler.
func (s *Sampler) SetActiveSignals(ids []sampler.SignalID) {
	next := make(map[sampler.SignalID]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	s.mu.Lock()
	s.active = next
	s.mu.Unlock()
}

func (s *Sampler) isActive(id sampler.SignalID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

// run is the drift-correcting soft-real-time scheduler from spec §5: the
// target time accumulates by a fixed period regardless of how long any
// single tick actually took, so short overshoots don't compound.
func (s *Sampler) run() {
	s.Notify(sampler.NewStatus(sampler.Sampling))

	var t float64
	last := s.clock.Now()

	for {
		next := last.Add(s.period)
		sleep := next.Sub(s.clock.Now())
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-s.clock.After(sleep):
			last = next
			t += s.period.Seconds()
			s.Emit(s.sampleAt(t))

		case cmd, ok := <-s.Commands():
			if !ok {
				return
			}
			switch cmd {
			case sampler.CommandPause:
				if !s.waitForResumeOrStop() {
					s.Notify(sampler.NewStatus(sampler.Terminated))
					return
				}
				last = s.clock.Now()
			case sampler.CommandStop:
				s.Notify(sampler.NewStatus(sampler.Terminated))
				return
			case sampler.CommandResume:
				// Already running; redundant resume is a no-op.
			}
		}
	}
}

// waitForResumeOrStop blocks on the command channel until Resume (returns
// true) or Stop (returns false).
func (s *Sampler) waitForResumeOrStop() bool {
	s.Notify(sampler.NewStatus(sampler.Paused))
	for cmd := range s.Commands() {
		switch cmd {
		case sampler.CommandResume:
			s.Notify(sampler.NewStatus(sampler.Sampling))
			return true
		case sampler.CommandStop:
			return false
		case sampler.CommandPause:
			// Already paused; redundant.
		}
	}
	return false
}

func (s *Sampler) sampleAt(t float64) sampler.Sample {
	values := make([]sampler.SignalValue, 0, len(signals))
	for i, sig := range signals {
		if !s.isActive(sig.ID) {
			continue
		}
		values = append(values, sampler.SignalValue{
			ID:    sig.ID,
			Value: math.Sin(frequencies[i] * t),
		})
	}
	return sampler.Sample{
		TimestampUS: uint64(t * 1e6),
		Values:      values,
	}
}
