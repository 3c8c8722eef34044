package statusapi

import (
	"log/slog"
	"sync"
	"time"

	"ocdscope/internal/buffer"
	"ocdscope/internal/sampler"
)

// Session owns the currently running Sampler (if any) and the per-signal
// buffers fed by its sample channel. It is the glue between a Sampler's
// channel-based contract and the request/response HTTP surface: a
// background goroutine drains SampledChannel/NotificationChannel into
// buffers and a small snapshot of status, which handlers read under a
// lock rather than touching the channels directly.
type Session struct {
	log *slog.Logger

	mu           sync.RWMutex
	active       sampler.Sampler
	buffers      map[sampler.SignalID]*buffer.Buffer
	signals      []sampler.SignalDescriptor
	state        sampler.State
	lastNotified time.Time
	lastMessage  string
	autoTruncate bool
	keepSeconds  float64

	done chan struct{}
}

// NewSession returns an empty Session with no sampler attached.
func NewSession(log *slog.Logger) *Session {
	return &Session{
		log:     log,
		buffers: make(map[sampler.SignalID]*buffer.Buffer),
		state:   sampler.Initializing,
	}
}

// Attach replaces the running sampler with s, starting the drain
// goroutine. Any previously attached sampler is stopped first. autoTruncate
// and keepSeconds configure the buffer retention policy (spec.md §4.1/§6.6).
func (sess *Session) Attach(s sampler.Sampler, autoTruncate bool, keepSeconds float64) {
	sess.mu.Lock()
	prev := sess.active
	prevDone := sess.done
	sess.active = s
	sess.buffers = make(map[sampler.SignalID]*buffer.Buffer)
	sess.signals = s.AvailableSignals()
	sess.state = sampler.Initializing
	sess.autoTruncate = autoTruncate
	sess.keepSeconds = keepSeconds
	for _, d := range sess.signals {
		sess.buffers[d.ID] = buffer.New()
	}
	done := make(chan struct{})
	sess.done = done
	sess.mu.Unlock()

	if prev != nil {
		close(prevDone)
		prev.Stop()
	}

	go sess.drain(s, done)
}

func (sess *Session) drain(s sampler.Sampler, done <-chan struct{}) {
	samples := s.SampledChannel()
	notifications := s.NotificationChannel()
	for {
		select {
		case <-done:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			sess.applyNotification(n)
		case samp, ok := <-samples:
			if !ok {
				return
			}
			sess.applySample(samp)
		}
	}
}

func (sess *Session) applyNotification(n sampler.Notification) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastNotified = time.Now()
	switch n.Kind {
	case sampler.KindNewStatus:
		sess.state = n.Status
		sess.lastMessage = n.Status.String()
	case sampler.KindInfo:
		sess.lastMessage = n.Message
		sess.log.Info("sampler notification", "message", n.Message)
	case sampler.KindError:
		sess.lastMessage = n.Message
		sess.log.Error("sampler notification", "message", n.Message)
	}
}

func (sess *Session) applySample(s sampler.Sample) {
	sess.mu.RLock()
	buffers := sess.buffers
	autoTruncate := sess.autoTruncate
	keepSeconds := sess.keepSeconds
	sess.mu.RUnlock()

	t := float64(s.TimestampUS) / 1e6
	for _, v := range s.Values {
		b, ok := buffers[v.ID]
		if !ok {
			continue
		}
		b.Push(t, v.Value)
		if autoTruncate {
			b.Truncate(keepSeconds)
		}
	}
}

// Status is a snapshot of the session's current lifecycle state.
type Status struct {
	State        string
	LastMessage  string
	LastNotified time.Time
	SignalCount  int
	HasSampler   bool
}

// Status returns a snapshot of the session's current state.
func (sess *Session) Status() Status {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return Status{
		State:        sess.state.String(),
		LastMessage:  sess.lastMessage,
		LastNotified: sess.lastNotified,
		SignalCount:  len(sess.signals),
		HasSampler:   sess.active != nil,
	}
}

// Signals returns the currently attached sampler's signal catalog, or nil
// if none is attached.
func (sess *Session) Signals() []sampler.SignalDescriptor {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.signals
}

// SetActiveSignals forwards to the attached sampler, if any.
func (sess *Session) SetActiveSignals(ids []sampler.SignalID) bool {
	sess.mu.RLock()
	s := sess.active
	sess.mu.RUnlock()
	if s == nil {
		return false
	}
	s.SetActiveSignals(ids)
	return true
}

// Buffer returns the buffer for the given signal id, or nil if unknown.
func (sess *Session) Buffer(id sampler.SignalID) *buffer.Buffer {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.buffers[id]
}

// Buffers returns a snapshot copy of the id->Buffer map.
func (sess *Session) Buffers() map[sampler.SignalID]*buffer.Buffer {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	out := make(map[sampler.SignalID]*buffer.Buffer, len(sess.buffers))
	for k, v := range sess.buffers {
		out[k] = v
	}
	return out
}

// Pause, Resume and Stop forward the named lifecycle command to the
// attached sampler. They are no-ops when no sampler is attached.
func (sess *Session) Pause() bool  { return sess.withActive(func(s sampler.Sampler) { s.Pause() }) }
func (sess *Session) Resume() bool { return sess.withActive(func(s sampler.Sampler) { s.Resume() }) }
func (sess *Session) Stop() bool   { return sess.withActive(func(s sampler.Sampler) { s.Stop() }) }

func (sess *Session) withActive(fn func(sampler.Sampler)) bool {
	sess.mu.RLock()
	s := sess.active
	sess.mu.RUnlock()
	if s == nil {
		return false
	}
	fn(s)
	return true
}
