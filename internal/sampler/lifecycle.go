package sampler

import "sync"

// commandChannelCapacity and notificationChannelCapacity are generously
// sized buffers standing in for the spec's conceptually unbounded
// command/notification channels. Commands are rare (pause/resume/stop,
// at most one in flight at a time in practice) and notifications are
// naturally rate-limited by each backend's tick rate, so a large fixed
// buffer never blocks the producer in practice while avoiding the
// complexity of a hand-rolled unbounded queue.
const (
	commandChannelCapacity      = 64
	notificationChannelCapacity = 4096
)

// Lifecycle is the common channel/goroutine plumbing every concrete
// backend embeds: the bounded sample channel, the command and
// notification channels, and Stop's join semantics. Backends drive their
// own worker loop and call Lifecycle's helpers from it; Pause/Resume/Stop
// are safe to call from any goroutine (the UI goroutine, by contract).
type Lifecycle struct {
	sampleCh chan Sample
	notifyCh chan Notification
	cmdCh    chan Command

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLifecycle constructs the channel set. sampleCapacity overrides
// SampleChannelCapacity when > 0, for tests that want a tighter bound to
// exercise backpressure.
func NewLifecycle(sampleCapacity int) *Lifecycle {
	if sampleCapacity <= 0 {
		sampleCapacity = SampleChannelCapacity
	}
	return &Lifecycle{
		sampleCh: make(chan Sample, sampleCapacity),
		notifyCh: make(chan Notification, notificationChannelCapacity),
		cmdCh:    make(chan Command, commandChannelCapacity),
	}
}

// SampledChannel implements Sampler.
func (l *Lifecycle) SampledChannel() <-chan Sample { return l.sampleCh }

// NotificationChannel implements Sampler.
func (l *Lifecycle) NotificationChannel() <-chan Notification { return l.notifyCh }

// Emit pushes a sample, blocking if the channel is full — this is the
// backpressure mechanism described in spec.md §5: the backend's own
// worker goroutine slows to match the consumer.
func (l *Lifecycle) Emit(s Sample) { l.sampleCh <- s }

// Notify pushes a notification. Never blocks in practice (see the
// capacity comment above); if it ever did, that would indicate a stuck
// consumer, which is out of scope to defend against here.
func (l *Lifecycle) Notify(n Notification) { l.notifyCh <- n }

// Commands returns the worker-side receive end of the command channel.
func (l *Lifecycle) Commands() <-chan Command { return l.cmdCh }

// Pause requests a transition to Paused.
func (l *Lifecycle) Pause() { l.cmdCh <- CommandPause }

// Resume requests a transition back to Sampling.
func (l *Lifecycle) Resume() { l.cmdCh <- CommandResume }

// Stop requests termination and joins the worker goroutine. Safe to call
// more than once; only the first call has any effect (the others observe
// the worker already gone).
func (l *Lifecycle) Stop() {
	l.stopOnce.Do(func() {
		l.cmdCh <- CommandStop
	})
	l.wg.Wait()
}

// RunWorker registers fn as the worker goroutine body and launches it.
// Stop() blocks until fn returns.
func (l *Lifecycle) RunWorker(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}
