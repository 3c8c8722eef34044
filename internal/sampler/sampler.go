// Package sampler defines the contract and lifecycle shared by all
// acquisition backends (simulated, memory-polling, RTT): the state
// machine, the sample/notification/command channels, and the concurrency
// model each backend's worker goroutine must honor.
package sampler

import "fmt"

// SignalID identifies a signal; see buffer.SignalID for the full
// contract. Duplicated here (as a type alias) so this package doesn't
// need to import buffer for a bare uint32.
type SignalID = uint32

// State is a value from the sampler's state machine. Initial state is
// Initializing; Terminated is absorbing.
type State int

const (
	Initializing State = iota
	Sampling
	Paused
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Sampling:
		return "Sampling"
	case Paused:
		return "Paused"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SignalValue is one (signal, value) pair within a Sample.
type SignalValue struct {
	ID    SignalID
	Value float64
}

// Sample is one (timestamp, values) tuple produced by a sampler. Values
// may be a subset of the active signals; which subset is backend-defined.
type Sample struct {
	TimestampUS uint64
	Values      []SignalValue
}

// NotificationKind distinguishes the three shapes of Notification.
type NotificationKind int

const (
	KindNewStatus NotificationKind = iota
	KindInfo
	KindError
)

// Notification is a lifecycle or diagnostic event emitted by a sampler's
// worker goroutine.
type Notification struct {
	Kind    NotificationKind
	Status  State  // valid when Kind == KindNewStatus
	Message string // valid when Kind == KindInfo or KindError
}

func NewStatus(s State) Notification { return Notification{Kind: KindNewStatus, Status: s} }
func Info(msg string) Notification   { return Notification{Kind: KindInfo, Message: msg} }
func Err(msg string) Notification    { return Notification{Kind: KindError, Message: msg} }

// SignalDescriptor is one entry of available_signals(): an id paired with
// a human-readable name.
type SignalDescriptor struct {
	ID          SignalID
	DisplayName string
}

// Command is sent over the single-producer command channel from the UI
// goroutine to a sampler's worker goroutine. The channel is a fixed-size
// buffer (commandChannelCapacity), not an unbounded queue.
type Command int

const (
	CommandPause Command = iota
	CommandResume
	CommandStop
)

// SampleChannelCapacity is the default bound for the sample channel. A
// full channel blocks the sampler's send, providing backpressure: the
// sampler slows to match the consumer rather than dropping data.
const SampleChannelCapacity = 4096

// Sampler is the contract shared by all three concrete backends. Backends
// are selected at runtime; the UI only ever depends on this interface, so
// the underlying concrete type — fakesampler, memsampler or rttsampler —
// is invisible to it. Ownership of wire sessions (TCP streams, Telnet
// sessions) is exclusive to the sampler that opened them, released on
// Stop.
type Sampler interface {
	// AvailableSignals returns the full signal catalog this sampler can
	// produce. For backends with a fixed wire schema (RTT) this never
	// changes after construction; for the memory sampler it reflects any
	// ELF symbol table supplied at construction time.
	AvailableSignals() []SignalDescriptor

	// SetActiveSignals requests that future samples cover (at most) this
	// set. Backends that stream a fixed schema (RTT) may ignore the
	// request; see SPEC_FULL.md / DESIGN.md for the per-backend policy.
	SetActiveSignals(ids []SignalID)

	// SampledChannel is the consumer end of the bounded Sample channel.
	SampledChannel() <-chan Sample

	// NotificationChannel is the consumer end of the Notification
	// channel, a fixed-size buffer (notificationChannelCapacity) rather
	// than an unbounded queue.
	NotificationChannel() <-chan Notification

	// Pause requests a transition to Paused. At-most-once delivery: a
	// second call before the worker observes the first is a no-op.
	Pause()

	// Resume requests a transition back to Sampling.
	Resume()

	// Stop requests termination and joins the worker goroutine. After
	// Stop returns, the sampler has released every wire resource it
	// owned.
	Stop()
}
