// Package rttsampler implements the RTT Sampler: configures SEGGER RTT
// through an OpenOCD Telnet control session, relays the chosen channel's
// raw bytes over TCP, and decodes them against the JScope schema encoded
// in the channel's name.
package rttsampler

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/openocd"
	"ocdscope/internal/rtt"
	"ocdscope/internal/sampler"
	"ocdscope/internal/tstcp"
)

const (
	controlBlockAddr   = 0x20000000
	controlBlockLength = 131072
	controlBlockID     = "SEGGER RTT"
	adapterSpeedKHz    = 1_000_000
	pollingIntervalMS  = 10
)

// Config configures a single RTT Sampler session.
type Config struct {
	TelnetAddr string // OpenOCD's Telnet control listener, e.g. "127.0.0.1:4444"
	Clock      clockwork.Clock
	Log        *slog.Logger
}

// Sampler is the RTT Sampler backend.
type Sampler struct {
	*sampler.Lifecycle

	clock clockwork.Clock
	log   *slog.Logger

	schema     rtt.Schema
	channel    openocd.Channel
	cbAddr     uint32
	telnetAddr string
	port       int
}

// New performs the synchronous initialization sequence from spec.md §4.8
// (steps 1-7) on the calling goroutine, then spawns the worker goroutine
// that performs the remainder.
func New(cfg Config) (*Sampler, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	tc, err := openocd.Connect(cfg.TelnetAddr)
	if err != nil {
		return nil, fmt.Errorf("rttsampler: connect: %w", err)
	}
	defer tc.Close()

	if err := tc.RTTStop(); err != nil {
		return nil, fmt.Errorf("rttsampler: rtt stop: %w", err)
	}
	if err := tc.RTTSetup(controlBlockAddr, controlBlockLength, controlBlockID); err != nil {
		return nil, fmt.Errorf("rttsampler: rtt setup: %w", err)
	}
	cbAddr, err := tc.RTTStart()
	if err != nil {
		return nil, fmt.Errorf("rttsampler: rtt start: %w", err)
	}
	if _, err := tc.SetAdapterSpeed(adapterSpeedKHz); err != nil {
		return nil, fmt.Errorf("rttsampler: adapter speed: %w", err)
	}
	if err := tc.SetRTTPollingInterval(pollingIntervalMS); err != nil {
		return nil, fmt.Errorf("rttsampler: polling interval: %w", err)
	}

	channels, err := tc.RTTChannels()
	if err != nil {
		return nil, fmt.Errorf("rttsampler: rtt channels: %w", err)
	}
	channel, ok := pickScopeChannel(channels)
	if !ok {
		return nil, errors.New("rttsampler: no up channel with \"scope\" in its name")
	}

	schema, err := rtt.ParseSchema(channel.Name)
	if err != nil {
		return nil, fmt.Errorf("rttsampler: schema: %w", err)
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("rttsampler: free port: %w", err)
	}

	s := &Sampler{
		Lifecycle:  sampler.NewLifecycle(0),
		clock:      clock,
		log:        log,
		schema:     schema,
		channel:    channel,
		cbAddr:     cbAddr,
		telnetAddr: cfg.TelnetAddr,
		port:       port,
	}
	s.RunWorker(s.run)
	return s, nil
}

// pickScopeChannel selects the first Up channel whose lowercased name
// contains "scope", per spec.md §4.8 step 5.
func pickScopeChannel(channels []openocd.Channel) (openocd.Channel, bool) {
	for _, c := range channels {
		if c.Direction == openocd.Up && strings.Contains(strings.ToLower(c.Name), "scope") {
			return c, true
		}
	}
	return openocd.Channel{}, false
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// AvailableSignals implements sampler.Sampler. Names are synthesized from
// field position and kind, since JScope channel names carry no per-field
// labels.
func (s *Sampler) AvailableSignals() []sampler.SignalDescriptor {
	out := make([]sampler.SignalDescriptor, len(s.schema.Fields))
	for i, f := range s.schema.Fields {
		out[i] = sampler.SignalDescriptor{
			ID:          sampler.SignalID(i),
			DisplayName: fmt.Sprintf("%s[%d] (%s%d)", s.channel.Name, i, f.Kind, f.Size),
		}
	}
	return out
}

// SetActiveSignals is a no-op: the RTT backend streams a fixed wire
// schema and every field is always emitted, per spec.md §4.5's note that
// fixed-schema backends may ignore the request.
func (s *Sampler) SetActiveSignals(ids []sampler.SignalID) {}

func (s *Sampler) run() {
	tc, err := openocd.Connect(s.telnetAddr)
	if err != nil {
		s.fatal(fmt.Sprintf("reopen control: %v", err))
		return
	}
	defer tc.Close()

	if err := tc.RTTServerStart(s.port, s.channel.ID); err != nil {
		s.fatal(fmt.Sprintf("rtt server start: %v", err))
		return
	}
	defer tc.RTTServerStop(s.port)

	data, err := tstcp.Dial(fmt.Sprintf("127.0.0.1:%d", s.port), s.log)
	if err != nil {
		s.fatal(fmt.Sprintf("data connect: %v", err))
		return
	}
	defer data.Close()

	if err := s.synchronize(tc, data); err != nil {
		s.fatal(fmt.Sprintf("synchronize: %v", err))
		return
	}

	s.Notify(sampler.NewStatus(sampler.Sampling))
	s.mainLoop(data)
}

// synchronize implements the halt-drain-resume framing guarantee from
// spec.md §4.8 step 3: SEGGER RTT writes one packet atomically per ring
// buffer operation, so draining the socket while the target is halted
// guarantees the next byte read begins a fresh packet.
func (s *Sampler) synchronize(tc *openocd.Client, data *tstcp.Stream) error {
	if err := tc.Halt(); err != nil {
		s.log.Warn("rttsampler: halt failed, assuming already halted", "error", err)
	}

	drainBuf := make([]byte, 4096)
	for {
		if err := data.SetReadDeadline(time.Now().Add(20 * time.Millisecond)); err != nil {
			return err
		}
		_, _, err := data.Receive(drainBuf)
		if err != nil {
			break // WouldBlock/Timeout: drained
		}
	}

	return tc.Resume()
}

func (s *Sampler) fatal(msg string) {
	s.Notify(sampler.Err(msg))
	s.Notify(sampler.NewStatus(sampler.Terminated))
}

// mainLoop reads up to one buffer-size chunk per iteration with a timeout
// equal to the polling interval, decoding and emitting one Sample per
// whole packet accumulated, per spec.md §4.8.
func (s *Sampler) mainLoop(data *tstcp.Stream) {
	packetSize := s.schema.PacketSize()
	readBuf := make([]byte, s.channel.BufferSize)
	var acc []byte

	start := s.clock.Now()
	samplesThisSecond := 0
	secondStart := s.clock.Now()

	for {
		select {
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
			case sampler.CommandStop:
				s.Notify(sampler.NewStatus(sampler.Terminated))
				return
			case sampler.CommandResume:
			}
			continue
		default:
		}

		if err := data.SetReadDeadline(s.clock.Now().Add(pollingIntervalMS * time.Millisecond)); err != nil {
			s.fatal(fmt.Sprintf("set deadline: %v", err))
			return
		}
		n, _, err := data.Receive(readBuf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			s.fatal(fmt.Sprintf("read: %v", err))
			return
		}
		acc = append(acc, readBuf[:n]...)

		for len(acc) >= packetSize {
			pkt, err := s.schema.Decode(acc[:packetSize])
			if err != nil {
				s.fatal(fmt.Sprintf("decode: %v", err))
				return
			}
			acc = acc[packetSize:]

			ts := uint64(pkt.TimestampUS)
			if !pkt.HasTimestamp {
				ts = uint64(s.clock.Now().Sub(start) / time.Microsecond)
			}
			values := make([]sampler.SignalValue, len(pkt.Values))
			for i, v := range pkt.Values {
				values[i] = sampler.SignalValue{ID: sampler.SignalID(i), Value: float64(v)}
			}
			s.Emit(sampler.Sample{TimestampUS: ts, Values: values})
			samplesThisSecond++
		}

		if elapsed := s.clock.Now().Sub(secondStart); elapsed >= time.Second {
			s.Notify(sampler.Info(fmt.Sprintf("%d samples/s", samplesThisSecond)))
			samplesThisSecond = 0
			secondStart = s.clock.Now()
		}
	}
}

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
		}
	}
	return false
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
