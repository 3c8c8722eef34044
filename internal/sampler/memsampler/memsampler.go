// Package memsampler implements the Memory Sampler: periodic polling of
// configured target memory words over a GDB Remote connection, with
// optional signal discovery from an ELF symbol table.
package memsampler

import (
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/gdbremote"
	"ocdscope/internal/sampler"
)

// Address is a 32-bit target memory address.
type Address = uint32

// Watch pairs a signal id with the address polled for it.
type Watch struct {
	ID      sampler.SignalID
	Addr    Address
	Display string
}

// Sampler is the Memory Sampler backend.
type Sampler struct {
	*sampler.Lifecycle

	addr   string
	rate   float64
	clock  clockwork.Clock
	log    *slog.Logger
	client *gdbremote.Client

	watches   []Watch
	watchByID map[sampler.SignalID]Watch

	mu     sync.Mutex
	active []sampler.SignalID
}

// New opens a GDB Remote connection to addr and returns a ready Sampler.
// watches is the full catalog of pollable addresses; elfPath, when
// non-empty, is additionally parsed and its 4-byte object/common/TLS
// symbols are appended to the catalog (AvailableSignals only — they
// aren't polled until set_active_signals names them).
func New(addr string, rate float64, watches []Watch, elfPath string, clock clockwork.Clock, log *slog.Logger) (*Sampler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if rate <= 0 {
		rate = 10
	}

	client, err := gdbremote.Connect(addr, log)
	if err != nil {
		return nil, fmt.Errorf("memsampler: %w", err)
	}

	if err := handshake(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("memsampler: handshake: %w", err)
	}

	all := append([]Watch(nil), watches...)
	if elfPath != "" {
		symWatches, err := symbolsFromELF(elfPath, len(all))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("memsampler: elf: %w", err)
		}
		all = append(all, symWatches...)
	}

	byID := make(map[sampler.SignalID]Watch, len(all))
	for _, w := range all {
		byID[w.ID] = w
	}

	s := &Sampler{
		Lifecycle: sampler.NewLifecycle(0),
		addr:      addr,
		rate:      rate,
		clock:     clock,
		log:       log,
		client:    client,
		watches:   all,
		watchByID: byID,
	}
	s.RunWorker(s.run)
	return s, nil
}

// handshake performs the connection preamble from spec.md §4.7 step 1:
// confirm the initial Ack, then negotiate no-ack mode.
func handshake(c *gdbremote.Client) error {
	resp, _, err := c.ReadResponse()
	if err != nil {
		return fmt.Errorf("initial ack: %w", err)
	}
	if resp.Kind != gdbremote.KindAck {
		return fmt.Errorf("expected initial ack, got %v", resp.Kind)
	}

	if _, err := c.SendPacket("QStartNoAckMode"); err != nil {
		return err
	}
	resp, _, err = c.ReadResponse()
	if err != nil {
		return fmt.Errorf("QStartNoAckMode ack: %w", err)
	}
	if resp.Kind != gdbremote.KindAck {
		return fmt.Errorf("expected ack after QStartNoAckMode, got %v", resp.Kind)
	}

	resp, _, err = c.ReadResponse()
	if err != nil {
		return fmt.Errorf("QStartNoAckMode reply: %w", err)
	}
	if resp.Kind != gdbremote.KindPacket || string(resp.Body) != "OK" {
		return fmt.Errorf("expected OK, got %q", resp.Body)
	}
	return nil
}

// AvailableSignals implements sampler.Sampler.
func (s *Sampler) AvailableSignals() []sampler.SignalDescriptor {
	out := make([]sampler.SignalDescriptor, len(s.watches))
	for i, w := range s.watches {
		out[i] = sampler.SignalDescriptor{ID: w.ID, DisplayName: w.Display}
	}
	return out
}

// SetActiveSignals implements sampler.Sampler.
func (s *Sampler) SetActiveSignals(ids []sampler.SignalID) {
	kept := make([]sampler.SignalID, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.watchByID[id]; ok {
			kept = append(kept, id)
		}
	}
	s.mu.Lock()
	s.active = kept
	s.mu.Unlock()
}

// activeSnapshot returns the currently active watch list, safe for
// concurrent use alongside SetActiveSignals.
func (s *Sampler) activeSnapshot() []sampler.SignalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sampler) run() {
	defer s.client.Close()

	if _, err := s.client.SendPacket("c"); err != nil {
		s.Notify(sampler.Err(fmt.Sprintf("continue: %v", err)))
		s.Notify(sampler.NewStatus(sampler.Terminated))
		return
	}
	s.Notify(sampler.NewStatus(sampler.Sampling))

	period := time.Duration(float64(time.Second) / s.rate)
	start := s.clock.Now()
	last := start

	for {
		next := last.Add(period)
		sleep := next.Sub(s.clock.Now())
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-s.clock.After(sleep):
			lag := s.clock.Now().Sub(next)
			if lag > period/2 {
				s.Notify(sampler.Info(fmt.Sprintf("tick lagging by %v", lag)))
			}
			last = next

			sample, err := s.poll(uint64(s.clock.Now().Sub(start) / time.Microsecond))
			if err != nil {
				s.Notify(sampler.Err(err.Error()))
				s.Notify(sampler.NewStatus(sampler.Terminated))
				return
			}
			s.Emit(sample)

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
			}
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

// poll reads every active address's current value and assembles one
// Sample, per spec.md §4.7 step 3.
func (s *Sampler) poll(timestampUS uint64) (sampler.Sample, error) {
	active := s.activeSnapshot()
	values := make([]sampler.SignalValue, 0, len(active))
	for _, id := range active {
		w := s.watchByID[id]
		v, err := s.readWord(w.Addr)
		if err != nil {
			return sampler.Sample{}, fmt.Errorf("read %s (0x%08x): %w", w.Display, w.Addr, err)
		}
		values = append(values, sampler.SignalValue{ID: id, Value: v})
	}
	return sampler.Sample{TimestampUS: timestampUS, Values: values}, nil
}

// readWord issues `m <addr:08x>,4` and parses the reply, skipping any
// number of "O" keep-alive packets the target emits while running.
func (s *Sampler) readWord(addr Address) (float64, error) {
	if _, err := s.client.SendPacket(fmt.Sprintf("m %08x,4", addr)); err != nil {
		return 0, err
	}
	for {
		resp, _, err := s.client.ReadResponse()
		if err != nil {
			return 0, err
		}
		if resp.Kind != gdbremote.KindPacket {
			continue
		}
		body := string(resp.Body)
		if body == "O" {
			continue // keep-alive during target execution
		}
		return decodeWord(body)
	}
}

// decodeWord applies the reinterpretation convention from spec.md §4.7:
// GDB emits the word's bytes as big-endian hex text, but the bytes
// represent a little-endian 32-bit word in target memory. Converting the
// parsed big-endian uint32 back to bytes and reading those little-endian
// recovers the original in-memory byte order, which is then reinterpreted
// as an IEEE-754 f32.
func decodeWord(hexBody string) (float64, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexBody))
	if err != nil || len(raw) != 4 {
		return 0, fmt.Errorf("not a 4-byte hex word: %q", hexBody)
	}
	u32 := binary.BigEndian.Uint32(raw)
	var beBytes [4]byte
	binary.BigEndian.PutUint32(beBytes[:], u32)
	leWord := binary.LittleEndian.Uint32(beBytes[:])
	return float64(math.Float32frombits(leWord)), nil
}

// symbolsFromELF parses path and returns a Watch per retained symbol, per
// spec.md §4.7's ELF enumeration rule: object/common/TLS symbols of
// exactly 4 bytes whose value fits in 32 bits.
func symbolsFromELF(path string, idOffset int) ([]Watch, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	var watches []Watch
	for _, sym := range syms {
		typ := elf.ST_TYPE(sym.Info)
		if typ != elf.STT_OBJECT && typ != elf.STT_COMMON && typ != elf.STT_TLS {
			continue
		}
		if sym.Size != 4 {
			continue
		}
		if sym.Value > math.MaxUint32 {
			continue
		}
		if sym.Name == "" {
			continue
		}
		watches = append(watches, Watch{
			ID:      sampler.SignalID(idOffset + len(watches)),
			Addr:    Address(sym.Value),
			Display: fmt.Sprintf("%s (0x%08x)", sym.Name, sym.Value),
		})
	}
	return watches, nil
}
