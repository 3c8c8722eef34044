// Package tstcp implements a TCP stream that attaches a Timestamp to every
// send and receive. On Linux the socket is configured for kernel RX/TX
// software timestamping (SO_TIMESTAMPING_NEW); every other platform, and
// any per-call failure to obtain a kernel timestamp, falls back to a wall
// clock reading taken immediately after the syscall returns.
package tstcp

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Provenance distinguishes a kernel-stack timestamp from a wall-clock
// fallback, so jitter-sensitive consumers (the RTT auto-synchronizer, lag
// diagnostics) can tell the difference.
type Provenance int

const (
	// ByTCPStack means the timestamp was read from a kernel timestamping
	// control message delivered alongside the data.
	ByTCPStack Provenance = iota
	// FallbackClock means the timestamp is a wall-clock reading taken
	// immediately after the syscall returned.
	FallbackClock
)

func (p Provenance) String() string {
	if p == ByTCPStack {
		return "kernel"
	}
	return "fallback"
}

// Timestamp pairs a time with its provenance.
type Timestamp struct {
	Time       time.Time
	Provenance Provenance
}

// Stream wraps a *net.TCPConn with timestamped Send/Receive. The zero value
// is not usable; construct with Dial.
type Stream struct {
	conn *net.TCPConn
	log  *slog.Logger

	timestampingEnabled bool
	fd                  int // only valid when timestampingEnabled

	// readDeadline mirrors whatever was last passed to SetDeadline or
	// SetReadDeadline. The raw recvmsg path used for RX timestamps
	// bypasses the runtime poller, so it cannot observe a deadline set on
	// conn directly; this field is how Receive tells it what to honor.
	readDeadline time.Time
}

// Dial opens a TCP connection to addr and attempts to enable kernel
// RX/TX timestamping on the socket. Failure to enable timestamping is not
// fatal: the stream remains usable and falls back to wall-clock readings,
// with a warning logged through log.
func Dial(addr string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tstcp: dial %s: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("tstcp: dial %s: not a TCP connection", addr)
	}

	s := &Stream{conn: tcpConn, log: log}
	fd, enabled, err := enableTimestamping(tcpConn)
	if err != nil {
		log.Warn("tstcp: kernel timestamping unavailable, falling back to wall clock", "addr", addr, "error", err)
	}
	s.fd = fd
	s.timestampingEnabled = enabled
	return s, nil
}

// TimestampingEnabled reports whether kernel timestamping was successfully
// configured for this stream.
func (s *Stream) TimestampingEnabled() bool {
	return s.timestampingEnabled
}

// SetDeadline forwards to the underlying connection.
func (s *Stream) SetDeadline(t time.Time) error {
	s.readDeadline = t
	return s.conn.SetDeadline(t)
}

// SetReadDeadline forwards to the underlying connection.
func (s *Stream) SetReadDeadline(t time.Time) error {
	s.readDeadline = t
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline forwards to the underlying connection.
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

// Send writes p and returns the TX timestamp of the segment that carried
// it: read from the socket's error queue when kernel timestamping is
// enabled, otherwise the wall clock immediately after Write returns.
func (s *Stream) Send(p []byte) (Timestamp, error) {
	if _, err := s.conn.Write(p); err != nil {
		return Timestamp{}, fmt.Errorf("tstcp: write: %w", err)
	}
	if s.timestampingEnabled {
		if t, err := readTXTimestamp(s.fd); err == nil {
			return Timestamp{Time: t, Provenance: ByTCPStack}, nil
		} else {
			s.log.Error("tstcp: TX timestamp cmsg missing, falling back to wall clock", "error", err)
		}
	}
	return Timestamp{Time: time.Now(), Provenance: FallbackClock}, nil
}

// Receive reads into buf and returns the number of bytes read and the RX
// timestamp of the segment that delivered them.
func (s *Stream) Receive(buf []byte) (int, Timestamp, error) {
	if s.timestampingEnabled {
		n, t, err := readRXTimestamp(s.fd, buf, s.readDeadline)
		if err == nil {
			return n, Timestamp{Time: t, Provenance: ByTCPStack}, nil
		}
		if isTimeout(err) {
			return 0, Timestamp{}, err
		}
		s.log.Error("tstcp: RX timestamp cmsg missing, falling back to wall clock", "error", err)
		if n > 0 {
			// recvmsg already dequeued these bytes from the kernel; reading
			// conn again would fetch a later segment and silently drop them.
			return n, Timestamp{Time: time.Now(), Provenance: FallbackClock}, nil
		}
	}
	n, err := s.conn.Read(buf)
	if err != nil {
		return n, Timestamp{}, err
	}
	return n, Timestamp{Time: time.Now(), Provenance: FallbackClock}, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
