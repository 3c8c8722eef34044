package gdbremote

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"ocdscope/internal/tstcp"
)

// ErrEndOfStream is returned when the underlying stream is closed by the
// remote end while waiting for a response.
var ErrEndOfStream = errors.New("gdbremote: end of stream")

// ErrTimeout is returned when read_response's deadline expires before a
// complete Ack or Packet is parsed.
var ErrTimeout = errors.New("gdbremote: timeout")

// ResponseKind distinguishes the two shapes a read_response can return.
type ResponseKind int

const (
	// KindAck is the single-byte '+' acknowledgement.
	KindAck ResponseKind = iota
	// KindPacket is a full `$...#cc` frame; Body holds the decoded payload.
	KindPacket
)

// Response is what ReadResponse returns: either an Ack or a Packet body.
type Response struct {
	Kind ResponseKind
	Body []byte
}

// Client speaks the GDB remote serial protocol over a tstcp.Stream.
type Client struct {
	stream  *tstcp.Stream
	timeout time.Duration
	buf     []byte
	log     *slog.Logger
}

// Connect opens a Timestamped TCP Stream to addr.
func Connect(addr string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := tstcp.Dial(addr, log)
	if err != nil {
		return nil, fmt.Errorf("gdbremote: connect: %w", err)
	}
	return &Client{stream: s, timeout: 2 * time.Second, log: log}, nil
}

// Close releases the underlying stream.
func (c *Client) Close() error { return c.stream.Close() }

// SetTimeout applies to subsequent ReadResponse calls.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// SendPacket frames and writes text, returning the TX timestamp of the
// segment that carried it.
func (c *Client) SendPacket(text string) (tstcp.Timestamp, error) {
	ts, err := c.stream.Send(BuildPacket(text))
	if err != nil {
		return tstcp.Timestamp{}, fmt.Errorf("gdbremote: send: %w", err)
	}
	return ts, nil
}

// ReadResponse returns the next Ack or Packet, and the Timestamp of the
// TCP segment that delivered the leading '$' or '+' byte. It first tries
// to parse from the client's internal buffer; if that doesn't yield a
// complete response it reads more bytes from the stream, against a
// deadline computed once at entry, until it does.
func (c *Client) ReadResponse() (Response, tstcp.Timestamp, error) {
	deadline := time.Now().Add(c.timeout)
	var lastTS tstcp.Timestamp

	for {
		resp, consumed, ok, perr := c.tryParseBuffered()
		if perr != nil {
			return Response{}, tstcp.Timestamp{}, perr
		}
		if ok {
			c.buf = c.buf[consumed:]
			return resp, lastTS, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Response{}, tstcp.Timestamp{}, ErrTimeout
		}
		if err := c.stream.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return Response{}, tstcp.Timestamp{}, err
		}

		chunk := make([]byte, 4096)
		n, ts, err := c.stream.Receive(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return Response{}, tstcp.Timestamp{}, ErrTimeout
			}
			return Response{}, tstcp.Timestamp{}, fmt.Errorf("%w: %v", ErrEndOfStream, err)
		}
		if n == 0 {
			return Response{}, tstcp.Timestamp{}, ErrEndOfStream
		}
		chunk = chunk[:n]
		c.buf = append(c.buf, chunk...)
		if containsAckOrFrameStart(chunk) {
			lastTS = ts
		}
	}
}

func containsAckOrFrameStart(chunk []byte) bool {
	for _, b := range chunk {
		if b == '+' || b == '$' {
			return true
		}
	}
	return false
}

// tryParseBuffered attempts to consume a leading '+' (Ack), then a
// '$...#cc' packet, from c.buf. ok is false if neither is currently
// parseable: either the buffer is empty, an incomplete packet is awaiting
// more bytes (err is also nil in that case), or a complete but invalid
// frame was found, in which case err is non-nil and fatal per spec.md §7.
func (c *Client) tryParseBuffered() (resp Response, consumed int, ok bool, err error) {
	if len(c.buf) == 0 {
		return Response{}, 0, false, nil
	}
	if c.buf[0] == '+' {
		return Response{Kind: KindAck}, 1, true, nil
	}
	if c.buf[0] == '$' {
		payload, n, perr := ParsePacket(c.buf)
		if perr != nil {
			return Response{}, 0, false, perr
		}
		if n == 0 {
			return Response{}, 0, false, nil // incomplete, need more bytes
		}
		return Response{Kind: KindPacket, Body: payload}, n, true, nil
	}
	// Unrecognized leading byte: drop it and keep scanning.
	c.buf = c.buf[1:]
	return Response{}, 0, false, nil
}
