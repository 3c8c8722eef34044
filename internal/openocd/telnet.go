// Package openocd implements a line-oriented Telnet client for OpenOCD's
// interactive command language: RTT setup, adapter speed, halt/resume and
// server lifecycle.
package openocd

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// prompt is OpenOCD's interactive prompt, space-terminated.
const prompt = "> "

// DefaultDeadline is used for every call unless overridden with
// SetDeadline.
const DefaultDeadline = 200 * time.Millisecond

// UnexpectedResponseError is returned when a response line doesn't match
// the shape a command's parser expects.
type UnexpectedResponseError struct {
	Command  string
	Response []byte
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("openocd: unexpected response to %q: %q", e.Command, e.Response)
}

// ErrTimeout is returned when a call's deadline elapses before the
// expected response is observed.
var ErrTimeout = fmt.Errorf("openocd: timeout")

// Client is a Telnet session to an OpenOCD server's command interface.
type Client struct {
	conn     net.Conn
	buf      []byte // bytes read but not yet consumed by a higher-level call
	deadline time.Duration
}

// Connect opens a Telnet session to addr and waits for the initial prompt.
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("openocd: connect: %w", err)
	}
	c := &Client{conn: conn, deadline: DefaultDeadline}
	if err := c.waitForPrompt(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SetDeadline overrides the per-call deadline (default 200ms).
func (c *Client) SetDeadline(d time.Duration) { c.deadline = d }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// fillBuffer reads whatever is immediately available from the connection,
// stripping NUL bytes (RFC 854 printer NOP) and appending the rest to
// c.buf. It blocks until at least one byte arrives or the deadline
// (already set on conn by the caller) expires.
func (c *Client) fillBuffer() error {
	chunk := make([]byte, 4096)
	n, err := c.conn.Read(chunk)
	if err != nil {
		return err
	}
	for _, b := range chunk[:n] {
		if b != 0x00 {
			c.buf = append(c.buf, b)
		}
	}
	return nil
}

// readLine blocks until a full "\r\n"-terminated line is available,
// discarding lines that begin with two 0x08 (backspace) bytes — OpenOCD
// repaints the prompt around asynchronous log output by emitting those.
// It respects the client's configured deadline, computed once at entry.
func (c *Client) readLine() (string, error) {
	deadline := time.Now().Add(c.deadline)
	for {
		if idx := bytes.Index(c.buf, []byte("\r\n")); idx >= 0 {
			line := c.buf[:idx]
			c.buf = c.buf[idx+2:]
			if len(line) >= 2 && line[0] == 0x08 && line[1] == 0x08 {
				continue
			}
			return string(line), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return "", err
		}
		if err := c.fillBuffer(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return "", ErrTimeout
			}
			return "", fmt.Errorf("openocd: read: %w", err)
		}
	}
}

// waitForPrompt reads until the raw buffer contains the "> " prompt (which
// is not newline-terminated, so it can't go through readLine), discarding
// everything up to and including the first one.
func (c *Client) waitForPrompt() error {
	deadline := time.Now().Add(c.deadline)
	for {
		if idx := bytes.Index(c.buf, []byte(prompt)); idx >= 0 {
			c.buf = c.buf[idx+len(prompt):]
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return err
		}
		if err := c.fillBuffer(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ErrTimeout
			}
			return fmt.Errorf("openocd: read: %w", err)
		}
	}
}

// writeCommand writes cmd\r\n and waits until cmd (without the CRLF)
// appears echoed back by the server (Telnet servers typically echo input).
func (c *Client) writeCommand(cmd string) error {
	deadline := time.Now().Add(c.deadline)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := c.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("openocd: write: %w", err)
	}

	suffix := []byte(cmd)
	for {
		if idx := bytes.Index(c.buf, suffix); idx >= 0 {
			c.buf = c.buf[idx+len(suffix):]
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return err
		}
		if err := c.fillBuffer(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ErrTimeout
			}
			return fmt.Errorf("openocd: read: %w", err)
		}
	}
}

// command issues cmd and returns every response line up to (but not
// including) the next prompt. It assumes the session is already at the
// prompt on entry (true after Connect and after every prior command()).
func (c *Client) command(cmd string) ([]string, error) {
	if err := c.writeCommand(cmd); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.deadline)
	var lines []string
	for {
		if idx := bytes.Index(c.buf, []byte(prompt)); idx >= 0 {
			// Anything preceding the prompt that isn't newline-terminated
			// is itself a line (OpenOCD doesn't always end output with a
			// trailing CRLF before reprinting the prompt).
			rest := c.buf[:idx]
			c.buf = c.buf[idx+len(prompt):]
			for _, l := range bytes.Split(rest, []byte("\r\n")) {
				if len(l) == 0 {
					continue
				}
				if len(l) >= 2 && l[0] == 0x08 && l[1] == 0x08 {
					continue
				}
				lines = append(lines, string(l))
			}
			return lines, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return nil, err
		}
		if err := c.fillBuffer(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("openocd: read: %w", err)
		}
	}
}
