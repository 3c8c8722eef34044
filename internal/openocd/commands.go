package openocd

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is an RTT channel's transfer direction.
type Direction int

const (
	// Up channels carry target-to-host data.
	Up Direction = iota
	// Down channels carry host-to-target data.
	Down
)

// Channel describes one RTT channel as parsed from `rtt channels`.
type Channel struct {
	ID         int
	Name       string
	BufferSize int
	Flags      int
	Direction  Direction
}

// RTTSetup configures the RTT control-block search region.
func (c *Client) RTTSetup(addr uint32, length uint32, idString string) error {
	cmd := fmt.Sprintf("rtt setup 0x%x %d {%s}", addr, length, idString)
	_, err := c.command(cmd)
	return err
}

// RTTStart starts RTT and returns the discovered control-block address.
func (c *Client) RTTStart() (uint32, error) {
	lines, err := c.command("rtt start")
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if idx := strings.Index(strings.ToLower(l), "control block found at "); idx >= 0 {
			hexPart := strings.TrimSpace(l[idx+len("control block found at "):])
			hexPart = strings.TrimPrefix(hexPart, "0x")
			hexPart = strings.Fields(hexPart)[0]
			addr, perr := strconv.ParseUint(hexPart, 16, 32)
			if perr != nil {
				return 0, &UnexpectedResponseError{Command: "rtt start", Response: []byte(l)}
			}
			return uint32(addr), nil
		}
	}
	return 0, &UnexpectedResponseError{Command: "rtt start", Response: []byte(strings.Join(lines, "\n"))}
}

// RTTStop stops RTT server(s).
func (c *Client) RTTStop() error {
	_, err := c.command("rtt stop")
	return err
}

// RTTChannels parses the `Up-channels:` / `Down-channels:` sections of
// `rtt channels` into a flat list.
func (c *Client) RTTChannels() ([]Channel, error) {
	lines, err := c.command("rtt channels")
	if err != nil {
		return nil, err
	}

	var channels []Channel
	dir := Up
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(trimmed, "Up-channels:"):
			dir = Up
			continue
		case strings.HasPrefix(trimmed, "Down-channels:"):
			dir = Down
			continue
		}
		ch, ok := parseChannelLine(trimmed, dir)
		if ok {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

// parseChannelLine parses one "<id>: <name> <size> <flags>" line.
func parseChannelLine(line string, dir Direction) (Channel, bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return Channel{}, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(line[:colon]))
	if err != nil {
		return Channel{}, false
	}
	rest := strings.Fields(line[colon+1:])
	if len(rest) < 3 {
		return Channel{}, false
	}
	size, err := strconv.Atoi(rest[len(rest)-2])
	if err != nil {
		return Channel{}, false
	}
	flags, err := strconv.Atoi(rest[len(rest)-1])
	if err != nil {
		return Channel{}, false
	}
	name := strings.Join(rest[:len(rest)-2], " ")
	return Channel{ID: id, Name: name, BufferSize: size, Flags: flags, Direction: dir}, true
}

// RTTServerStart opens a TCP data relay on port for channelID, waiting for
// the "Listening on port" confirmation line.
func (c *Client) RTTServerStart(port, channelID int) error {
	lines, err := c.command(fmt.Sprintf("rtt server start %d %d", port, channelID))
	if err != nil {
		return err
	}
	for _, l := range lines {
		if strings.Contains(l, "Listening on port") {
			return nil
		}
	}
	return &UnexpectedResponseError{Command: "rtt server start", Response: []byte(strings.Join(lines, "\n"))}
}

// RTTServerStop closes the relay on port.
func (c *Client) RTTServerStop(port int) error {
	_, err := c.command(fmt.Sprintf("rtt server stop %d", port))
	return err
}

// SetAdapterSpeed requests a probe clock in kHz and returns the speed
// OpenOCD actually chose (it snaps to the nearest supported value).
func (c *Client) SetAdapterSpeed(kHz int) (int, error) {
	lines, err := c.command(fmt.Sprintf("adapter speed %d", kHz))
	if err != nil {
		return 0, err
	}
	return parseAdapterSpeed(lines, "adapter speed")
}

// GetAdapterSpeed queries the current probe clock.
func (c *Client) GetAdapterSpeed() (int, error) {
	lines, err := c.command("adapter speed")
	if err != nil {
		return 0, err
	}
	return parseAdapterSpeed(lines, "adapter speed")
}

func parseAdapterSpeed(lines []string, cmd string) (int, error) {
	for _, l := range lines {
		fields := strings.Fields(l)
		for i, f := range fields {
			if f == "kHz" && i > 0 {
				v, err := strconv.Atoi(strings.TrimSuffix(fields[i-1], ","))
				if err == nil {
					return v, nil
				}
			}
		}
	}
	return 0, &UnexpectedResponseError{Command: cmd, Response: []byte(strings.Join(lines, "\n"))}
}

// SetRTTPollingInterval configures OpenOCD's internal RTT polling cadence.
func (c *Client) SetRTTPollingInterval(ms int) error {
	_, err := c.command(fmt.Sprintf("rtt polling_interval %d", ms))
	return err
}

// Halt halts the target and waits for the "halted due to debug-request"
// confirmation.
func (c *Client) Halt() error {
	lines, err := c.command("halt")
	if err != nil {
		return err
	}
	for _, l := range lines {
		if strings.Contains(l, "halted due to debug-request") {
			return nil
		}
	}
	return &UnexpectedResponseError{Command: "halt", Response: []byte(strings.Join(lines, "\n"))}
}

// Resume resumes the target.
func (c *Client) Resume() error {
	_, err := c.command("resume")
	return err
}
