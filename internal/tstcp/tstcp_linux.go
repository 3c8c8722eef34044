//go:build linux

package tstcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// socketControlMessageHeaderOffset mirrors the cmsg header size used to
// locate the payload within a control message.
var socketControlMessageHeaderOffset = binary.Size(unix.Cmsghdr{})

// timestampingFlags is the flag set the spec calls out by name:
// {TX_ACK, RX_SOFTWARE, SOFTWARE, OPT_TSONLY}.
const timestampingFlags = unix.SOF_TIMESTAMPING_TX_ACK |
	unix.SOF_TIMESTAMPING_RX_SOFTWARE |
	unix.SOF_TIMESTAMPING_SOFTWARE |
	unix.SOF_TIMESTAMPING_OPT_TSONLY

const errQueueAttempts = 50
const errQueueRetryDelay = 2 * time.Millisecond

var errNoTimestamp = errors.New("tstcp: no timestamp in control message")

// enableTimestamping configures SO_TIMESTAMPING_NEW on conn's socket. On
// success it returns the raw file descriptor (kept open for the lifetime
// of the net.TCPConn, which owns the fd) and enabled=true. On any failure
// it returns enabled=false and the stream falls back to wall-clock
// timestamps; this is never a fatal error.
func enableTimestamping(conn *net.TCPConn) (fd int, enabled bool, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, false, err
	}

	var sockfd int
	ctrlErr := raw.Control(func(f uintptr) {
		sockfd = int(f)
	})
	if ctrlErr != nil {
		return 0, false, ctrlErr
	}

	var setErr error
	ctrlErr = raw.Control(func(f uintptr) {
		setErr = unix.SetsockoptInt(int(f), unix.SOL_SOCKET, unix.SO_TIMESTAMPING_NEW, timestampingFlags)
		if setErr == nil {
			// Allow MSG_ERRQUEUE reads to be woken by select/poll.
			_ = unix.SetsockoptInt(int(f), unix.SOL_SOCKET, unix.SO_SELECT_ERR_QUEUE, 1)
		}
	})
	if ctrlErr != nil {
		return 0, false, ctrlErr
	}
	if setErr != nil {
		return 0, false, fmt.Errorf("setsockopt SO_TIMESTAMPING_NEW: %w", setErr)
	}

	return sockfd, true, nil
}

// scmDataToTime decodes the first __kernel_timespec (the software slot) of
// a SO_TIMESTAMPING_NEW control message payload; the later slots are not
// read.
func scmDataToTime(data []byte) (time.Time, error) {
	const size = 16 // two 64-bit fields
	if len(data) < size {
		return time.Time{}, errNoTimestamp
	}
	sec := *(*int64)(unsafe.Pointer(&data[0]))
	nsec := *(*int64)(unsafe.Pointer(&data[8]))
	if sec == 0 && nsec == 0 {
		return time.Time{}, errNoTimestamp
	}
	return time.Unix(sec, nsec), nil
}

func parseTimestampCmsg(oob []byte, oobn int) (time.Time, error) {
	mlen := 0
	for i := 0; i < oobn; i += unix.CmsgSpace(mlen - unix.SizeofCmsghdr) {
		h := (*unix.Cmsghdr)(unsafe.Pointer(&oob[i]))
		mlen = int(h.Len)
		if mlen == 0 {
			break
		}
		if h.Level == unix.SOL_SOCKET &&
			(int(h.Type) == unix.SO_TIMESTAMPING_NEW || int(h.Type) == unix.SO_TIMESTAMPING) {
			return scmDataToTime(oob[i+socketControlMessageHeaderOffset : i+mlen])
		}
	}
	return time.Time{}, errNoTimestamp
}

// pollTimeoutMillis converts a deadline into the millisecond timeout
// unix.Poll expects: -1 (block indefinitely) for a zero deadline, 0 when
// the deadline has already passed, otherwise the remaining time capped to
// what fits in poll(2)'s C int.
func pollTimeoutMillis(deadline time.Time) int {
	if deadline.IsZero() {
		return -1
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}

// readRXTimestamp reads one segment into buf via recvmsg, returning the
// RX timestamp delivered in the accompanying control message.
//
// Recvmsg is issued on the net.TCPConn's own fd, which the Go runtime
// keeps in non-blocking mode; calling it directly without first waiting
// for readability would return EAGAIN instantly whenever no segment is
// already queued, rather than waiting up to deadline the way
// conn.SetReadDeadline implies. So, matching facebook-time's
// waitForHWTS, this polls for POLLIN first (honoring deadline and
// retrying on EINTR) and only calls Recvmsg once the fd is readable.
func readRXTimestamp(fd int, buf []byte, deadline time.Time) (n int, t time.Time, err error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		ready, perr := unix.Poll(fds, pollTimeoutMillis(deadline))
		if perr != nil {
			if perr == unix.EINTR {
				continue
			}
			return 0, time.Time{}, perr
		}
		if ready == 0 {
			return 0, time.Time{}, unix.ETIMEDOUT
		}
		break
	}

	oob := make([]byte, 256)
	n, oobn, _, _, err := unix.Recvmsg(fd, buf, oob, 0)
	if err != nil {
		return 0, time.Time{}, err
	}
	t, err = parseTimestampCmsg(oob, oobn)
	if err != nil {
		return n, time.Time{}, err
	}
	return n, t, nil
}

// readTXTimestamp drains the socket's error queue looking for the
// timestamp of the most recently sent segment, following the same
// bounded-retry pattern as the kernel timestamping helpers this is
// grounded on: poll briefly, read MSG_ERRQUEUE, retry until found or the
// attempt budget is exhausted.
func readTXTimestamp(fd int) (time.Time, error) {
	oob := make([]byte, 256)
	var empty []byte
	for attempt := 0; attempt < errQueueAttempts; attempt++ {
		_, oobn, _, _, err := unix.Recvmsg(fd, empty, oob, unix.MSG_ERRQUEUE)
		if err != nil {
			if err == unix.EAGAIN {
				time.Sleep(errQueueRetryDelay)
				continue
			}
			return time.Time{}, err
		}
		if t, terr := parseTimestampCmsg(oob, oobn); terr == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("tstcp: %w after %d attempts", errNoTimestamp, errQueueAttempts)
}
