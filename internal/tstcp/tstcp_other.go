//go:build !linux

package tstcp

import (
	"errors"
	"net"
	"time"
)

var errUnsupported = errors.New("tstcp: kernel timestamping not supported on this platform")

func enableTimestamping(conn *net.TCPConn) (fd int, enabled bool, err error) {
	return 0, false, errUnsupported
}

func readRXTimestamp(fd int, buf []byte, deadline time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errUnsupported
}

func readTXTimestamp(fd int) (time.Time, error) {
	return time.Time{}, errUnsupported
}
