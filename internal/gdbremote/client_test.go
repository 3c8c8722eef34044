package gdbremote

import (
	"net"
	"testing"
	"time"
)

// startFakeGDBServer accepts one connection and, without reading anything
// from it, writes the bytes given in replies, in order.
func startFakeGDBServer(t *testing.T, replies [][]byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		for _, r := range replies {
			if _, err := conn.Write(r); err != nil {
				return
			}
		}
		// Keep the connection open briefly so late reads don't race EOF.
		time.Sleep(100 * time.Millisecond)
	}()

	return ln.Addr().String()
}

func TestClient_ReadAck(t *testing.T) {
	addr := startFakeGDBServer(t, [][]byte{[]byte("+")})

	c, err := Connect(addr, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	c.SetTimeout(2 * time.Second)

	resp, _, err := c.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Kind != KindAck {
		t.Fatalf("Kind = %v, want KindAck", resp.Kind)
	}
}

func TestClient_ReadPacket(t *testing.T) {
	addr := startFakeGDBServer(t, [][]byte{BuildPacket("OK")})

	c, err := Connect(addr, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	c.SetTimeout(2 * time.Second)

	resp, _, err := c.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Kind != KindPacket || string(resp.Body) != "OK" {
		t.Fatalf("resp = %+v, want Packet(OK)", resp)
	}
}

func TestClient_ReadResponse_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	c, err := Connect(ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	c.SetTimeout(50 * time.Millisecond)

	_, _, err = c.ReadResponse()
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
