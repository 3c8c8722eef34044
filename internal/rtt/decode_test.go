package rtt

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecode_T4F4(t *testing.T) {
	s := Schema{HasTimestamp: true, Fields: []Field{{Float, 4}}}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], 123456)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(2.5))

	pkt, err := s.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !pkt.HasTimestamp || pkt.TimestampUS != 123456 {
		t.Fatalf("timestamp = %+v, want 123456", pkt)
	}
	if pkt.Values[0] != 2.5 {
		t.Fatalf("value = %v, want 2.5", pkt.Values[0])
	}
}

func TestDecode_BooleanSignedUnsigned(t *testing.T) {
	s := Schema{Fields: []Field{{Boolean, 1}, {Signed, 2}, {Unsigned, 1}}}
	buf := []byte{1, 0xFF, 0xFF, 200}
	pkt, err := s.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Values[0] != 1.0 {
		t.Fatalf("bool = %v, want 1.0", pkt.Values[0])
	}
	if pkt.Values[1] != -1.0 {
		t.Fatalf("signed = %v, want -1.0", pkt.Values[1])
	}
	if pkt.Values[2] != 200.0 {
		t.Fatalf("unsigned = %v, want 200.0", pkt.Values[2])
	}
}

func TestDecode_TooShort(t *testing.T) {
	s := Schema{Fields: []Field{{Float, 4}}}
	if _, err := s.Decode([]byte{1, 2}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
