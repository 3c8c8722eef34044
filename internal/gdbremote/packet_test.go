package gdbremote

import (
	"strings"
	"testing"
	"unicode"
)

func TestBuildPacket_QC(t *testing.T) {
	got := BuildPacket("qC")
	want := "$qC#b4"
	if string(got) != want {
		t.Fatalf("BuildPacket(\"qC\") = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	samples := []string{"", "qC", "QStartNoAckMode", "m20000000,4", "OK", strings.Repeat("x", 200)}
	for _, s := range samples {
		pkt := BuildPacket(s)
		payload, consumed, err := ParsePacket(pkt)
		if err != nil {
			t.Fatalf("ParsePacket(%q): %v", pkt, err)
		}
		if consumed != len(pkt) {
			t.Fatalf("consumed = %d, want %d", consumed, len(pkt))
		}
		if string(payload) != s {
			t.Fatalf("round-trip mismatch: got %q, want %q", payload, s)
		}
	}
}

func TestRoundTrip_AllASCIIExceptDelimiters(t *testing.T) {
	var b strings.Builder
	for c := rune(0); c < 128; c++ {
		if c == '$' || c == '#' || !unicode.IsPrint(c) {
			continue
		}
		b.WriteRune(c)
	}
	s := b.String()
	pkt := BuildPacket(s)
	payload, _, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if string(payload) != s {
		t.Fatalf("round-trip mismatch for printable ASCII sweep")
	}
}

func TestParsePacket_ChecksumMismatch(t *testing.T) {
	pkt := BuildPacket("qC") // "$qC#b4"
	bad := append([]byte{}, pkt...)
	bad[len(bad)-2] = 'f'
	bad[len(bad)-1] = 'f' // transmitted checksum is now 0xff, which can't match sum('q'+'C')

	_, _, err := ParsePacket(bad)
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParsePacket_Incomplete(t *testing.T) {
	payload, consumed, err := ParsePacket([]byte("$qC"))
	if err != nil || payload != nil || consumed != 0 {
		t.Fatalf("expected incomplete-frame signal, got payload=%v consumed=%d err=%v", payload, consumed, err)
	}
}

func TestParsePacket_NotAPacket(t *testing.T) {
	payload, consumed, err := ParsePacket([]byte("+"))
	if err != nil || payload != nil || consumed != 0 {
		t.Fatalf("expected (nil, 0, nil) for non-'$' input, got payload=%v consumed=%d err=%v", payload, consumed, err)
	}
}
