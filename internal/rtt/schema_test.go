package rtt

import "testing"

func TestParseSchema_JScopeExample(t *testing.T) {
	s, err := ParseSchema("JScope_T4B1F4I2U2")
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if !s.HasTimestamp {
		t.Fatal("HasTimestamp = false, want true")
	}
	want := []Field{
		{Boolean, 1},
		{Float, 4},
		{Signed, 2},
		{Unsigned, 2},
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("len(Fields) = %d, want %d", len(s.Fields), len(want))
	}
	for i, f := range want {
		if s.Fields[i] != f {
			t.Fatalf("Fields[%d] = %+v, want %+v", i, s.Fields[i], f)
		}
	}
	if got := s.PacketSize(); got != 13 {
		t.Fatalf("PacketSize() = %d, want 13", got)
	}
}

func TestParseSchema_NoTimestamp(t *testing.T) {
	s, err := ParseSchema("Channel_F4")
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if s.HasTimestamp {
		t.Fatal("HasTimestamp = true, want false")
	}
	if s.PacketSize() != 4 {
		t.Fatalf("PacketSize() = %d, want 4", s.PacketSize())
	}
}

func TestParseSchema_TrailingCharIgnored(t *testing.T) {
	s, err := ParseSchema("JScope_T4F4X")
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if len(s.Fields) != 1 || s.Fields[0].Kind != Float {
		t.Fatalf("Fields = %+v, want one Float field", s.Fields)
	}
}

func TestParseSchema_InvalidKind(t *testing.T) {
	if _, err := ParseSchema("JScope_X4"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
