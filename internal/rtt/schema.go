// Package rtt implements the JScope RTT channel naming convention: packet
// schema parsing, little-endian field decoding, and the probabilistic
// byte-alignment auto-synchronizer.
package rtt

import (
	"fmt"
	"log/slog"
	"strings"
)

// FieldKind is one of the four JScope field kinds.
type FieldKind int

const (
	Boolean FieldKind = iota
	Float
	Signed
	Unsigned
)

func (k FieldKind) String() string {
	switch k {
	case Boolean:
		return "Boolean"
	case Float:
		return "Float"
	case Signed:
		return "Signed"
	case Unsigned:
		return "Unsigned"
	default:
		return "Unknown"
	}
}

// Field is one schema field: a kind and a byte width.
type Field struct {
	Kind FieldKind
	Size int
}

// Schema is a parsed JScope packet layout.
type Schema struct {
	HasTimestamp bool
	Fields       []Field
}

// PacketSize is the total byte width of one packet under this schema,
// including the leading 4-byte timestamp when present.
func (s Schema) PacketSize() int {
	n := 0
	if s.HasTimestamp {
		n += 4
	}
	for _, f := range s.Fields {
		n += f.Size
	}
	return n
}

var kindLetters = map[byte]FieldKind{
	'B': Boolean,
	'F': Float,
	'I': Signed,
	'U': Unsigned,
}

// validSizes lists the byte widths a field kind may take, per spec.md
// §4.8: "Valid combinations: B1, F4, I1, I2, I4, U1, U2, U4".
var validSizes = map[FieldKind]map[int]bool{
	Boolean:  {1: true},
	Float:    {4: true},
	Signed:   {1: true, 2: true, 4: true},
	Unsigned: {1: true, 2: true, 4: true},
}

// ParseSchema parses a JScope channel name's schema suffix: the substring
// after the last '_' in the channel name. Grammar: "[T4] (<kind><size>)+".
// A trailing single character that doesn't form a complete token is
// dropped with a logged warning rather than rejected.
func ParseSchema(channelName string) (Schema, error) {
	idx := strings.LastIndex(channelName, "_")
	suffix := channelName
	if idx >= 0 {
		suffix = channelName[idx+1:]
	}
	return parseSuffix(suffix)
}

func parseSuffix(suffix string) (Schema, error) {
	var s Schema
	rest := strings.ToUpper(suffix)

	if strings.HasPrefix(rest, "T4") {
		s.HasTimestamp = true
		rest = rest[2:]
	}

	for len(rest) > 0 {
		if len(rest) == 1 {
			slog.Warn("rtt: trailing character in schema suffix ignored", "char", rest)
			break
		}
		kind, ok := kindLetters[rest[0]]
		if !ok {
			return Schema{}, fmt.Errorf("rtt: unknown field kind %q in schema %q", rest[0], suffix)
		}
		size := int(rest[1] - '0')
		if !validSizes[kind][size] {
			return Schema{}, fmt.Errorf("rtt: invalid size %d for kind %v in schema %q", size, kind, suffix)
		}
		s.Fields = append(s.Fields, Field{Kind: kind, Size: size})
		rest = rest[2:]
	}

	if !s.HasTimestamp && len(s.Fields) == 0 {
		return Schema{}, fmt.Errorf("rtt: empty schema suffix %q", suffix)
	}
	return s, nil
}
