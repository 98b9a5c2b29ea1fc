package gag

import (
	"fmt"
	"strings"
)

// MouthState is a set of coarse mouth-obstruction flags. The zero value is
// [MouthNone].
type MouthState uint8

const (
	// MouthOpen: the mouth is held open (ring and spider gags).
	MouthOpen MouthState = 1 << iota
	// MouthClosed: the lips are sealed (tape, panel gags).
	MouthClosed
	// MouthFull: the mouth is stuffed (ball, bit and plug gags).
	MouthFull
	// MouthNoSound: nothing intelligible escapes at all.
	MouthNoSound
)

// MouthNone means no obstruction.
const MouthNone MouthState = 0

// restrictiveness lists single flags from most to least restrictive for
// filler selection.
var restrictiveness = []MouthState{MouthFull, MouthClosed, MouthOpen, MouthNoSound}

var mouthNames = map[MouthState]string{
	MouthOpen:    "open",
	MouthClosed:  "closed",
	MouthFull:    "full",
	MouthNoSound: "nosound",
}

// Has reports whether every flag in f is set in m.
func (m MouthState) Has(f MouthState) bool {
	return f != MouthNone && m&f == f
}

// Strongest returns the single most restrictive flag set in m, ranking
// Full > Closed > Open > NoSound. It returns [MouthNone] for an empty set.
func (m MouthState) Strongest() MouthState {
	for _, f := range restrictiveness {
		if m&f != 0 {
			return f
		}
	}
	return MouthNone
}

// IsValid reports whether m only contains known flags.
func (m MouthState) IsValid() bool {
	return m&^(MouthOpen|MouthClosed|MouthFull|MouthNoSound) == 0
}

// String renders m as a '|'-separated flag list, e.g. "closed|full".
func (m MouthState) String() string {
	if m == MouthNone {
		return "none"
	}
	var parts []string
	for _, f := range []MouthState{MouthOpen, MouthClosed, MouthFull, MouthNoSound} {
		if m&f != 0 {
			parts = append(parts, mouthNames[f])
		}
	}
	if rest := m &^ (MouthOpen | MouthClosed | MouthFull | MouthNoSound); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseMouthState parses a flag list separated by '|', ',' or spaces.
// Names are case-insensitive; "no_sound" and "no-sound" are accepted for
// nosound, and the empty string parses as none.
func ParseMouthState(s string) (MouthState, error) {
	var m MouthState
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
	for _, f := range fields {
		switch strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(f)) {
		case "open":
			m |= MouthOpen
		case "closed":
			m |= MouthClosed
		case "full":
			m |= MouthFull
		case "nosound", "silent":
			m |= MouthNoSound
		case "none":
		default:
			return MouthNone, fmt.Errorf("gag: unknown mouth state %q", f)
		}
	}
	return m, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m MouthState) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is used by both the
// YAML catalog decoder and the JSON HTTP API.
func (m *MouthState) UnmarshalText(b []byte) error {
	v, err := ParseMouthState(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
