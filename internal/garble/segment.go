package garble

import (
	"strings"
	"unicode"
)

// DefaultMarker is the roleplay emphasis marker that suspends garbling.
const DefaultMarker = "*"

// Action tells the caller what to do with a token.
type Action int

const (
	// ActionTranslate: garble the token.
	ActionTranslate Action = iota
	// ActionVerbatim: emit the token unchanged.
	ActionVerbatim
)

// SegmentMachine tracks whether garbling is suspended while walking the
// tokens of one message. It has two states, translating and skipping, and
// starts in translating. Create one per message; it is not safe for
// concurrent use.
//
// Transitions, applied by [SegmentMachine.Next]:
//   - a token equal to the marker toggles immediately and is emitted verbatim;
//   - a token starting with the marker toggles before the token is judged;
//   - a token ending with the marker toggles after the token is judged;
//   - a recognised emote is emitted verbatim; only markers attached to it
//     change the state.
//
// A token like "*waves*" therefore toggles on entry and again on exit, and
// is itself judged in the toggled state.
type SegmentMachine struct {
	marker      string
	emotes      map[string]struct{}
	allowEmotes bool
	skipping    bool
}

// NewSegmentMachine returns a machine in the translating state. emotes holds
// lower-case emote names; they are only recognised when allowEmotes is set.
func NewSegmentMachine(marker string, emotes map[string]struct{}, allowEmotes bool) *SegmentMachine {
	if marker == "" {
		marker = DefaultMarker
	}
	return &SegmentMachine{
		marker:      marker,
		emotes:      emotes,
		allowEmotes: allowEmotes,
	}
}

// Skipping reports whether the machine is currently in the skipping state.
func (m *SegmentMachine) Skipping() bool { return m.skipping }

// Next consumes raw and returns what to do with it.
func (m *SegmentMachine) Next(raw string) Action {
	if raw == m.marker {
		m.skipping = !m.skipping
		return ActionVerbatim
	}

	emote := m.allowEmotes && m.isEmote(raw)
	if strings.HasPrefix(raw, m.marker) {
		m.skipping = !m.skipping
	}
	act := ActionTranslate
	if m.skipping || emote {
		act = ActionVerbatim
	}
	if len(raw) > len(m.marker) && strings.HasSuffix(raw, m.marker) {
		m.skipping = !m.skipping
	}
	return act
}

// isEmote reports whether raw is ":name:" for a known emote. Punctuation
// around the colons is allowed, as in "(:smile:)," at the end of a clause.
func (m *SegmentMachine) isEmote(raw string) bool {
	first, last := strings.IndexByte(raw, ':'), strings.LastIndexByte(raw, ':')
	if first < 0 || last-first < 2 || !allPunct(raw[:first]) || !allPunct(raw[last+1:]) {
		return false
	}
	_, ok := m.emotes[strings.ToLower(raw[first+1:last])]
	return ok
}

func allPunct(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPunct(r) }) < 0
}
