package garble_test

import (
	"testing"

	"github.com/MrWong99/gagspeak/internal/garble"
)

func TestSegmentMachine(t *testing.T) {
	t.Parallel()

	const (
		T = garble.ActionTranslate
		V = garble.ActionVerbatim
	)
	emotes := map[string]struct{}{"smile": {}}

	tests := []struct {
		name         string
		marker       string
		allowEmotes  bool
		tokens       []string
		want         []garble.Action
		wantSkipping bool
	}{
		{
			name:         "trailing marker toggles after the word",
			tokens:       []string{"hello*", "there"},
			want:         []garble.Action{T, V},
			wantSkipping: true,
		},
		{
			name:         "leading marker toggles before the word",
			tokens:       []string{"*hi", "there"},
			want:         []garble.Action{V, V},
			wantSkipping: true,
		},
		{
			name:   "wrapped word is skipped and restores the state",
			tokens: []string{"*waves*", "hi"},
			want:   []garble.Action{V, T},
		},
		{
			name:   "double marker toggles twice",
			tokens: []string{"**", "hi"},
			want:   []garble.Action{V, T},
		},
		{
			name:   "bare markers open and close a segment",
			tokens: []string{"*", "hi", "*", "hi"},
			want:   []garble.Action{V, V, V, T},
		},
		{
			name:        "emote keeps the surrounding state",
			allowEmotes: true,
			tokens:      []string{"*", ":smile:", "hi", "*", ":smile:", "hi"},
			want:        []garble.Action{V, V, V, V, V, T},
		},
		{
			name:        "emote wrapped in punctuation",
			allowEmotes: true,
			tokens:      []string{"(:smile:),", ":SMILE:!", "hi"},
			want:        []garble.Action{V, V, T},
		},
		{
			name:         "marker attached to an emote still toggles",
			allowEmotes:  true,
			tokens:       []string{":smile:*", "hi"},
			want:         []garble.Action{V, V},
			wantSkipping: true,
		},
		{
			name:   "emotes are words when not allowed",
			tokens: []string{":smile:"},
			want:   []garble.Action{T},
		},
		{
			name:        "unknown emote is a word",
			allowEmotes: true,
			tokens:      []string{":frown:", "::", ":smile"},
			want:        []garble.Action{T, T, T},
		},
		{
			name:   "custom marker",
			marker: "_",
			tokens: []string{"_hi_", "*hi*", "hi"},
			want:   []garble.Action{V, T, T},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := garble.NewSegmentMachine(tt.marker, emotes, tt.allowEmotes)
			for i, tok := range tt.tokens {
				if got := m.Next(tok); got != tt.want[i] {
					t.Errorf("Next(%q) = %v, want %v", tok, got, tt.want[i])
				}
			}
			if m.Skipping() != tt.wantSkipping {
				t.Errorf("Skipping() = %v, want %v", m.Skipping(), tt.wantSkipping)
			}
		})
	}
}
