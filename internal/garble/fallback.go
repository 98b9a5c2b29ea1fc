package garble

import (
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/phonetic"
)

// fillers are the strings fallback obfuscation strings together, per mouth
// state category.
var fillers = map[gag.MouthState][]string{
	gag.MouthFull:    {"mm", "mmph", "mph", "hmm", "mmf", "ngh", "mnn"},
	gag.MouthClosed:  {"m", "mm", "hm", "mf", "n", "nn", "hmf"},
	gag.MouthOpen:    {"a", "ah", "aa", "uh", "ha", "gah", "aw"},
	gag.MouthNoSound: {"m", "n", "h"},
}

// silentCluster is the alphabet of the short hum emitted under MouthNoSound.
const silentCluster = "mnh"

const (
	// silenceMinLength is the shortest word that can make any sound at all
	// under MouthNoSound.
	silenceMinLength = 3

	silenceChanceCapitalized = 0.25
	silenceChance            = 0.50
)

// Obfuscator produces garbled stand-ins for words the resolver cannot handle.
// It is safe for concurrent use; all callers share one random source.
type Obfuscator struct {
	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// NewObfuscator returns an Obfuscator drawing from rng. A nil rng uses the
// package-level math/rand/v2 source.
func NewObfuscator(rng *rand.Rand) *Obfuscator {
	return &Obfuscator{rng: rng}
}

func (o *Obfuscator) intN(n int) int {
	if o.rng == nil {
		return rand.IntN(n)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.IntN(n)
}

func (o *Obfuscator) float64() float64 {
	if o.rng == nil {
		return rand.Float64()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64()
}

// Obfuscate garbles tok.Word for the combined mouth state.
//
// Under MouthNoSound the result is a one or two letter hum followed by up to
// three periods, or nothing at all: always for words shorter than three
// runes, otherwise with a 25% (capitalised) or 50% chance. Words that already
// sound gagged are returned unchanged. Everything else is rebuilt from the
// filler list of the most restrictive mouth state and has exactly as many
// runes as the word.
func (o *Obfuscator) Obfuscate(tok phonetic.Token, mouth gag.MouthState) string {
	n := utf8.RuneCountInString(tok.Word)

	if mouth.Has(gag.MouthNoSound) {
		return o.silence(tok, n)
	}
	if alreadyMuffled(tok.Word) {
		return tok.Word
	}

	category := mouth.Strongest()
	if category == gag.MouthNone {
		category = gag.MouthClosed
	}
	list := fillers[category]

	var b strings.Builder
	for utf8.RuneCountInString(b.String()) < n {
		b.WriteString(list[o.intN(len(list))])
	}
	out := truncateRunes(b.String(), n)
	return restoreCase(out, tok.AllCaps, tok.Capitalized)
}

func (o *Obfuscator) silence(tok phonetic.Token, n int) string {
	if n < silenceMinLength {
		return ""
	}
	chance := silenceChance
	if tok.Capitalized {
		chance = silenceChanceCapitalized
	}
	if o.float64() < chance {
		return ""
	}

	var b strings.Builder
	for range 1 + o.intN(2) {
		b.WriteByte(silentCluster[o.intN(len(silentCluster))])
	}
	hum := restoreCase(b.String(), tok.AllCaps, tok.Capitalized)
	return hum + strings.Repeat(".", o.intN(4))
}

// alreadyMuffled reports whether word is made only of letters a gagged mouth
// produces anyway (m, p, g, f, h) and punctuation.
func alreadyMuffled(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if unicode.IsPunct(r) {
			continue
		}
		switch unicode.ToLower(r) {
		case 'm', 'p', 'g', 'f', 'h':
		default:
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
