// Package phonetic turns chat text into phonetic symbol sequences.
//
// A [Dictionary] maps lower-case words to a normalised phonetic notation
// (typically IPA). A [SymbolTable] holds the multi-character symbols of one
// dialect and splits a notation into atomic symbols using greedy
// longest-match. The [Transcriber] combines both: it tokenises text on
// single spaces, strips leading and trailing punctuation from every token,
// looks the remainder up and decomposes the notation into symbols.
//
// Words that are missing from the dictionary can optionally be resolved to a
// near-miss entry. Candidates are found through shared Double Metaphone codes
// and ranked by Jaro-Winkler similarity, the same two-stage approach used for
// entity name matching elsewhere.
//
// Dictionaries, symbol tables and transcribers are read-only after
// construction and safe for concurrent use.
package phonetic

import (
	"slices"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/unicode/norm"
)

// notationCleaner strips stress marks and the bracket and separator
// characters dictionaries wrap transcriptions in.
var notationCleaner = strings.NewReplacer(
	"ˈ", "", // primary stress
	"ˌ", "", // secondary stress
	"/", "",
	"[", "",
	"]", "",
	".", "",
	"-", "",
	" ", "",
)

// NormalizeNotation reduces a raw dictionary notation to the form consumed by
// [SymbolTable.Decompose]: NFC-composed, first comma-separated alternate only,
// stress marks and separators removed.
func NormalizeNotation(raw string) string {
	s := norm.NFC.String(raw)
	if i := strings.IndexAny(s, ",，"); i >= 0 {
		s = s[:i]
	}
	return notationCleaner.Replace(strings.TrimSpace(s))
}

// Dictionary is an immutable word to notation mapping for one dialect.
// The nil *Dictionary is valid and behaves like an empty dictionary.
type Dictionary struct {
	entries map[string]string

	indexOnce sync.Once
	index     map[string][]string // metaphone code -> words
}

// NewDictionary builds a dictionary from raw entries. Keys are lower-cased and
// values normalised with [NormalizeNotation]. Entries whose notation
// normalises to the empty string are dropped.
func NewDictionary(raw map[string]string) *Dictionary {
	entries := make(map[string]string, len(raw))
	for word, notation := range raw {
		w := strings.ToLower(strings.TrimSpace(word))
		n := NormalizeNotation(notation)
		if w == "" || n == "" {
			continue
		}
		entries[w] = n
	}
	return &Dictionary{entries: entries}
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Lookup returns the normalised notation for word. The lookup is
// case-insensitive.
func (d *Dictionary) Lookup(word string) (string, bool) {
	if d == nil {
		return "", false
	}
	n, ok := d.entries[strings.ToLower(word)]
	return n, ok
}

// Nearest returns the dictionary word that sounds most like word.
//
// Only entries sharing at least one Double Metaphone code with word are
// considered; among those the highest Jaro-Winkler score wins, provided it
// reaches threshold. Ties are broken alphabetically so results are stable.
// The metaphone index is built on first use.
func (d *Dictionary) Nearest(word string, threshold float64) (match string, score float64, ok bool) {
	if d == nil || len(d.entries) == 0 || threshold <= 0 {
		return "", 0, false
	}
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return "", 0, false
	}
	d.indexOnce.Do(d.buildIndex)

	seen := make(map[string]struct{})
	for code := range codesFor(w) {
		for _, cand := range d.index[code] {
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			s := matchr.JaroWinkler(w, cand, false)
			if s < threshold {
				continue
			}
			if s > score || (s == score && cand < match) {
				match, score = cand, s
			}
		}
	}
	return match, score, match != ""
}

func (d *Dictionary) buildIndex() {
	d.index = make(map[string][]string, len(d.entries))
	for w := range d.entries {
		for code := range codesFor(w) {
			d.index[code] = append(d.index[code], w)
		}
	}
	for code := range d.index {
		slices.Sort(d.index[code])
	}
}

// codesFor returns the non-empty Double Metaphone codes for word.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}
