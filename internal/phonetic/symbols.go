package phonetic

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// builtinSymbols lists the multi-character symbols of the dialects that ship
// with gagspeak. Single characters never need listing: anything that does not
// match a multi-character symbol is consumed one rune at a time.
var builtinSymbols = map[string][]string{
	"en-US": {
		"aɪ", "aʊ", "eɪ", "oʊ", "ɔɪ",
		"tʃ", "dʒ",
		"ɪɹ", "ɛɹ", "ʊɹ", "ɑɹ", "ɔɹ",
	},
	"en-GB": {
		"aɪ", "aʊ", "eɪ", "əʊ", "ɔɪ",
		"ɪə", "eə", "ʊə",
		"tʃ", "dʒ",
		"iː", "uː", "ɑː", "ɔː", "ɜː",
	},
}

// BuiltinDialects returns the names of the dialects with a built-in symbol
// table, sorted.
func BuiltinDialects() []string {
	names := make([]string, 0, len(builtinSymbols))
	for name := range builtinSymbols {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SymbolTable is the master list of multi-character phonetic symbols for one
// dialect. Decomposition always tries longer symbols before shorter ones.
type SymbolTable struct {
	lengths []int                       // distinct symbol lengths in runes, descending
	byLen   map[int]map[string]struct{} // rune length -> symbols
}

// NewSymbolTable builds a table from symbols. Empty and single-rune entries
// are ignored; duplicates are harmless.
func NewSymbolTable(symbols ...string) *SymbolTable {
	t := &SymbolTable{byLen: make(map[int]map[string]struct{})}
	for _, s := range symbols {
		s = NormalizeNotation(s)
		n := utf8.RuneCountInString(s)
		if n < 2 {
			continue
		}
		set, ok := t.byLen[n]
		if !ok {
			set = make(map[string]struct{})
			t.byLen[n] = set
			t.lengths = append(t.lengths, n)
		}
		set[s] = struct{}{}
	}
	slices.SortFunc(t.lengths, func(a, b int) int { return b - a })
	return t
}

// DialectSymbols returns the built-in table for dialect extended with extra.
// Unknown dialects start from an empty table.
func DialectSymbols(dialect string, extra ...string) *SymbolTable {
	base := builtinSymbols[dialect]
	all := make([]string, 0, len(base)+len(extra))
	all = append(all, base...)
	all = append(all, extra...)
	return NewSymbolTable(all...)
}

// Symbols returns every symbol in the table, longest first and alphabetical
// within a length.
func (t *SymbolTable) Symbols() []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, n := range t.lengths {
		group := make([]string, 0, len(t.byLen[n]))
		for s := range t.byLen[n] {
			group = append(group, s)
		}
		slices.Sort(group)
		out = append(out, group...)
	}
	return out
}

// Decompose splits a normalised notation into atomic symbols. At every
// position the longest matching table symbol is consumed; when none matches a
// single rune is consumed instead.
func (t *SymbolTable) Decompose(notation string) []string {
	if notation == "" {
		return nil
	}
	runes := []rune(notation)
	out := make([]string, 0, len(runes))
	for i := 0; i < len(runes); {
		n := t.match(runes[i:])
		out = append(out, string(runes[i:i+n]))
		i += n
	}
	return out
}

// match returns the rune length of the symbol starting at rest; 1 when no
// multi-character symbol applies.
func (t *SymbolTable) match(rest []rune) int {
	if t == nil {
		return 1
	}
	for _, n := range t.lengths {
		if n > len(rest) {
			continue
		}
		if _, ok := t.byLen[n][string(rest[:n])]; ok {
			return n
		}
	}
	return 1
}

// String implements fmt.Stringer for log output.
func (t *SymbolTable) String() string {
	return strings.Join(t.Symbols(), " ")
}
