package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one whitespace-delimited word of an input message.
type Token struct {
	// Raw is the token exactly as it appeared in the input.
	Raw string

	// Word is Raw without its leading and trailing punctuation.
	Word string

	// Leading and Trailing hold the punctuation stripped from Raw.
	Leading  string
	Trailing string

	// AllCaps is true when Word has at least two letters and none of them
	// is lower-case.
	AllCaps bool

	// Capitalized is true when the first letter of Word is upper-case.
	Capitalized bool

	// Symbols is the decomposed notation of Word. Empty when Found is false.
	Symbols []string

	// Found reports whether Word (or a near-miss of it) has a dictionary entry.
	Found bool
}

// Option configures a [Transcriber].
type Option func(*Transcriber)

// WithNearMiss enables near-miss lookup for words missing from the
// dictionary. Only candidates scoring at least threshold on Jaro-Winkler are
// accepted. A threshold <= 0 disables the lookup (the default).
func WithNearMiss(threshold float64) Option {
	return func(t *Transcriber) {
		t.nearMiss = threshold
	}
}

// Transcriber converts tokens into phonetic symbol sequences for one dialect.
// It is safe for concurrent use.
type Transcriber struct {
	dialect  string
	dict     *Dictionary
	symbols  *SymbolTable
	nearMiss float64
}

// NewTranscriber returns a transcriber for dialect backed by dict and symbols.
// A nil dict behaves as an empty dictionary.
func NewTranscriber(dialect string, dict *Dictionary, symbols *SymbolTable, opts ...Option) *Transcriber {
	t := &Transcriber{
		dialect: dialect,
		dict:    dict,
		symbols: symbols,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Dialect returns the dialect name the transcriber was built for.
func (t *Transcriber) Dialect() string { return t.dialect }

// Dictionary returns the backing dictionary.
func (t *Transcriber) Dictionary() *Dictionary { return t.dict }

// Split breaks text into raw tokens on single spaces after turning line
// breaks into spaces. Empty entries between consecutive spaces are kept so
// spacing survives a round trip; trailing empty entries are dropped.
func Split(text string) []string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	words := strings.Split(text, " ")
	for len(words) > 0 && words[len(words)-1] == "" {
		words = words[:len(words)-1]
	}
	return words
}

// Transcribe splits text with [Split] and transcribes every token.
func (t *Transcriber) Transcribe(text string) []Token {
	raw := Split(text)
	out := make([]Token, 0, len(raw))
	for _, r := range raw {
		out = append(out, t.TranscribeWord(r))
	}
	return out
}

// TranscribeWord transcribes a single raw token. Tokens consisting only of
// punctuation come back with an empty Word and Found false.
func (t *Transcriber) TranscribeWord(raw string) Token {
	tok := Token{Raw: raw}
	tok.Leading, tok.Word, tok.Trailing = StripPunctuation(raw)
	if tok.Word == "" {
		return tok
	}
	tok.AllCaps, tok.Capitalized = CaseOf(tok.Word)

	key := strings.ToLower(tok.Word)
	notation, ok := t.dict.Lookup(key)
	if !ok && t.nearMiss > 0 {
		if near, _, found := t.dict.Nearest(key, t.nearMiss); found {
			notation, ok = t.dict.Lookup(near)
		}
	}
	if !ok {
		return tok
	}
	tok.Symbols = t.symbols.Decompose(notation)
	tok.Found = len(tok.Symbols) > 0
	return tok
}

// StripPunctuation splits raw into its leading punctuation, core and
// trailing punctuation. When raw is all punctuation the core is empty and
// everything is reported as leading.
func StripPunctuation(raw string) (leading, core, trailing string) {
	start := strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsPunct(r) })
	if start < 0 {
		return raw, "", ""
	}
	end := strings.LastIndexFunc(raw, func(r rune) bool { return !unicode.IsPunct(r) })
	// end indexes the first byte of the last non-punctuation rune.
	_, size := utf8.DecodeRuneInString(raw[end:])
	return raw[:start], raw[start : end+size], raw[end+size:]
}

// CaseOf reports the capitalisation pattern of word.
func CaseOf(word string) (allCaps, capitalized bool) {
	letters, lower := 0, 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		if letters == 0 {
			capitalized = unicode.IsUpper(r)
		}
		letters++
		if unicode.IsLower(r) {
			lower++
		}
	}
	return letters >= 2 && lower == 0, capitalized
}

// HasLetter reports whether s contains at least one letter.
func HasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
