// Package garble turns chat messages into the muffled speech of a gagged
// wearer.
//
// An [Engine] owns one wearer's active gag set and garbles whole messages:
// tokens are transcribed into phonetic symbols, every symbol is replaced by
// the sound of the most restrictive equipped gag that defines it, and words
// without usable phonetics fall back to randomised filler text. Roleplay
// segments between emphasis markers and recognised emotes are passed through
// untouched. Capitalisation and surrounding punctuation of each word are
// preserved.
//
// Garble never fails: a panic while garbling one word leaves that word
// unchanged and a panic anywhere else yields an empty message.
package garble

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/phonetic"
)

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics records garble latency and per-route word counts to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithObfuscator shares o between engines. Without it each engine uses its
// own obfuscator over the global random source.
func WithObfuscator(o *Obfuscator) Option {
	return func(e *Engine) {
		if o != nil {
			e.fallback = o
		}
	}
}

// WithRand makes fallback obfuscation draw from rng, for reproducible output.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.fallback = NewObfuscator(rng)
	}
}

// WithMarker sets the roleplay emphasis marker. Default: "*".
func WithMarker(marker string) Option {
	return func(e *Engine) {
		if marker != "" {
			e.marker = marker
		}
	}
}

// WithEmotes sets the emote names recognised as ":name:" tokens.
func WithEmotes(names ...string) Option {
	return func(e *Engine) {
		e.emotes = make(map[string]struct{}, len(names))
		for _, n := range names {
			n = strings.ToLower(strings.Trim(strings.TrimSpace(n), ":"))
			if n != "" {
				e.emotes[n] = struct{}{}
			}
		}
	}
}

// Engine garbles messages for one wearer. The active gag set, the catalog and
// the transcriber are each held behind an atomic pointer: updates replace the
// whole value and an in-flight Garble keeps the snapshot it started with.
// All methods are safe for concurrent use.
type Engine struct {
	// setMu serialises writers of active and catalog so the active set is
	// always resolved against the current catalog. Readers never take it.
	setMu sync.Mutex

	active      atomic.Pointer[gag.ActiveSet]
	catalog     atomic.Pointer[gag.Catalog]
	transcriber atomic.Pointer[phonetic.Transcriber]

	fallback *Obfuscator
	marker   string
	emotes   map[string]struct{}
	metrics  *observe.Metrics
}

// New returns an engine with no gags equipped. Until [Engine.SetActiveGags]
// equips something, Garble returns its input unchanged.
func New(catalog *gag.Catalog, tr *phonetic.Transcriber, opts ...Option) *Engine {
	e := &Engine{
		fallback: NewObfuscator(nil),
		marker:   DefaultMarker,
	}
	for _, o := range opts {
		o(e)
	}
	e.catalog.Store(catalog)
	e.transcriber.Store(tr)
	e.active.Store(gag.Resolve(catalog, nil, gag.MouthNone))
	return e
}

// SetActiveGags replaces the equipped gags. Names missing from the catalog
// are ignored; an empty result makes Garble a no-op.
func (e *Engine) SetActiveGags(names []string, mouth gag.MouthState) *gag.ActiveSet {
	e.setMu.Lock()
	defer e.setMu.Unlock()
	set := gag.Resolve(e.catalog.Load(), names, mouth)
	e.active.Store(set)
	return set
}

// ActiveGags returns the current active set snapshot.
func (e *Engine) ActiveGags() *gag.ActiveSet {
	return e.active.Load()
}

// SetCatalog swaps the gag catalog and re-resolves the equipped gags against
// it, so gags renamed or removed by a reload drop out and newly added ones
// that were already requested take effect.
func (e *Engine) SetCatalog(c *gag.Catalog) *gag.ActiveSet {
	e.setMu.Lock()
	defer e.setMu.Unlock()
	e.catalog.Store(c)
	set := e.active.Load().Reresolve(c)
	e.active.Store(set)
	return set
}

// Catalog returns the catalog gags are resolved against.
func (e *Engine) Catalog() *gag.Catalog {
	return e.catalog.Load()
}

// SetTranscriber swaps the dictionary and dialect used for transcription.
func (e *Engine) SetTranscriber(tr *phonetic.Transcriber) {
	e.transcriber.Store(tr)
}

// Dialect returns the dialect of the current transcriber.
func (e *Engine) Dialect() string {
	if tr := e.transcriber.Load(); tr != nil {
		return tr.Dialect()
	}
	return ""
}

// routeCounts accumulates per-route word counts for one message.
type routeCounts map[string]int64

// Garble returns the text to send in place of input. With no gags equipped
// input is returned unchanged. Otherwise input is trimmed, split on single
// spaces and every token is garbled or passed through according to the
// segment state machine, then re-joined with single spaces.
//
// When allowEmotes is set, ":name:" tokens naming a known emote are never
// garbled. Garble does not panic: on internal failure it logs and returns "".
func (e *Engine) Garble(input string, allowEmotes bool) (out string) {
	set := e.active.Load()
	if set.Empty() {
		return input
	}

	start := time.Now()
	counts := routeCounts{}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("garble: message failed", "panic", r)
			if e.metrics != nil {
				e.metrics.RecordFailure(context.Background())
			}
			out = ""
		}
		e.record(start, counts)
	}()

	tr := e.transcriber.Load()
	seg := NewSegmentMachine(e.marker, e.emotes, allowEmotes)
	words := phonetic.Split(strings.TrimSpace(input))

	parts := make([]string, 0, len(words))
	for _, raw := range words {
		parts = append(parts, e.garbleToken(tr, seg, set, raw, counts))
	}
	return strings.Join(parts, " ")
}

// garbleToken handles one raw token. A panic leaves the token unchanged.
func (e *Engine) garbleToken(tr *phonetic.Transcriber, seg *SegmentMachine, set *gag.ActiveSet, raw string, counts routeCounts) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("garble: word failed, emitting unchanged", "word", raw, "panic", r)
			out = raw
		}
	}()

	if seg.Next(raw) == ActionVerbatim {
		counts[observe.RouteSkipped]++
		return raw
	}
	if !phonetic.HasLetter(raw) {
		counts[observe.RoutePassthrough]++
		return raw
	}

	tok := tr.TranscribeWord(raw)
	word, route := e.garbleWord(tok, set)
	counts[route]++
	return tok.Leading + word + tok.Trailing
}

// garbleWord garbles the punctuation-free core of tok and reports the route
// it took.
func (e *Engine) garbleWord(tok phonetic.Token, set *gag.ActiveSet) (string, string) {
	mouth := set.Mouth()
	if mouth.Has(gag.MouthNoSound) {
		return e.fallback.Obfuscate(tok, mouth), observe.RouteSilenced
	}
	if tok.Found {
		if s := Resolve(tok.Symbols, set); s != "" {
			return restoreCase(s, tok.AllCaps, tok.Capitalized), observe.RouteResolved
		}
	}
	return e.fallback.Obfuscate(tok, mouth), observe.RouteFallback
}

// Resolve concatenates, for every symbol, the sound of the strongest gag in
// set that defines it. Symbols no equipped gag defines contribute nothing.
func Resolve(symbols []string, set *gag.ActiveSet) string {
	var b strings.Builder
	for _, sym := range symbols {
		if p, ok := set.Strongest(sym); ok {
			b.WriteString(p.Sound)
		}
	}
	return b.String()
}

func (e *Engine) record(start time.Time, counts routeCounts) {
	if e.metrics == nil {
		return
	}
	ctx := context.Background()
	e.metrics.RecordGarble(ctx, time.Since(start))
	for route, n := range counts {
		e.metrics.RecordWords(ctx, route, n)
	}
}
