package garble_test

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/garble"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/phonetic"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

func testTranscriber(t *testing.T) *phonetic.Transcriber {
	t.Helper()
	dict := phonetic.NewDictionary(map[string]string{
		"hello": "h-ɛ-l-oʊ",
	})
	return phonetic.NewTranscriber("en-US", dict, phonetic.DialectSymbols("en-US"))
}

func ballGag() gag.Definition {
	return gag.Definition{
		Name:       "Ball Gag",
		MouthState: gag.MouthFull,
		Phonemes: map[string]gag.Phoneme{
			"h":  {Sound: "m", Muffle: 1},
			"ɛ":  {Sound: "ph", Muffle: 1},
			"l":  {Sound: "n", Muffle: 1},
			"oʊ": {Sound: "gh", Muffle: 1},
		},
	}
}

func tapeGag() gag.Definition {
	return gag.Definition{
		Name:       "Tape",
		MouthState: gag.MouthClosed,
		Phonemes: map[string]gag.Phoneme{
			"h": {Sound: "x", Muffle: 5},
			"ɛ": {Sound: "q", Muffle: 1},
		},
	}
}

func silentGag() gag.Definition {
	return gag.Definition{
		Name:       "Hood",
		MouthState: gag.MouthNoSound,
		Phonemes: map[string]gag.Phoneme{
			"h": {Sound: "m", Muffle: 9},
		},
	}
}

func testCatalog(t *testing.T, defs ...gag.Definition) *gag.Catalog {
	t.Helper()
	if len(defs) == 0 {
		defs = []gag.Definition{ballGag(), tapeGag(), silentGag()}
	}
	c, err := gag.NewCatalog(defs...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func newEngine(t *testing.T, opts ...garble.Option) *garble.Engine {
	t.Helper()
	opts = append([]garble.Option{garble.WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return garble.New(testCatalog(t), testTranscriber(t), opts...)
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestGarble_NoGagsIsIdentity(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	for _, in := range []string{"", "  Hello  there ", "*waves* hi", "line\nbreak"} {
		if got := e.Garble(in, true); got != in {
			t.Errorf("Garble(%q) = %q, want input unchanged", in, got)
		}
	}

	e.SetActiveGags([]string{"None", "", "unknown"}, gag.MouthFull)
	if got := e.Garble("Hello", false); got != "Hello" {
		t.Errorf("Garble with only unknown gags = %q, want %q", got, "Hello")
	}
}

func TestGarble_ResolvedWord(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	tests := []struct {
		in   string
		want string
	}{
		{"hello", "mphngh"},
		{"HELLO", "MPHNGH"},
		{"Hello", "Mphngh"},
		{"Hello!", "Mphngh!"},
		{"(hello),", "(mphngh),"},
		{"  hello  ", "mphngh"},
		{"hello\nhello", "mphngh mphngh"},
		{"!!!", "!!!"},
		{"42", "42"},
	}
	for _, tc := range tests {
		if got := e.Garble(tc.in, false); got != tc.want {
			t.Errorf("Garble(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGarble_StrongestGagWins(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	// Tape muffles "h" harder. Both muffle "ɛ" equally, so the gag equipped
	// first decides it.
	e.SetActiveGags([]string{"Ball Gag", "Tape"}, gag.MouthNone)
	if got := e.Garble("hello", false); got != "xphngh" {
		t.Errorf("Garble(hello) = %q, want %q", got, "xphngh")
	}

	e.SetActiveGags([]string{"Tape", "Ball Gag"}, gag.MouthNone)
	if got := e.Garble("hello", false); got != "xqngh" {
		t.Errorf("Garble(hello) with Tape first = %q, want %q", got, "xqngh")
	}

	set := e.ActiveGags()
	if want := gag.MouthFull | gag.MouthClosed; set.Mouth() != want {
		t.Errorf("Mouth() = %s, want %s", set.Mouth(), want)
	}
}

func TestGarble_RoleplaySegments(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	got := e.Garble("*waves* Hello there", false)
	words := strings.Split(got, " ")
	if len(words) != 3 {
		t.Fatalf("Garble = %q, want 3 words", got)
	}
	if words[0] != "*waves*" {
		t.Errorf("roleplay word = %q, want %q", words[0], "*waves*")
	}
	if words[1] != "Mphngh" {
		t.Errorf("second word = %q, want %q", words[1], "Mphngh")
	}
	if words[2] == "there" || utf8.RuneCountInString(words[2]) != 5 {
		t.Errorf("third word = %q, want a 5 rune garble", words[2])
	}

	got = e.Garble("*waves at you* hello", false)
	if !strings.HasPrefix(got, "*waves at you* ") {
		t.Errorf("Garble = %q, want multi-word segment verbatim", got)
	}
	if !strings.HasSuffix(got, " mphngh") {
		t.Errorf("Garble = %q, want trailing word garbled", got)
	}

	got = e.Garble("hello * hello * hello", false)
	if got != "mphngh * hello * mphngh" {
		t.Errorf("Garble with bare markers = %q", got)
	}
}

func TestGarble_CustomMarker(t *testing.T) {
	t.Parallel()

	e := newEngine(t, garble.WithMarker("_"))
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	if got := e.Garble("_hello_ hello", false); got != "_hello_ mphngh" {
		t.Errorf("Garble = %q, want %q", got, "_hello_ mphngh")
	}
}

func TestGarble_Emotes(t *testing.T) {
	t.Parallel()

	e := newEngine(t, garble.WithEmotes("smile", ":Blush:"))
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	if got := e.Garble("hello :smile: :BLUSH:", true); got != "mphngh :smile: :BLUSH:" {
		t.Errorf("Garble with emotes allowed = %q", got)
	}

	got := e.Garble(":smile:", false)
	if got == ":smile:" {
		t.Error("emote passed through although emotes are not allowed")
	}
	if !strings.HasPrefix(got, ":") || !strings.HasSuffix(got, ":") {
		t.Errorf("Garble(:smile:) = %q, want colons preserved", got)
	}

	if got := e.Garble(":unknown:", true); got == ":unknown:" {
		t.Error("unknown emote passed through")
	}
}

func TestGarble_Deterministic(t *testing.T) {
	t.Parallel()

	const in = "Hello there, general Kenobi"
	run := func() string {
		e := newEngine(t)
		e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)
		return e.Garble(in, false)
	}
	a, b := run(), run()
	if a != b {
		t.Errorf("same seed produced %q and %q", a, b)
	}
}

func TestGarble_FallbackKeepsLength(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Tape"}, gag.MouthNone)

	for _, w := range []string{"there", "Kenobi", "a", "encyclopedia"} {
		got := e.Garble(w, false)
		if n, want := utf8.RuneCountInString(got), utf8.RuneCountInString(w); n != want {
			t.Errorf("Garble(%q) = %q (%d runes), want %d runes", w, got, n, want)
		}
	}
}

func TestGarble_AlreadyMuffledPassesThrough(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag", "Tape"}, gag.MouthOpen)

	if got := e.Garble("mmph Hmpf!", false); got != "mmph Hmpf!" {
		t.Errorf("Garble = %q, want muffled words unchanged", got)
	}
}

func TestGarble_UncoveredSymbolsFallBack(t *testing.T) {
	t.Parallel()

	bit := gag.Definition{
		Name:       "Bit",
		MouthState: gag.MouthOpen,
		Phonemes:   map[string]gag.Phoneme{"z": {Sound: "zz", Muffle: 3}},
	}
	e := garble.New(testCatalog(t, bit), testTranscriber(t), garble.WithRand(rand.New(rand.NewPCG(1, 2))))
	e.SetActiveGags([]string{"Bit"}, gag.MouthNone)

	for range 10 {
		got := e.Garble("Hello", false)
		if utf8.RuneCountInString(got) != 5 {
			t.Fatalf("Garble(Hello) = %q, want 5 runes of filler", got)
		}
		if got[:1] != "A" && got[:1] != "H" && got[:1] != "U" && got[:1] != "G" {
			t.Fatalf("Garble(Hello) = %q, want a capitalised open-mouth filler", got)
		}
		if strings.Trim(strings.ToLower(got), "ahugw") != "" {
			t.Fatalf("Garble(Hello) = %q, want open-mouth filler letters only", got)
		}
	}
}

func TestGarble_NoSound(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Hood"}, gag.MouthNone)

	for _, w := range []string{"hi", "I", "ok"} {
		if got := e.Garble(w, false); got != "" {
			t.Errorf("Garble(%q) under no-sound = %q, want empty", w, got)
		}
	}

	// Even dictionary words are silenced rather than resolved.
	for range 20 {
		got := e.Garble("hello", false)
		if strings.ContainsAny(got, "aeiou") {
			t.Fatalf("Garble(hello) under no-sound = %q", got)
		}
		if len(strings.TrimRight(got, ".")) > 2 {
			t.Fatalf("Garble(hello) under no-sound = %q, want at most two letters", got)
		}
	}
}

func TestGarble_CallerMouthStateNoSound(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNoSound)
	if got := e.Garble("hi", false); got != "" {
		t.Errorf("Garble(hi) = %q, want empty", got)
	}
}

func TestGarble_WordPanicEmitsRaw(t *testing.T) {
	t.Parallel()

	// A nil transcriber makes every dictionary lookup panic.
	e := garble.New(testCatalog(t), nil)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	if got := e.Garble("Hello *waves* there", false); got != "Hello *waves* there" {
		t.Errorf("Garble = %q, want every word unchanged", got)
	}
}

func TestEngine_SetCatalog(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthOpen)

	set := e.SetCatalog(testCatalog(t, tapeGag()))
	if !set.Empty() {
		t.Fatalf("after removing Ball Gag, active = %v", set.Names())
	}
	if got := e.Garble("hello", false); got != "hello" {
		t.Errorf("Garble with gag reloaded away = %q, want unchanged", got)
	}

	set = e.SetCatalog(testCatalog(t))
	if got := set.Names(); len(got) != 1 || got[0] != "Ball Gag" {
		t.Fatalf("after restoring, active = %v", got)
	}
	if want := gag.MouthFull | gag.MouthOpen; set.Mouth() != want {
		t.Errorf("Mouth() = %s, want %s", set.Mouth(), want)
	}
	if got := e.Garble("hello", false); got != "mphngh" {
		t.Errorf("Garble = %q, want %q", got, "mphngh")
	}
}

func TestEngine_SetTranscriber(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)

	gb := phonetic.NewTranscriber("en-GB",
		phonetic.NewDictionary(map[string]string{"hello": "hɛl"}),
		phonetic.DialectSymbols("en-GB"))
	e.SetTranscriber(gb)

	if e.Dialect() != "en-GB" {
		t.Errorf("Dialect() = %q, want en-GB", e.Dialect())
	}
	if got := e.Garble("hello", false); got != "mphn" {
		t.Errorf("Garble = %q, want %q", got, "mphn")
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				if (i+j)%5 == 0 {
					e.SetActiveGags([]string{"Ball Gag", "Tape"}, gag.MouthNone)
				}
				_ = e.Garble("Hello there *waves*", true)
			}
		}()
	}
	wg.Wait()
}

func TestEngine_SettersResolveAgainstCurrentCatalog(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	catalogs := []*gag.Catalog{testCatalog(t, tapeGag()), testCatalog(t, tapeGag(), ballGag())}

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 100 {
				e.SetCatalog(catalogs[(i+j)%2])
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				e.SetActiveGags([]string{"Tape"}, gag.MouthNone)
			}
		}()
	}
	wg.Wait()

	want, _ := e.Catalog().Lookup("Tape")
	if got := e.ActiveGags().Gags(); len(got) != 1 || got[0] != want {
		t.Fatal("active set was resolved against a replaced catalog")
	}
}

func TestGarble_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	e := newEngine(t, garble.WithMetrics(m))
	e.SetActiveGags([]string{"Ball Gag"}, gag.MouthNone)
	_ = e.Garble("*waves* Hello there !!", false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := map[string]int64{
		observe.RouteSkipped:     1,
		observe.RouteResolved:    1,
		observe.RouteFallback:    1,
		observe.RoutePassthrough: 1,
	}
	got := map[string]int64{}
	var sawDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			switch mt.Name {
			case "gagspeak.garble.words":
				sum, ok := mt.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("words data is %T", mt.Data)
				}
				for _, dp := range sum.DataPoints {
					route, _ := dp.Attributes.Value(attribute.Key("route"))
					got[route.AsString()] = dp.Value
				}
			case "gagspeak.garble.duration":
				sawDuration = true
			}
		}
	}
	for route, n := range want {
		if got[route] != n {
			t.Errorf("words[%s] = %d, want %d", route, got[route], n)
		}
	}
	if !sawDuration {
		t.Error("garble duration was not recorded")
	}
}
