package wearer_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/phonetic"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

func testCatalog(t *testing.T, names ...string) *gag.Catalog {
	t.Helper()
	if len(names) == 0 {
		names = []string{"Ball Gag", "Tape"}
	}
	defs := make([]gag.Definition, 0, len(names))
	for _, n := range names {
		defs = append(defs, gag.Definition{
			Name:       n,
			MouthState: gag.MouthFull,
			Phonemes: map[string]gag.Phoneme{
				"h": {Sound: "m", Muffle: 1},
				"i": {Sound: "f", Muffle: 1},
			},
		})
	}
	c, err := gag.NewCatalog(defs...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func testTranscriber() *phonetic.Transcriber {
	return phonetic.NewTranscriber("en-US",
		phonetic.NewDictionary(map[string]string{"hi": "hi"}),
		phonetic.DialectSymbols("en-US"))
}

func newRegistry(t *testing.T, opts ...wearer.Option) (*wearer.Registry, *wearer.MemStore) {
	t.Helper()
	store := wearer.NewMemStore()
	opts = append([]wearer.Option{
		wearer.WithStore(store),
		wearer.WithRand(rand.New(rand.NewPCG(7, 7))),
	}, opts...)
	return wearer.NewRegistry(testCatalog(t), testTranscriber(), opts...), store
}

func TestRegistry_EquipAndGarble(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newRegistry(t)

	if got := r.Garble("alice", "hi", false); got != "hi" {
		t.Errorf("ungagged Garble = %q, want unchanged", got)
	}

	set, err := r.Equip(ctx, "alice", []string{"ball gag", "None", ""}, gag.MouthNone)
	if err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if got := set.Names(); !slices.Equal(got, []string{"Ball Gag"}) {
		t.Errorf("Names() = %v, want [Ball Gag]", got)
	}
	if got := r.Garble("alice", "hi", false); got != "mf" {
		t.Errorf("Garble = %q, want %q", got, "mf")
	}
	if got := r.Garble("bob", "hi", false); got != "hi" {
		t.Errorf("other wearer Garble = %q, want unchanged", got)
	}

	l, err := store.Get(ctx, "alice")
	if err != nil || l == nil {
		t.Fatalf("store.Get = %v, %v", l, err)
	}
	if !slices.Equal(l.Gags, []string{"Ball Gag"}) {
		t.Errorf("stored gags = %v, want canonical names", l.Gags)
	}
}

func TestRegistry_EquipRejectsUnknownGag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newRegistry(t)

	_, err := r.Equip(ctx, "alice", []string{"Tape", "Muzzle"}, gag.MouthNone)
	if !errors.Is(err, wearer.ErrUnknownGag) {
		t.Fatalf("err = %v, want ErrUnknownGag", err)
	}
	if l, _ := store.Get(ctx, "alice"); l != nil {
		t.Error("failed equip was persisted")
	}
	if _, err := r.Status("alice"); !errors.Is(err, wearer.ErrNotFound) {
		t.Errorf("Status err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_EquipTooMany(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)

	_, err := r.Equip(context.Background(), "alice",
		[]string{"Tape", "Tape", "Tape", "Tape"}, gag.MouthNone)
	if !errors.Is(err, wearer.ErrInvalidLoadout) {
		t.Fatalf("err = %v, want ErrInvalidLoadout", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newRegistry(t)

	if _, err := r.Equip(ctx, "alice", []string{"Tape"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if err := r.Remove(ctx, "alice"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := r.Garble("alice", "hi", false); got != "hi" {
		t.Errorf("Garble after Remove = %q, want unchanged", got)
	}
	if l, _ := store.Get(ctx, "alice"); l != nil {
		t.Error("loadout still stored after Remove")
	}
	if err := r.Remove(ctx, "nobody"); err != nil {
		t.Errorf("Remove(unknown) = %v, want nil", err)
	}
	if got := r.Wearers(); len(got) != 0 {
		t.Errorf("Wearers() = %v, want none", got)
	}
}

func TestRegistry_Restore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := wearer.NewMemStore()
	for _, l := range []wearer.Loadout{
		{WearerID: "alice", Gags: []string{"Tape"}},
		{WearerID: "bob", Gags: []string{"Ball Gag"}, MouthState: gag.MouthOpen},
	} {
		if err := store.Put(ctx, &l); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	r := wearer.NewRegistry(testCatalog(t), testTranscriber(), wearer.WithStore(store))
	n, err := r.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d, want 2", n)
	}
	if got := r.Wearers(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Errorf("Wearers() = %v", got)
	}
	set, err := r.Status("bob")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if want := gag.MouthFull | gag.MouthOpen; set.Mouth() != want {
		t.Errorf("bob mouth = %s, want %s", set.Mouth(), want)
	}
}

func TestRegistry_Reload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newRegistry(t)

	if _, err := r.Equip(ctx, "alice", []string{"Ball Gag"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}

	r.Reload(ctx, testCatalog(t, "Tape"), nil)
	if got := r.Garble("alice", "hi", false); got != "hi" {
		t.Errorf("Garble with gag reloaded away = %q, want unchanged", got)
	}
	set, err := r.Status("alice")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !set.Empty() || !slices.Equal(set.Requested(), []string{"Ball Gag"}) {
		t.Errorf("after reload: names %v requested %v", set.Names(), set.Requested())
	}

	gb := phonetic.NewTranscriber("en-GB",
		phonetic.NewDictionary(map[string]string{"hi": "h"}),
		phonetic.DialectSymbols("en-GB"))
	r.Reload(ctx, testCatalog(t), gb)
	if got := r.Garble("alice", "hi", false); got != "m" {
		t.Errorf("Garble after restore = %q, want %q", got, "m")
	}
	if r.Transcriber().Dialect() != "en-GB" {
		t.Errorf("Transcriber dialect = %q", r.Transcriber().Dialect())
	}

	// Newly created engines pick up the reloaded values as well.
	if _, err := r.Equip(ctx, "bob", []string{"Tape"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if got := r.Garble("bob", "hi", false); got != "m" {
		t.Errorf("new wearer Garble = %q, want %q", got, "m")
	}
}

func TestRegistry_GaggedWearersGauge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	r, _ := newRegistry(t, wearer.WithMetrics(m))

	mustEquip := func(id string, names ...string) {
		t.Helper()
		if _, err := r.Equip(ctx, id, names, gag.MouthNone); err != nil {
			t.Fatalf("Equip(%s): %v", id, err)
		}
	}
	mustEquip("alice", "Tape")
	mustEquip("alice", "Ball Gag") // still gagged, no change
	mustEquip("bob", "Tape")
	mustEquip("carol") // nothing equipped
	if err := r.Remove(ctx, "bob"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var got int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "gagspeak.wearers.gagged" {
				continue
			}
			sum := mt.Data.(metricdata.Sum[int64])
			got = 0
			for _, dp := range sum.DataPoints {
				got += dp.Value
			}
		}
	}
	if got != 1 {
		t.Errorf("gagged wearers = %d, want 1", got)
	}
}

// stallingStore blocks writes for one wearer until release is closed.
type stallingStore struct {
	*wearer.MemStore
	wearer  string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Put(ctx context.Context, l *wearer.Loadout) error {
	if l.WearerID == s.wearer {
		close(s.entered)
		<-s.release
	}
	return s.MemStore.Put(ctx, l)
}

func TestRegistry_SlowWriteDoesNotBlockOtherWearers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &stallingStore{
		MemStore: wearer.NewMemStore(),
		wearer:   "bob",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	r, _ := newRegistry(t, wearer.WithStore(store))
	if _, err := r.Equip(ctx, "alice", []string{"Ball Gag"}, gag.MouthNone); err != nil {
		t.Fatalf("Equip alice: %v", err)
	}

	equipped := make(chan error, 1)
	go func() {
		_, err := r.Equip(ctx, "bob", []string{"Tape"}, gag.MouthNone)
		equipped <- err
	}()
	<-store.entered

	garbled := make(chan string, 1)
	go func() { garbled <- r.Garble("alice", "hi", false) }()
	select {
	case got := <-garbled:
		if got != "mf" {
			t.Errorf("Garble(alice) = %q, want mf", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Garble(alice) blocked behind bob's store write")
	}
	if _, err := r.Status("alice"); err != nil {
		t.Errorf("Status(alice) while bob is saving: %v", err)
	}

	close(store.release)
	if err := <-equipped; err != nil {
		t.Fatalf("Equip bob: %v", err)
	}
	if got := r.Garble("bob", "hi", false); got != "mf" {
		t.Errorf("Garble(bob) = %q, want mf", got)
	}
}
