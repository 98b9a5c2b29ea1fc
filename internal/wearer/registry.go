package wearer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/garble"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/phonetic"
)

// Option configures a [Registry].
type Option func(*Registry)

// WithStore persists loadouts to s. Default: a fresh [MemStore].
func WithStore(s Store) Option {
	return func(r *Registry) {
		if s != nil {
			r.store = s
		}
	}
}

// WithMetrics reports gagged wearers and garble metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithRand makes fallback obfuscation of every wearer draw from rng.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		r.obfuscator = garble.NewObfuscator(rng)
	}
}

// WithEngineOptions passes opts to every engine the registry creates.
func WithEngineOptions(opts ...garble.Option) Option {
	return func(r *Registry) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// Registry owns the garble engine of every known wearer. All methods are
// safe for concurrent use. Garbling only takes a read lock, and store I/O
// runs under a per-wearer lock so a slow write never holds up other wearers.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*garble.Engine
	catalog *gag.Catalog
	tr      *phonetic.Transcriber

	// locksMu guards locks. A wearer's lock orders its store write with the
	// engine update that follows.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	store      Store
	metrics    *observe.Metrics
	obfuscator *garble.Obfuscator
	engineOpts []garble.Option
}

// NewRegistry returns an empty registry garbling with catalog and tr.
func NewRegistry(catalog *gag.Catalog, tr *phonetic.Transcriber, opts ...Option) *Registry {
	r := &Registry{
		engines:    make(map[string]*garble.Engine),
		locks:      make(map[string]*sync.Mutex),
		catalog:    catalog,
		tr:         tr,
		store:      NewMemStore(),
		obfuscator: garble.NewObfuscator(nil),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Catalog returns the catalog engines currently resolve against.
func (r *Registry) Catalog() *gag.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Transcriber returns the transcriber engines currently use.
func (r *Registry) Transcriber() *phonetic.Transcriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tr
}

// Equip replaces the gags of id and persists the result. Empty names and
// "None" mark free slots. Every other name must exist in the catalog.
func (r *Registry) Equip(ctx context.Context, id string, names []string, mouth gag.MouthState) (*gag.ActiveSet, error) {
	defer r.lockWearer(id)()

	catalog := r.Catalog()
	var gags []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || strings.EqualFold(n, "none") {
			continue
		}
		d, ok := catalog.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGag, n)
		}
		gags = append(gags, d.Name)
	}

	l := &Loadout{WearerID: id, Gags: gags, MouthState: mouth}
	if err := r.store.Put(ctx, l); err != nil {
		return nil, err
	}

	r.mu.Lock()
	e := r.engineLocked(id)
	before := e.ActiveGags().Empty()
	set := e.SetActiveGags(gags, mouth)
	r.trackGagged(ctx, before, set.Empty())
	r.mu.Unlock()

	slog.Info("wearer: gags equipped", "wearer", id, "gags", set.Names(), "mouth", set.Mouth())
	return set, nil
}

// Remove takes every gag off id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	defer r.lockWearer(id)()

	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	e, ok := r.engines[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	before := e.ActiveGags().Empty()
	e.SetActiveGags(nil, gag.MouthNone)
	delete(r.engines, id)
	r.trackGagged(ctx, before, true)
	r.mu.Unlock()

	slog.Info("wearer: gags removed", "wearer", id)
	return nil
}

// Status returns the active set of id. Wearers with nothing equipped report
// [ErrNotFound].
func (r *Registry) Status(id string) (*gag.ActiveSet, error) {
	r.mu.RLock()
	e, ok := r.engines[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	set := e.ActiveGags()
	if set.Empty() && len(set.Requested()) == 0 {
		return nil, ErrNotFound
	}
	return set, nil
}

// Garble garbles text as spoken by id. Wearers without an engine speak
// freely.
func (r *Registry) Garble(id, text string, allowEmotes bool) string {
	r.mu.RLock()
	e, ok := r.engines[id]
	r.mu.RUnlock()
	if !ok {
		return text
	}
	return e.Garble(text, allowEmotes)
}

// Wearers returns the IDs of every wearer with an engine, sorted.
func (r *Registry) Wearers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Reload swaps the catalog and/or transcriber of every engine. A nil
// argument keeps the current value. Equipped gags are re-resolved against a
// new catalog, so gags it no longer defines stop having an effect until they
// come back.
func (r *Registry) Reload(ctx context.Context, catalog *gag.Catalog, tr *phonetic.Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if catalog != nil {
		r.catalog = catalog
	}
	if tr != nil {
		r.tr = tr
	}
	for id, e := range r.engines {
		if tr != nil {
			e.SetTranscriber(tr)
		}
		if catalog == nil {
			continue
		}
		before := e.ActiveGags().Empty()
		set := e.SetCatalog(catalog)
		r.trackGagged(ctx, before, set.Empty())
		if missing := len(set.Requested()) - len(set.Names()); missing > 0 {
			slog.Warn("wearer: equipped gags missing from catalog", "wearer", id, "requested", set.Requested(), "active", set.Names())
		}
	}
	slog.Info("wearer: registry reloaded", "wearers", len(r.engines), "catalog", catalog != nil, "dictionary", tr != nil)
}

// Restore loads every stored loadout into the registry and returns how many
// were restored.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	loadouts, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("wearer: restore: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range loadouts {
		e := r.engineLocked(l.WearerID)
		before := e.ActiveGags().Empty()
		set := e.SetActiveGags(l.Gags, l.MouthState)
		r.trackGagged(ctx, before, set.Empty())
	}
	return len(loadouts), nil
}

// lockWearer locks id and returns the matching unlock. Wearer locks are
// kept for the life of the registry.
func (r *Registry) lockWearer(id string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = new(sync.Mutex)
		r.locks[id] = l
	}
	r.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// engineLocked returns the engine of id, creating it when needed. r.mu must
// be held for writing.
func (r *Registry) engineLocked(id string) *garble.Engine {
	if e, ok := r.engines[id]; ok {
		return e
	}
	opts := []garble.Option{garble.WithObfuscator(r.obfuscator)}
	if r.metrics != nil {
		opts = append(opts, garble.WithMetrics(r.metrics))
	}
	opts = append(opts, r.engineOpts...)
	e := garble.New(r.catalog, r.tr, opts...)
	r.engines[id] = e
	return e
}

func (r *Registry) trackGagged(ctx context.Context, wasEmpty, isEmpty bool) {
	if r.metrics == nil || wasEmpty == isEmpty {
		return
	}
	if isEmpty {
		r.metrics.GaggedWearers.Add(ctx, -1)
		return
	}
	r.metrics.GaggedWearers.Add(ctx, 1)
}
