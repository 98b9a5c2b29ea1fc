package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Change is passed to the [Watcher] callback. Old and New are the same
// config when only a referenced data file was edited; Diff then carries
// CatalogChanged or DictionaryChanged for that file.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// fileStamp identifies one version of a watched file.
type fileStamp struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// Watcher polls the config file together with the gag catalog and the
// active dictionary it references. Edits to any of them are reported
// through the callback. Invalid config edits are logged and ignored and the
// last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)

	mu      sync.Mutex
	current *Config
	stamps  map[string]fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it and its data files in the
// background. onChange may be nil.
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		stamps:   make(map[string]fileStamp),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	for _, p := range w.watched(cfg) {
		restamp(w.stamps, p)
	}

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// watched lists the config file followed by the data files cfg references.
func (w *Watcher) watched(cfg *Config) []string {
	paths := []string{w.path}
	if cfg.Gags.Catalog != "" {
		paths = append(paths, cfg.Gags.Catalog)
	}
	if d, ok := cfg.ActiveDictionary(); ok && d.Path != "" && d.Path != cfg.Gags.Catalog {
		paths = append(paths, d.Path)
	}
	return paths
}

func (w *Watcher) check() {
	w.mu.Lock()
	cur := w.current
	stamps := make(map[string]fileStamp, len(w.stamps))
	for p, s := range w.stamps {
		stamps[p] = s
	}
	w.mu.Unlock()

	next := cur
	if restamp(stamps, w.path) {
		cfg, err := Load(w.path)
		if err != nil {
			slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			return
		}
		next = cfg
	}

	d := Diff(cur, next)
	for _, p := range w.watched(next)[1:] {
		if !restamp(stamps, p) {
			continue
		}
		if p == next.Gags.Catalog {
			d.CatalogChanged = true
		} else {
			d.DictionaryChanged = true
		}
	}

	kept := make(map[string]fileStamp)
	for _, p := range w.watched(next) {
		if s, ok := stamps[p]; ok {
			kept[p] = s
		}
	}

	w.mu.Lock()
	w.current = next
	w.stamps = kept
	w.mu.Unlock()

	if next == cur && !d.Changed() {
		return
	}
	slog.Info("config watcher: change detected", "path", w.path,
		"config", next != cur, "catalog", d.CatalogChanged, "dictionary", d.DictionaryChanged)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(Change{Old: cur, New: next, Diff: d})
	}
}

// restamp records the current version of path in stamps and reports
// whether its content differs from the recorded one. A file seen for the
// first time counts as changed. A missing file does not.
func restamp(stamps map[string]fileStamp, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	old, seen := stamps[path]
	if seen && info.ModTime().Equal(old.mtime) {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	s := fileStamp{mtime: info.ModTime(), hash: sha256.Sum256(data)}
	stamps[path] = s
	return !seen || s.hash != old.hash
}
