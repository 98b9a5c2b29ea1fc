// Package app wires all gagspeak subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the dictionaries and the
// gag catalog, connects the loadout store and builds the HTTP and Discord
// front ends, Run serves them, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithPrometheusRegistry). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/gagspeak/internal/config"
	"github.com/MrWong99/gagspeak/internal/discord"
	"github.com/MrWong99/gagspeak/internal/discord/commands"
	"github.com/MrWong99/gagspeak/internal/gag"
	"github.com/MrWong99/gagspeak/internal/garble"
	"github.com/MrWong99/gagspeak/internal/health"
	"github.com/MrWong99/gagspeak/internal/observe"
	"github.com/MrWong99/gagspeak/internal/phonetic"
	"github.com/MrWong99/gagspeak/internal/resilience"
	"github.com/MrWong99/gagspeak/internal/server"
	"github.com/MrWong99/gagspeak/internal/wearer"
)

// Version is reported in telemetry. It is overridden at build time.
var Version = "dev"

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	level      *slog.LevelVar
	configPath string
	promReg    *prometheus.Registry

	provider *observe.Provider
	metrics  *observe.Metrics
	store    wearer.Store
	pool     *pgxpool.Pool
	guard    *wearer.GuardedStore
	registry *wearer.Registry
	handler  http.Handler
	httpSrv  *http.Server
	bot      *discord.Bot

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a loadout store instead of creating one from config.
func WithStore(s wearer.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// that owns v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithPrometheusRegistry exposes metrics from reg instead of the default
// Prometheus registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.promReg = reg }
}

// WithConfigPath makes [App.Run] watch path and apply changes while running.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Partially
// initialised subsystems are released when New fails.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(LogLevel(cfg.Server.LogLevel))
	}
	defer func() {
		if err != nil {
			a.runClosers()
		}
	}()

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Dictionaries ──────────────────────────────────────────────────
	tr, err := a.loadTranscriber(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("app: load dictionaries: %w", err)
	}

	// ── 3. Gag catalog ───────────────────────────────────────────────────
	catalog, err := gag.LoadCatalog(cfg.Gags.Catalog)
	if err != nil {
		return nil, fmt.Errorf("app: load gag catalog: %w", err)
	}
	slog.Info("gag catalog loaded", "path", cfg.Gags.Catalog, "gags", catalog.Len())

	// ── 4. Loadout store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 5. Wearer registry ───────────────────────────────────────────────
	regOpts := []wearer.Option{
		wearer.WithStore(a.store),
		wearer.WithMetrics(a.metrics),
		wearer.WithEngineOptions(
			garble.WithMarker(cfg.Garble.EmphasisMarker),
			garble.WithEmotes(cfg.Garble.Emotes...),
		),
	}
	if seed := cfg.Garble.Seed; seed != 0 {
		regOpts = append(regOpts, wearer.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}
	a.registry = wearer.NewRegistry(catalog, tr, regOpts...)
	restored, err := a.registry.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: restore loadouts: %w", err)
	}
	slog.Info("loadouts restored", "wearers", humanize.Comma(int64(restored)))

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	// ── 7. Discord bot ───────────────────────────────────────────────────
	if cfg.Discord.Enabled() {
		if err := a.initDiscord(ctx); err != nil {
			return nil, fmt.Errorf("app: init discord: %w", err)
		}
	}

	return a, nil
}

// initTelemetry installs the OTel providers and the instruments.
func (a *App) initTelemetry(ctx context.Context) error {
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: Version,
		Registry:       a.promReg,
	})
	if err != nil {
		return err
	}
	a.provider = p
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.Shutdown(ctx)
	})

	m, err := observe.NewMetrics(p.MeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// loadTranscriber loads the active dialect's dictionary and builds its
// transcriber.
func (a *App) loadTranscriber(ctx context.Context, cfg *config.Config) (*phonetic.Transcriber, error) {
	dc, ok := cfg.ActiveDictionary()
	if !ok {
		return nil, fmt.Errorf("no dictionary configured for dialect %q", cfg.Garble.Dialect)
	}
	dicts, err := phonetic.LoadDictionaries(ctx, map[string]string{cfg.Garble.Dialect: dc.Path})
	if err != nil {
		return nil, err
	}
	dict := dicts[cfg.Garble.Dialect]
	slog.Info("dictionary loaded",
		"dialect", cfg.Garble.Dialect,
		"path", dc.Path,
		"words", humanize.Comma(int64(dict.Len())),
	)

	symbols := phonetic.DialectSymbols(cfg.Garble.Dialect, dc.Symbols...)
	return phonetic.NewTranscriber(cfg.Garble.Dialect, dict, symbols,
		phonetic.WithNearMiss(cfg.Garble.NearMissThreshold)), nil
}

// initStore connects PostgreSQL when a DSN is configured and falls back to
// an in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Info("no postgres_dsn configured, loadouts are kept in memory")
		a.store = wearer.NewMemStore()
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	pg := wearer.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.pool = pool
	a.guard = wearer.NewGuardedStore(pg, resilience.Config{
		Name:        "postgres",
		MaxFailures: a.cfg.Store.BreakerFailures,
		Cooldown:    a.cfg.Store.BreakerCooldown,
	})
	a.store = a.guard
	return nil
}

// initHTTP builds the handler tree and the http.Server.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	checks := []health.Checker{
		health.NonEmpty("catalog", func() int { return a.registry.Catalog().Len() }),
		health.NonEmpty("dictionary", func() int { return a.registry.Transcriber().Dictionary().Len() }),
	}
	if a.pool != nil {
		checks = append(checks, health.Checker{Name: "store", Check: a.checkStore})
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", a.provider.MetricsHandler)

	server.New(a.registry,
		server.WithMetrics(a.metrics),
		server.WithRelayLimit(a.cfg.Relay.MessagesPerSecond, a.cfg.Relay.Burst),
		server.WithAllowEmotes(a.cfg.Garble.AllowEmotes),
	).Register(mux)

	a.handler = observe.Middleware(a.metrics)(mux)
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// checkStore fails while the store breaker is open or the database does not
// answer.
func (a *App) checkStore(ctx context.Context) error {
	if st := a.guard.State(); st == resilience.StateOpen {
		return fmt.Errorf("circuit %s", st)
	}
	return a.pool.Ping(ctx)
}

// initDiscord connects the bot and registers the slash commands.
func (a *App) initDiscord(ctx context.Context) error {
	bot, err := discord.New(ctx, discord.Config{
		Token:        a.cfg.Discord.Token,
		GuildID:      a.cfg.Discord.GuildID,
		WearerRoleID: a.cfg.Discord.WearerRoleID,
	})
	if err != nil {
		return err
	}
	a.bot = bot
	a.closers = append(a.closers, bot.Close)

	stats := discord.NewSayStats(200)
	commands.NewGagCommands(a.registry, bot.Permissions()).Register(bot.Router())
	commands.NewSayCommands(a.registry, a.cfg.Garble.AllowEmotes, stats).Register(bot.Router())
	commands.NewStatsCommands(a.registry, stats).Register(bot.Router())
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Registry returns the wearer registry.
func (a *App) Registry() *wearer.Registry { return a.registry }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, runs the Discord bot and watches the config file until
// ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.httpSrv.Addr, err)
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyChange)
		if err != nil {
			ln.Close()
			return fmt.Errorf("app: watch config: %w", err)
		}
		defer w.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := a.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})
	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: discord bot: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the settings that can change at runtime: the log
// level, the dialect and its dictionary, and the gag catalog. Other changes
// are logged and wait for a restart. A file that fails to load keeps the
// previous value in effect.
func (a *App) ApplyConfig(old, new *config.Config) {
	a.applyChange(config.Change{Old: old, New: new, Diff: config.Diff(old, new)})
}

// applyChange also receives edits to the catalog or dictionary files, which
// leave the config itself unchanged.
func (a *App) applyChange(c config.Change) {
	d, new := c.Diff, c.New
	if !d.Changed() {
		a.mu.Lock()
		a.cfg = new
		a.mu.Unlock()
		return
	}

	if d.LogLevelChanged {
		a.level.Set(LogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	var (
		catalog *gag.Catalog
		tr      *phonetic.Transcriber
	)
	if d.CatalogChanged {
		c, err := gag.LoadCatalog(new.Gags.Catalog)
		if err != nil {
			slog.Error("gag catalog reload failed, keeping the current catalog", "path", new.Gags.Catalog, "err", err)
		} else {
			catalog = c
			slog.Info("gag catalog reloaded", "path", new.Gags.Catalog, "gags", c.Len())
		}
	}
	if d.DictionaryChanged {
		t, err := a.loadTranscriber(context.Background(), new)
		if err != nil {
			slog.Error("dictionary reload failed, keeping the current dialect", "dialect", new.Garble.Dialect, "err", err)
		} else {
			tr = t
		}
	}
	if catalog != nil || tr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.registry.Reload(ctx, catalog, tr)
	}

	for _, field := range d.RestartRequired {
		slog.Warn("config change requires a restart", "field", field)
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
}

// LogLevel maps a config level to its slog equivalent. Unknown values map
// to info.
func LogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New managed to set up before failing.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
