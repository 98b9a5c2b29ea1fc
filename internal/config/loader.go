package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns the validated result. Relative file
// paths in the config are resolved against the directory of path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r the same way [Load] does,
// leaving relative paths untouched.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, "")
}

// parse decodes data, overlays GAGSPEAK_* environment variables, fills
// defaults and validates. A non-empty baseDir anchors relative paths.
func parse(data []byte, baseDir string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	cfg.ApplyDefaults()
	if baseDir != "" {
		cfg.resolvePaths(baseDir)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.Gags.Catalog = abs(c.Gags.Catalog)
	for dialect, d := range c.Dictionaries {
		d.Path = abs(d.Path)
		c.Dictionaries[dialect] = d
	}
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	if len(cfg.Dictionaries) == 0 {
		errs = append(errs, errNoDictionaries)
	} else if _, ok := cfg.ActiveDictionary(); !ok {
		errs = append(errs, fmt.Errorf("garble.dialect %q has no entry in dictionaries", cfg.Garble.Dialect))
	}
	for dialect, d := range cfg.Dictionaries {
		if d.Path == "" {
			errs = append(errs, errMissing(fmt.Sprintf("dictionaries[%q].path", dialect)))
		}
	}

	if strings.ContainsAny(cfg.Garble.EmphasisMarker, " \t\n") {
		errs = append(errs, fmt.Errorf("garble.emphasis_marker %q must not contain whitespace", cfg.Garble.EmphasisMarker))
	}
	if t := cfg.Garble.NearMissThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("garble.near_miss_threshold %.2f is out of range [0, 1]", t))
	}
	for i, e := range cfg.Garble.Emotes {
		if strings.Trim(strings.TrimSpace(e), ":") == "" {
			errs = append(errs, fmt.Errorf("garble.emotes[%d] is empty", i))
		}
	}

	if cfg.Gags.Catalog == "" {
		errs = append(errs, errMissing("gags.catalog"))
	}

	if cfg.Store.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("store.breaker_failures %d must not be negative", cfg.Store.BreakerFailures))
	}
	if cfg.Store.BreakerCooldown < 0 {
		errs = append(errs, fmt.Errorf("store.breaker_cooldown %s must not be negative", cfg.Store.BreakerCooldown))
	}

	if cfg.Relay.MessagesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("relay.messages_per_second %.2f must not be negative", cfg.Relay.MessagesPerSecond))
	}
	if cfg.Relay.Burst < 0 {
		errs = append(errs, fmt.Errorf("relay.burst %d must not be negative", cfg.Relay.Burst))
	}

	if !cfg.Discord.Enabled() && (cfg.Discord.GuildID != "" || cfg.Discord.WearerRoleID != "") {
		slog.Warn("discord settings present but discord.token is empty; the bot will not start")
	}

	return errors.Join(errs...)
}
