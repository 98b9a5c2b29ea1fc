// Package config provides the configuration schema, loader and hot-reload
// watcher for the gagspeak service.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Garble  GarbleConfig  `yaml:"garble"`
	Gags    GagsConfig    `yaml:"gags"`
	Store   StoreConfig   `yaml:"store"`
	Relay   RelayConfig   `yaml:"relay"`
	Discord DiscordConfig `yaml:"discord"`

	// Dictionaries maps a dialect name such as "en-US" to its pronunciation
	// dictionary.
	Dictionaries map[string]DictionaryConfig `yaml:"dictionaries"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address. Default: ":8080".
	ListenAddr string `yaml:"listen_addr" env:"GAGSPEAK_LISTEN_ADDR"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level" env:"GAGSPEAK_LOG_LEVEL"`

	// LogFormat is text or json. Default: text.
	LogFormat LogFormat `yaml:"log_format" env:"GAGSPEAK_LOG_FORMAT"`
}

// GarbleConfig tunes the garble engines.
type GarbleConfig struct {
	// Dialect selects the dictionary used for transcription. It must be a
	// key of [Config.Dictionaries]. Default: "en-US".
	Dialect string `yaml:"dialect" env:"GAGSPEAK_DIALECT"`

	// AllowEmotes is the emote setting for callers that do not pass one.
	AllowEmotes bool `yaml:"allow_emotes" env:"GAGSPEAK_ALLOW_EMOTES"`

	// EmphasisMarker suspends garbling between two occurrences. Default: "*".
	EmphasisMarker string `yaml:"emphasis_marker" env:"GAGSPEAK_EMPHASIS_MARKER"`

	// Emotes lists the names recognised in ":name:" tokens.
	Emotes []string `yaml:"emotes" env:"GAGSPEAK_EMOTES" env-separator:","`

	// NearMissThreshold enables sounds-alike lookup of unknown words when
	// greater than zero. Range [0, 1].
	NearMissThreshold float64 `yaml:"near_miss_threshold" env:"GAGSPEAK_NEAR_MISS_THRESHOLD"`

	// Seed makes fallback obfuscation reproducible. 0 picks a random seed.
	Seed uint64 `yaml:"seed" env:"GAGSPEAK_SEED"`
}

// DictionaryConfig locates one dialect's dictionary. In YAML it may be
// written as a plain path string.
type DictionaryConfig struct {
	// Path of the dictionary file. Relative paths are resolved against the
	// directory of the config file.
	Path string `yaml:"path"`

	// Symbols lists extra multi-character phonetic symbols for the dialect
	// on top of the built-in ones.
	Symbols []string `yaml:"symbols"`
}

// UnmarshalYAML accepts either a mapping or a bare path.
func (d *DictionaryConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*d = DictionaryConfig{Path: node.Value}
		return nil
	}
	type plain DictionaryConfig
	return node.Decode((*plain)(d))
}

// GagsConfig locates the gag catalog.
type GagsConfig struct {
	// Catalog is the YAML or JSON file defining every gag.
	Catalog string `yaml:"catalog" env:"GAGSPEAK_GAG_CATALOG"`
}

// StoreConfig selects where wearer loadouts are persisted.
type StoreConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps loadouts in
	// memory only.
	PostgresDSN string `yaml:"postgres_dsn" env:"GAGSPEAK_POSTGRES_DSN"`

	// BreakerFailures is the number of consecutive database failures after
	// which store calls fail fast for BreakerCooldown. Default: 5.
	BreakerFailures int `yaml:"breaker_failures" env:"GAGSPEAK_STORE_BREAKER_FAILURES"`

	// BreakerCooldown is how long store calls fail fast. Default: 30s.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"GAGSPEAK_STORE_BREAKER_COOLDOWN"`
}

// RelayConfig limits the websocket chat relay per connection.
type RelayConfig struct {
	// MessagesPerSecond is the sustained message rate. 0 disables limiting.
	MessagesPerSecond float64 `yaml:"messages_per_second" env:"GAGSPEAK_RELAY_RATE"`

	// Burst is the number of messages allowed at once.
	Burst int `yaml:"burst" env:"GAGSPEAK_RELAY_BURST"`
}

// DiscordConfig enables the Discord bot when Token is set.
type DiscordConfig struct {
	Token string `yaml:"token" env:"GAGSPEAK_DISCORD_TOKEN"`

	// GuildID registers commands for one guild only, which takes effect
	// immediately. Empty registers them globally.
	GuildID string `yaml:"guild_id" env:"GAGSPEAK_DISCORD_GUILD_ID"`

	// WearerRoleID restricts equipping gags to members with this role.
	WearerRoleID string `yaml:"wearer_role_id" env:"GAGSPEAK_DISCORD_WEARER_ROLE_ID"`
}

// Enabled reports whether the bot should be started.
func (d DiscordConfig) Enabled() bool { return d.Token != "" }

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = LogFormatText
	}
	if c.Garble.Dialect == "" {
		c.Garble.Dialect = "en-US"
	}
	if c.Garble.EmphasisMarker == "" {
		c.Garble.EmphasisMarker = "*"
	}
	if c.Store.BreakerFailures == 0 {
		c.Store.BreakerFailures = 5
	}
	if c.Store.BreakerCooldown == 0 {
		c.Store.BreakerCooldown = 30 * time.Second
	}
	if c.Relay.MessagesPerSecond > 0 && c.Relay.Burst == 0 {
		c.Relay.Burst = max(1, int(c.Relay.MessagesPerSecond))
	}
}

// ActiveDictionary returns the dictionary of the configured dialect.
func (c *Config) ActiveDictionary() (DictionaryConfig, bool) {
	d, ok := c.Dictionaries[c.Garble.Dialect]
	return d, ok
}

// errMissing formats a required-field error.
func errMissing(field string) error {
	return fmt.Errorf("%s is required", field)
}

var errNoDictionaries = errors.New("dictionaries: at least one dialect must be configured")
