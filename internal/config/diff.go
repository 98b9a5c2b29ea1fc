package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DialectChanged is set when garble.dialect switched.
	DialectChanged bool

	// DictionaryChanged is set when the active dialect's dictionary entry
	// differs, including when the dialect itself changed.
	DictionaryChanged bool

	// CatalogChanged is set when gags.catalog points to a different file.
	CatalogChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DialectChanged || d.DictionaryChanged ||
		d.CatalogChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.DialectChanged = old.Garble.Dialect != new.Garble.Dialect
	oldDict, _ := old.ActiveDictionary()
	newDict, _ := new.ActiveDictionary()
	d.DictionaryChanged = d.DialectChanged || !equalDictionary(oldDict, newDict)
	d.CatalogChanged = old.Gags.Catalog != new.Gags.Catalog

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.log_format", old.Server.LogFormat != new.Server.LogFormat)
	restart("garble.allow_emotes", old.Garble.AllowEmotes != new.Garble.AllowEmotes)
	restart("garble.emphasis_marker", old.Garble.EmphasisMarker != new.Garble.EmphasisMarker)
	restart("garble.emotes", !slices.Equal(old.Garble.Emotes, new.Garble.Emotes))
	restart("garble.near_miss_threshold", old.Garble.NearMissThreshold != new.Garble.NearMissThreshold)
	restart("garble.seed", old.Garble.Seed != new.Garble.Seed)
	restart("store", old.Store != new.Store)
	restart("relay", old.Relay != new.Relay)
	restart("discord", old.Discord != new.Discord)

	return d
}

func equalDictionary(a, b DictionaryConfig) bool {
	return a.Path == b.Path && slices.Equal(a.Symbols, b.Symbols)
}
