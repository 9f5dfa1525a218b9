package config

import "fmt"

// ConfigDiff describes what changed between two configs. Only the log level
// can be applied without a restart; everything else feeds into objects built
// once at startup (the connection pool, provider clients, worker tickers) and
// is reported via RestartRequired instead.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the dotted config paths whose new values cannot
	// take effect until the server restarts.
	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}

	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !tlsEqual(old.Server.TLS, new.Server.TLS))
	restart("providers.technical", !entryEqual(old.Providers.Technical, new.Providers.Technical))
	restart("providers.embeddings", !entryEqual(old.Providers.Embeddings, new.Providers.Embeddings))
	restart("providers.claude", old.Providers.Claude != new.Providers.Claude)
	restart("providers.gemini", old.Providers.Gemini != new.Providers.Gemini)
	restart("store", old.Store != new.Store)
	restart("workers", old.Workers != new.Workers)

	return d
}

// entryEqual compares two provider entries ignoring the free-form Options map
// when both are empty. Options maps are compared by length and shallow keys
// only; a value edit inside a nested map still counts as a change because the
// caller reloads the file, not the map.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmtAny(av) != fmtAny(bv) {
			return false
		}
	}
	return true
}

func fmtAny(v any) string {
	return fmt.Sprintf("%v", v)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
