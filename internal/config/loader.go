package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"technical":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("technical", cfg.Providers.Technical.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Registry-resolved providers need a model to call.
	if cfg.Providers.Technical.Name != "" && cfg.Providers.Technical.Model == "" {
		errs = append(errs, errors.New("providers.technical.model is required when providers.technical is configured"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Providers.Embeddings.Model == "" {
		errs = append(errs, errors.New("providers.embeddings.model is required when providers.embeddings is configured"))
	}

	// Provider availability warnings
	if cfg.Providers.Claude.APIKey == "" && cfg.Providers.Gemini.APIKey == "" {
		slog.Warn("neither providers.claude nor providers.gemini has an api_key; no dispatch target will be available")
	}
	if cfg.Providers.Technical.Name == "" {
		slog.Warn("providers.technical is not configured; query transformation, perceptions, and turn stripping will be disabled")
	}

	// Embeddings ↔ store dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but store.embedding_dimensions is not set; defaulting to 1536")
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required"))
	}

	// Workers
	if cfg.Workers.StripInterval < 0 {
		errs = append(errs, fmt.Errorf("workers.strip_interval %s is negative", cfg.Workers.StripInterval))
	}
	if cfg.Workers.IndexInterval < 0 {
		errs = append(errs, fmt.Errorf("workers.index_interval %s is negative", cfg.Workers.IndexInterval))
	}
	if cfg.Workers.StripBatchSize < 0 {
		errs = append(errs, fmt.Errorf("workers.strip_batch_size %d is negative", cfg.Workers.StripBatchSize))
	}
	if cfg.Workers.StripConcurrency < 0 {
		errs = append(errs, fmt.Errorf("workers.strip_concurrency %d is negative", cfg.Workers.StripConcurrency))
	}
	if cfg.Workers.IndexBatchSize < 0 {
		errs = append(errs, fmt.Errorf("workers.index_batch_size %d is negative", cfg.Workers.IndexBatchSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
