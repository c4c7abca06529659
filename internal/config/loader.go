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
	"agent":      {"gemini-live", "openai-realtime"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

	// Interview identity
	if cfg.Interview.ID == "" {
		errs = append(errs, fmt.Errorf("interview.id is required"))
	}
	if cfg.Interview.JobID == "" && cfg.Platform.BaseURL != "" {
		slog.Warn("interview.job_id is empty; the agent instructions will not include a job description")
	}

	// Providers
	if cfg.Providers.Agent.Name == "" {
		errs = append(errs, fmt.Errorf("providers.agent.name is required; valid values: %v", ValidProviderNames["agent"]))
	}
	validateProviderName("agent", cfg.Providers.Agent.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; no hiring report will be generated on finalize")
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; transcripts will only be kept in memory")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name == "" && cfg.Storage.EmbeddingDimensions > 0 {
		slog.Warn("storage.embedding_dimensions is set but providers.embeddings is not; semantic recall will be unavailable")
	}
	if cfg.Storage.SnapshotInterval < 0 {
		errs = append(errs, fmt.Errorf("storage.snapshot_interval must not be negative"))
	}

	// Platform
	if cfg.Platform.BaseURL == "" {
		slog.Warn("platform.base_url is empty; reports cannot be submitted and job context cannot be fetched")
	}

	// Audio
	if cfg.Audio.SilenceThreshold < 0 || cfg.Audio.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %.3f is out of range [0, 1]", cfg.Audio.SilenceThreshold))
	}
	if cfg.Audio.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.flush_interval must not be negative"))
	}
	if cfg.Audio.FlushSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.flush_samples must not be negative"))
	}
	if cfg.Audio.MaxBacklog < 0 {
		errs = append(errs, fmt.Errorf("audio.max_backlog must not be negative"))
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
