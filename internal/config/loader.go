package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with the values the pipeline uses when a
// config file leaves them zero.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.SimilarityWeights == (SimilarityWeights{}) {
		cfg.SimilarityWeights = DefaultSimilarityWeights()
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	if cfg.NERTimeoutSeconds == 0 {
		cfg.NERTimeoutSeconds = 5
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.85
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. A
// configuration error is fatal: the pipeline must not start with one.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	errs = append(errs, checkUnitRange("confidence_threshold", cfg.ConfidenceThreshold)...)
	errs = append(errs, checkUnitRange("ner_trigger_threshold", cfg.NERTriggerThreshold)...)
	errs = append(errs, checkUnitRange("similarity_threshold", cfg.SimilarityThreshold)...)

	if cfg.NERTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ner_timeout_seconds must be positive, got %.2f", cfg.NERTimeoutSeconds))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize))
	}

	w := cfg.SimilarityWeights
	sum := w.Edit + w.JaroWinkler + w.Phonetic
	if math.Abs(sum-1.0) > 1e-6 {
		errs = append(errs, fmt.Errorf("similarity_weights must sum to 1, got %.4f (edit=%.2f jaro_winkler=%.2f phonetic=%.2f)",
			sum, w.Edit, w.JaroWinkler, w.Phonetic))
	}
	if w.Edit < 0 || w.JaroWinkler < 0 || w.Phonetic < 0 {
		errs = append(errs, fmt.Errorf("similarity_weights must be non-negative, got edit=%.2f jaro_winkler=%.2f phonetic=%.2f",
			w.Edit, w.JaroWinkler, w.Phonetic))
	}

	if !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StoreBackendPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("store.postgres_dsn is required when store.backend is postgres"))
	}

	if cfg.NER.Enabled {
		if cfg.NER.Backend == "" {
			errs = append(errs, fmt.Errorf("ner.backend is required when ner.enabled is true"))
		} else if cfg.NER.Backend != "openai" {
			errs = append(errs, fmt.Errorf("ner.backend %q is not supported; valid values: openai", cfg.NER.Backend))
		}
		if cfg.NER.APIKey == "" {
			errs = append(errs, fmt.Errorf("ner.api_key is required when ner.enabled is true"))
		}
		if cfg.NER.Model == "" {
			errs = append(errs, fmt.Errorf("ner.model is required when ner.enabled is true"))
		}
		if cfg.NER.FallbackModel != "" && cfg.NER.FallbackModel == cfg.NER.Model {
			errs = append(errs, fmt.Errorf("ner.fallback_model must differ from ner.model, both are %q", cfg.NER.Model))
		}
	} else {
		if cfg.NER.CircuitBreaker {
			slog.Warn("ner.circuit_breaker is set but ner.enabled is false; circuit breaker will have no effect")
		}
		if cfg.NER.FallbackModel != "" {
			slog.Warn("ner.fallback_model is set but ner.enabled is false; it will have no effect")
		}
	}

	return errors.Join(errs...)
}

// checkUnitRange returns a validation error if v lies outside [0, 1].
func checkUnitRange(field string, v float64) []error {
	if v < 0 || v > 1 {
		return []error{fmt.Errorf("%s must lie in [0, 1], got %.4f", field, v)}
	}
	return nil
}
