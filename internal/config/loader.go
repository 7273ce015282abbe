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

// ValidLLMProviders lists the known escalation backend names. [Validate]
// warns about unrecognised names instead of failing, so a new backend can be
// configured before this list learns about it.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// localProviders need no API key.
var localProviders = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r on top of [Default] values and
// validates the result. Unknown keys are rejected. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
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

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Scorer != "" && !cfg.Scorer.IsValid() {
		errs = append(errs, fmt.Errorf("scorer %q is invalid; valid values: simple, weighted", cfg.Scorer))
	}

	if cfg.LLM.Enabled {
		if cfg.LLM.Provider == "" {
			errs = append(errs, errors.New("llm.provider is required when llm.enabled is true"))
		} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
			slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
				"name", cfg.LLM.Provider,
				"known", ValidLLMProviders,
			)
		}
		if cfg.LLM.Model == "" {
			errs = append(errs, errors.New("llm.model is required when llm.enabled is true"))
		}
		if cfg.LLM.APIKey == "" && cfg.LLM.Provider != "" &&
			!slices.Contains(localProviders, cfg.LLM.Provider) {
			slog.Warn("llm.api_key is empty; the provider will fall back to its environment variable",
				"provider", cfg.LLM.Provider,
			)
		}
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.TopP < 0 || cfg.LLM.TopP > 1 {
		errs = append(errs, fmt.Errorf("llm.top_p %.2f is out of range [0, 1]", cfg.LLM.TopP))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must not be negative", cfg.LLM.MaxTokens))
	}
	if cfg.LLM.UseThreshold < 0 || cfg.LLM.UseThreshold > 1 {
		errs = append(errs, fmt.Errorf("llm.use_threshold %.2f is out of range [0, 1]", cfg.LLM.UseThreshold))
	}

	if cfg.Cost.InputRatePer1K < 0 {
		errs = append(errs, fmt.Errorf("cost.input_rate_per_1k %.6f must not be negative", cfg.Cost.InputRatePer1K))
	}
	if cfg.Cost.OutputRatePer1K < 0 {
		errs = append(errs, fmt.Errorf("cost.output_rate_per_1k %.6f must not be negative", cfg.Cost.OutputRatePer1K))
	}
	if cfg.Cost.DisplayRateJPY < 0 {
		errs = append(errs, fmt.Errorf("cost.display_rate_jpy %.2f must not be negative", cfg.Cost.DisplayRateJPY))
	}
	if cfg.Cost.MaxPerSessionUSD < 0 {
		errs = append(errs, fmt.Errorf("cost.max_per_session_usd %.6f must not be negative", cfg.Cost.MaxPerSessionUSD))
	}
	if cfg.Cost.AlertThresholdUSD < 0 {
		errs = append(errs, fmt.Errorf("cost.alert_threshold_usd %.6f must not be negative", cfg.Cost.AlertThresholdUSD))
	}
	if cfg.Cost.AlertThresholdUSD > 0 && cfg.Cost.MaxPerSessionUSD > 0 &&
		cfg.Cost.AlertThresholdUSD > cfg.Cost.MaxPerSessionUSD {
		slog.Warn("cost.alert_threshold_usd exceeds cost.max_per_session_usd; the alert will never fire",
			"alert_threshold_usd", cfg.Cost.AlertThresholdUSD,
			"max_per_session_usd", cfg.Cost.MaxPerSessionUSD,
		)
	}

	if cfg.Stats.PostgresDSN == "" {
		slog.Warn("stats.postgres_dsn is empty; run statistics will only be written as JSON files")
	}

	return errors.Join(errs...)
}
