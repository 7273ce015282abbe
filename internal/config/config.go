// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Kousei transcript correction system.
package config

import "github.com/MrWong99/kousei/internal/correct"

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

// Scorer selects the quality scoring strategy.
type Scorer string

const (
	// ScorerSimple derives quality from the correction count alone.
	ScorerSimple Scorer = "simple"

	// ScorerWeighted inspects the text pair and weighs correction
	// categories, length drift, and known rewrites.
	ScorerWeighted Scorer = "weighted"
)

// IsValid reports whether s is a recognised scorer.
func (s Scorer) IsValid() bool {
	return s == ScorerSimple || s == ScorerWeighted
}

// Config is the root configuration structure for Kousei.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Cost   CostConfig   `yaml:"cost"`

	// Stages toggles individual rule pipeline stages. All stages are
	// enabled unless explicitly turned off.
	Stages correct.Stages `yaml:"stages"`

	// CustomTerms holds project-specific term replacements merged into the
	// technical term stage: regular expression pattern to replacement.
	CustomTerms map[string]string `yaml:"custom_terms"`

	// Scorer selects the quality scoring strategy. Default: weighted.
	Scorer Scorer `yaml:"scorer"`

	Stats StatsConfig `yaml:"stats"`
}

// ServerConfig holds network and logging settings for the demo server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LLMConfig configures the escalation stage. When Enabled is false, hard
// segments keep their rule-corrected text and no provider is constructed.
type LLMConfig struct {
	Enabled bool `yaml:"enabled"`

	// Provider selects the backend (e.g., "openai", "anthropic", "ollama").
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider. Local backends such as
	// ollama need none.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// Sampling parameters. Zero values fall back to the escalation
	// defaults (0.1 / 0.9 / 1000).
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`

	// UseThreshold sets escalation sensitivity: a segment whose rule
	// quality falls below it is escalated even when no residual-defect
	// pattern matches. Zero escalates on pattern matches only.
	// Default: 0.5.
	UseThreshold float64 `yaml:"use_threshold"`
}

// CostConfig bounds and reports LLM spending.
type CostConfig struct {
	// InputRatePer1K and OutputRatePer1K price prompt and completion
	// tokens in USD per 1000 tokens. Zero values fall back to the
	// escalation defaults (0.000035 / 0.00014).
	InputRatePer1K  float64 `yaml:"input_rate_per_1k"`
	OutputRatePer1K float64 `yaml:"output_rate_per_1k"`

	// DisplayRateJPY converts accumulated USD cost to JPY for reports.
	// Default: 150.
	DisplayRateJPY float64 `yaml:"display_rate_jpy"`

	// MaxPerSessionUSD caps LLM spending for one processing session. Once
	// reached, further segments are not escalated. Zero means no cap.
	MaxPerSessionUSD float64 `yaml:"max_per_session_usd"`

	// AlertThresholdUSD logs a warning once accumulated cost crosses it.
	// Zero disables the alert.
	AlertThresholdUSD float64 `yaml:"alert_threshold_usd"`
}

// StatsConfig configures persistence of per-run processing statistics.
type StatsConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the stats store.
	// Empty disables persistence; stats are still written as JSON next to
	// the output files.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SaveStatistics controls writing the batch_statistics.json summary
	// next to batch outputs. Store persistence is governed by PostgresDSN
	// alone. Default: true.
	SaveStatistics bool `yaml:"save_statistics"`
}

// Default returns a Config with the documented defaults: all rule stages
// enabled, weighted scoring, escalation sampling at 0.1/0.9/1000 with a 0.5
// use threshold, micro-class token rates, and a 150 JPY/USD display rate.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		LLM: LLMConfig{
			Temperature:  0.1,
			TopP:         0.9,
			MaxTokens:    1000,
			UseThreshold: 0.5,
		},
		Cost: CostConfig{
			InputRatePer1K:  0.000035,
			OutputRatePer1K: 0.00014,
			DisplayRateJPY:  150,
		},
		Stages: correct.AllStages(),
		Scorer: ScorerWeighted,
		Stats: StatsConfig{
			SaveStatistics: true,
		},
	}
}
