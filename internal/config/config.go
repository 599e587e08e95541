package config

import (
	"encoding/json"
	"time"
)

// Config is the full engram configuration.
type Config struct {
	// DataDir holds the database, session transcripts, logs, and audit trail.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Embedding  EmbeddingConfig  `json:"embedding" mapstructure:"embedding"`
	Summarizer SummarizerConfig `json:"summarizer" mapstructure:"summarizer"`
	Memory     MemoryConfig     `json:"memory" mapstructure:"memory"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `json:"metrics" mapstructure:"metrics"`
}

// EmbeddingConfig selects the embedding provider. An empty provider runs the
// store in keyword-only mode.
type EmbeddingConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai, ollama, ""
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"` // ollama only
	// Dimension overrides the provider default. Changing it on an existing
	// store is refused at open.
	Dimension int `json:"dimension" mapstructure:"dimension"`
	// TimeoutMs bounds each embedding call before keyword fallback.
	TimeoutMs int `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// SummarizerConfig selects how finished sessions are condensed. An empty
// provider uses the built-in rule summarizer.
type SummarizerConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, ""
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// MemoryConfig holds the retrieval and retention thresholds. These are
// hot-reloadable: edits to the config file apply to a running process.
type MemoryConfig struct {
	GeneralFloor  float64 `json:"general_floor" mapstructure:"general_floor"`
	RecallFloor   float64 `json:"recall_floor" mapstructure:"recall_floor"`
	ForgetFloor   float64 `json:"forget_floor" mapstructure:"forget_floor"`
	InjectLimit   int     `json:"inject_limit" mapstructure:"inject_limit"`
	RecallLimit   int     `json:"recall_limit" mapstructure:"recall_limit"`
	MaxFacts      int     `json:"max_facts" mapstructure:"max_facts"`
	RetentionDays int     `json:"retention_days" mapstructure:"retention_days"`
	// SweepIntervalMinutes is the retention sweep cadence.
	SweepIntervalMinutes int `json:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`
}

// Retention returns the summary retention window as a duration.
func (m MemoryConfig) Retention() time.Duration {
	return time.Duration(m.RetentionDays) * 24 * time.Hour
}

// SweepInterval returns the retention sweep cadence as a duration.
func (m MemoryConfig) SweepInterval() time.Duration {
	return time.Duration(m.SweepIntervalMinutes) * time.Minute
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "",
			Model:     "text-embedding-3-small",
			TimeoutMs: 300,
		},
		Summarizer: SummarizerConfig{
			Provider: "",
		},
		Memory: MemoryConfig{
			GeneralFloor:         0.8,
			RecallFloor:          0.1,
			ForgetFloor:          0.3,
			InjectLimit:          2,
			RecallLimit:          10,
			MaxFacts:             1000,
			RetentionDays:        7,
			SweepIntervalMinutes: 60,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
