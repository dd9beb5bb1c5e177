// Package config defines the recognized configuration surface of the
// discussion engine and loads it from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete mdtboard configuration.
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Discussion DiscussionConfig `mapstructure:"discussion"`
	Session    SessionConfig    `mapstructure:"session"`
	Export     ExportConfig     `mapstructure:"export"`
	Server     ServerConfig     `mapstructure:"server"`
	LogLevel   string           `mapstructure:"log_level"`
}

// ModelConfig controls the model backend shared by all participants.
type ModelConfig struct {
	// Engine selects the backend: anthropic, openai, deepseek,
	// siliconflow, vllm, ollama.
	Engine string `mapstructure:"engine"`
	// Name is the model identifier passed to the backend.
	Name string `mapstructure:"name"`
	// BaseURL overrides the backend address for self-hosted engines.
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// MaxRetries bounds the retry wrapper around every model call.
	MaxRetries   int `mapstructure:"max_retries"`
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
}

// DiscussionConfig controls the round scheduler and shared context.
type DiscussionConfig struct {
	MaxRounds           int  `mapstructure:"max_rounds"`
	InterventionEnabled bool `mapstructure:"intervention_enabled"`
	// DigestWindow is how many recent rounds the digest covers.
	DigestWindow int `mapstructure:"digest_window"`
	// ContributionCharBudget truncates each digest line to this many runes.
	ContributionCharBudget int `mapstructure:"contribution_char_budget"`
	PerCallTimeoutSeconds  int `mapstructure:"per_call_timeout_seconds"`
	// QualityFormula overrides how the overall quality score is computed
	// from the depth, diversity, and consistency sub-scores. Empty means
	// the built-in weighting.
	QualityFormula string `mapstructure:"quality_formula"`
	// SpecialtyRegistry is an optional YAML file extending the built-in
	// specialty set. It is hot reloaded while the server runs.
	SpecialtyRegistry string `mapstructure:"specialty_registry"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	TimeoutSeconds       int `mapstructure:"timeout_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// ExportConfig controls the persistence/export collaborator.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
	// PostgresURL, when set, enables the Postgres archive.
	PostgresURL string `mapstructure:"postgres_url"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// PerCallTimeout returns the per-participant-call timeout as a Duration.
func (c DiscussionConfig) PerCallTimeout() time.Duration {
	return time.Duration(c.PerCallTimeoutSeconds) * time.Second
}

// Timeout returns the session idle timeout as a Duration.
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SweepInterval returns the eviction sweep interval as a Duration.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RetryDelay returns the delay between model-call retries.
func (c ModelConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Engine:       "vllm",
			Name:         "clinical-model",
			BaseURL:      "http://127.0.0.1:7778",
			Temperature:  0.3,
			MaxTokens:    4096,
			MaxRetries:   3,
			RetryDelayMs: 10000,
		},
		Discussion: DiscussionConfig{
			MaxRounds:              3,
			InterventionEnabled:    false,
			DigestWindow:           3,
			ContributionCharBudget: 150,
			PerCallTimeoutSeconds:  60,
		},
		Session: SessionConfig{
			TimeoutSeconds:       3600,
			SweepIntervalSeconds: 300,
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Server: ServerConfig{
			Addr: ":8384",
		},
		LogLevel: "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("model.engine", d.Model.Engine)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.max_retries", d.Model.MaxRetries)
	v.SetDefault("model.retry_delay_ms", d.Model.RetryDelayMs)

	v.SetDefault("discussion.max_rounds", d.Discussion.MaxRounds)
	v.SetDefault("discussion.intervention_enabled", d.Discussion.InterventionEnabled)
	v.SetDefault("discussion.digest_window", d.Discussion.DigestWindow)
	v.SetDefault("discussion.contribution_char_budget", d.Discussion.ContributionCharBudget)
	v.SetDefault("discussion.per_call_timeout_seconds", d.Discussion.PerCallTimeoutSeconds)
	v.SetDefault("discussion.quality_formula", d.Discussion.QualityFormula)
	v.SetDefault("discussion.specialty_registry", d.Discussion.SpecialtyRegistry)

	v.SetDefault("session.timeout_seconds", d.Session.TimeoutSeconds)
	v.SetDefault("session.sweep_interval_seconds", d.Session.SweepIntervalSeconds)

	v.SetDefault("export.dir", d.Export.Dir)
	v.SetDefault("export.postgres_url", d.Export.PostgresURL)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.api_key", d.Server.APIKey)

	v.SetDefault("log_level", d.LogLevel)
}

// Load reads configuration from the given file (optional), then from
// mdtboard.yaml in the working directory, then from MDTBOARD_* environment
// variables, on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MDTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("mdtboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; defaults apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	if c.Discussion.MaxRounds < 1 {
		return fmt.Errorf("discussion.max_rounds must be >= 1, got %d", c.Discussion.MaxRounds)
	}
	if c.Discussion.DigestWindow < 1 {
		return fmt.Errorf("discussion.digest_window must be >= 1, got %d", c.Discussion.DigestWindow)
	}
	if c.Discussion.ContributionCharBudget < 1 {
		return fmt.Errorf("discussion.contribution_char_budget must be >= 1, got %d", c.Discussion.ContributionCharBudget)
	}
	if c.Discussion.PerCallTimeoutSeconds < 1 {
		return fmt.Errorf("discussion.per_call_timeout_seconds must be >= 1, got %d", c.Discussion.PerCallTimeoutSeconds)
	}
	if c.Session.TimeoutSeconds < 1 {
		return fmt.Errorf("session.timeout_seconds must be >= 1, got %d", c.Session.TimeoutSeconds)
	}
	if c.Session.SweepIntervalSeconds < 1 {
		return fmt.Errorf("session.sweep_interval_seconds must be >= 1, got %d", c.Session.SweepIntervalSeconds)
	}
	return nil
}
