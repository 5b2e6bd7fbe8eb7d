// Package config loads the daemon configuration from a YAML file with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig configures the HTTP listener and authentication.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	JWTSecret         string   `yaml:"jwt_secret"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
}

// ModelConfig selects the LLM backing the director.
type ModelConfig struct {
	Provider string `yaml:"provider"` // anthropic or openai
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key"`
}

// StoreConfig configures persistence. An empty path selects the in-memory store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig configures the remote agent platform client.
type RemoteConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	SessionRetries int      `yaml:"session_retries"`
	RetryDelay     Duration `yaml:"retry_delay"`
	PacingDelay    Duration `yaml:"pacing_delay"`
}

// RunConfig bounds background simulation execution.
type RunConfig struct {
	Timeout       Duration `yaml:"timeout"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// RetentionConfig controls pruning of terminal simulations.
type RetentionConfig struct {
	Schedule string   `yaml:"schedule"`
	MaxAge   Duration `yaml:"max_age"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Store     StoreConfig     `yaml:"store"`
	Remote    RemoteConfig    `yaml:"remote"`
	Run       RunConfig       `yaml:"run"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			KeepaliveInterval: Duration(15 * time.Second),
		},
		Model: ModelConfig{
			Provider: "anthropic",
		},
		Remote: RemoteConfig{
			SessionRetries: 3,
			RetryDelay:     Duration(10 * time.Second),
			PacingDelay:    Duration(6 * time.Second),
		},
		Run: RunConfig{
			Timeout:       Duration(30 * time.Minute),
			MaxConcurrent: 10,
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *",
			MaxAge:   Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}
