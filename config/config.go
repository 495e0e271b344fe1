// Package config loads the server configuration from an optional YAML file,
// a .env file and the environment.
//
// Precedence, lowest first: defaults, YAML file, environment. String values
// in the YAML file may reference the environment as ${VAR} or
// ${VAR:-default}.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentstream/logging"
)

// Defaults.
const (
	DefaultAddr            = ":8080"
	DefaultProvider        = "openai"
	DefaultMaxSteps        = 8
	DefaultLogFormat       = "text"
	DefaultMetricsEndpoint = "/metrics"
	DefaultBodyLimit       = "1M"
	DefaultMaxConcurrent   = 10
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	Agent  AgentConfig  `yaml:"agent"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	BodyLimit       string `yaml:"body_limit"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`

	// MaxConcurrentRuns bounds simultaneous chat requests. 0 means unlimited.
	MaxConcurrentRuns int64 `yaml:"max_concurrent_runs"`
}

// ModelConfig selects and configures the provider adapter.
type ModelConfig struct {
	// Provider is openai, anthropic or mock.
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens *int64   `yaml:"max_output_tokens"`
	MaxRetries      int      `yaml:"max_retries"`
}

// AgentConfig configures the agent loop.
type AgentConfig struct {
	// MaxSteps caps model calls per request. 0 means unbounded.
	MaxSteps         int    `yaml:"max_steps"`
	MaxParallelTools int    `yaml:"max_parallel_tools"`
	System           string `yaml:"system"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			BodyLimit:         DefaultBodyLimit,
			MetricsEnabled:    true,
			MetricsEndpoint:   DefaultMetricsEndpoint,
			MaxConcurrentRuns: DefaultMaxConcurrent,
		},
		Model: ModelConfig{Provider: DefaultProvider},
		Agent: AgentConfig{MaxSteps: DefaultMaxSteps},
		Log:   LogConfig{Level: "info", Format: DefaultLogFormat},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present; it never overrides variables already set. An
// empty path skips the YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal([]byte(expandString(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Model.Provider)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("config: max_steps must not be negative, got %d", c.Agent.MaxSteps)
	}

	if c.Model.Provider != "mock" && c.Model.APIKey == "" {
		return fmt.Errorf("config: no API key for provider %q", c.Model.Provider)
	}

	return nil
}

// LoggerConfig converts the log section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	return &logging.LoggerConfig{
		Level:     logging.ParseLevel(c.Log.Level),
		Format:    c.Log.Format,
		Output:    os.Stderr,
		Component: "server",
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "AGENTSTREAM_ADDR")
	setString(&cfg.Model.Provider, "AGENTSTREAM_PROVIDER")
	setString(&cfg.Model.Model, "AGENTSTREAM_MODEL")
	setString(&cfg.Model.BaseURL, "AGENTSTREAM_BASE_URL")
	setString(&cfg.Agent.System, "AGENTSTREAM_SYSTEM")
	setString(&cfg.Log.Level, "AGENTSTREAM_LOG_LEVEL")
	setString(&cfg.Log.Format, "AGENTSTREAM_LOG_FORMAT")

	if err := setInt(&cfg.Agent.MaxSteps, "AGENTSTREAM_MAX_STEPS"); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("AGENTSTREAM_METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: AGENTSTREAM_METRICS_ENABLED: %w", err)
		}
		cfg.Server.MetricsEnabled = b
	}

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n

	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty takes the default; without a default the placeholder is kept.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		if sub[2] != "" {
			return sub[3]
		}
		return m
	})
}
