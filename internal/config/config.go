package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/infer"
)

// Config holds all configuration for go-type-query
type Config struct {
	// Bound on each type analysis run, 0 disables it
	InferenceTimeout time.Duration `yaml:"inference_timeout" env:"GTQ_INFERENCE_TIMEOUT"`

	// Bound on reaching-definitions analysis, 0 disables it
	DefinitionsTimeout time.Duration `yaml:"definitions_timeout" env:"GTQ_DEFINITIONS_TIMEOUT"`

	// Flows with more instructions answer too complex, 0 for no limit
	MaxInstructions int `yaml:"max_instructions" env:"GTQ_MAX_INSTRUCTIONS"`

	// Number of scope caches the engine keeps
	MaxScopes int `yaml:"max_scopes" env:"GTQ_MAX_SCOPES"`

	// Logging
	LogLevel string `yaml:"log_level" env:"GTQ_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"GTQ_JSON_LOGS"`
	Verbose  bool   `yaml:"verbose" env:"GTQ_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InferenceTimeout:   time.Second,
		DefinitionsTimeout: 2 * time.Second,
		MaxInstructions:    50000,
		MaxScopes:          128,
		LogLevel:           "info",
		JSONLogs:           false,
		Verbose:            false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.gtq/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ProjectConfigFilePath()
	}
	return filepath.Join(home, ".gtq", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gtq/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".gtq", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.gtq/config.yaml)
// 3. Global config (~/.gtq/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"GTQ_INFERENCE_TIMEOUT", &cfg.InferenceTimeout},
		{"GTQ_DEFINITIONS_TIMEOUT", &cfg.DefinitionsTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"GTQ_MAX_INSTRUCTIONS", &cfg.MaxInstructions},
		{"GTQ_MAX_SCOPES", &cfg.MaxScopes},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv("GTQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GTQ_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	if v := os.Getenv("GTQ_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	return nil
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// Validate checks that the configuration has valid fields
func (c *Config) Validate() error {
	if c.InferenceTimeout < 0 {
		return fmt.Errorf("inference_timeout must be non-negative")
	}
	if c.DefinitionsTimeout < 0 {
		return fmt.Errorf("definitions_timeout must be non-negative")
	}
	if c.MaxInstructions < 0 {
		return fmt.Errorf("max_instructions must be non-negative")
	}
	if c.MaxScopes <= 0 {
		return fmt.Errorf("max_scopes must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the configured log level. Verbose forces debug.
func (c *Config) Level() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// EngineOptions returns the inference engine options the config describes.
func (c *Config) EngineOptions(logger log.Logger) infer.Options {
	return infer.Options{
		InferenceTimeout:   c.InferenceTimeout,
		DefinitionsTimeout: c.DefinitionsTimeout,
		MaxInstructions:    c.MaxInstructions,
		MaxScopes:          c.MaxScopes,
		Logger:             logger,
	}
}
