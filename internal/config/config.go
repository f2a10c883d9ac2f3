// Package config loads pixelNERD configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pixelNERD configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// External tool executor (the hosted image service)
	Executor ExecutorConfig `yaml:"executor"`

	// Context/learning store
	Store StoreConfig `yaml:"store"`

	// Validation limits
	Limits LimitsConfig `yaml:"limits"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ExecutorConfig configures the hosted image-operation service.
type ExecutorConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// StoreConfig configures the SQLite context/learning store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	// RetentionCeiling is the max conversation count before pruning
	// (oldest-first by last update).
	RetentionCeiling int `yaml:"retention_ceiling"`
}

// LimitsConfig configures validation thresholds.
type LimitsConfig struct {
	// MaxUpscalePixels caps the output pixel area of upscale requests.
	MaxUpscalePixels int `yaml:"max_upscale_pixels"`
	// MaxDominantColors caps k for dominant-color clustering.
	MaxDominantColors int `yaml:"max_dominant_colors"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pixelNERD",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			BaseURL:  "https://api.anthropic.com/v1",
			Timeout:  "120s",
		},

		Executor: ExecutorConfig{
			BaseURL: "http://localhost:8090",
			Timeout: "60s",
		},

		Store: StoreConfig{
			DatabasePath:     ".pixelnerd/pixelnerd.db",
			RetentionCeiling: 200,
		},

		Limits: LimitsConfig{
			MaxUpscalePixels:  67108864, // 8192 x 8192
			MaxDominantColors: 9,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over the file for deployment
// settings and secrets.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIXELNERD_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("PIXELNERD_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("PIXELNERD_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PIXELNERD_EXECUTOR_URL"); v != "" {
		c.Executor.BaseURL = v
	}
	if v := os.Getenv("PIXELNERD_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("PIXELNERD_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Store.RetentionCeiling = n
		}
	}
	if v := os.Getenv("PIXELNERD_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// LLMTimeout parses the LLM timeout, defaulting to 120s on bad input.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// ExecutorTimeout parses the executor timeout, defaulting to 60s on bad input.
func (c *Config) ExecutorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Executor.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Validate checks settings that would otherwise fail deep inside a turn.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider: %q (use anthropic, openai, or gemini)", c.LLM.Provider)
	}
	if c.Store.RetentionCeiling <= 0 {
		return fmt.Errorf("store retention_ceiling must be positive, got %d", c.Store.RetentionCeiling)
	}
	if c.Limits.MaxUpscalePixels <= 0 {
		return fmt.Errorf("limits max_upscale_pixels must be positive, got %d", c.Limits.MaxUpscalePixels)
	}
	return nil
}
