// Package config provides configuration loading and structs for the embedapi
// server and client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the installed binary looks for its config file.
const DefaultPath = "/usr/local/etc/embedapi/config.yaml"

// APIKeyEnv overrides an empty openai.api_key.
const APIKeyEnv = "OPENAI_API_KEY"

// ErrNoBackend is returned by Validate when neither backend is configured.
var ErrNoBackend = errors.New("no embedding backend configured: enable local or set an OpenAI API key")

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Local    LocalConfig    `yaml:"local"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Client   ClientConfig   `yaml:"client"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled   *bool `yaml:"enabled"`
	MaxSize   int   `yaml:"max_size"`
	WarmStart bool  `yaml:"warm_start"`
}

// IsEnabled reports whether the cache is on; defaults to true when unset.
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DispatchConfig holds per-request dispatch settings.
type DispatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LocalConfig holds the ONNX model settings.
type LocalConfig struct {
	Enabled           *bool  `yaml:"enabled"`
	ModelPath         string `yaml:"model_path"`
	ModelName         string `yaml:"model_name"`
	Dimensions        int    `yaml:"dimensions"`
	MaxTokens         int    `yaml:"max_tokens"`
	AllowHashFallback bool   `yaml:"allow_hash_fallback"`
}

// IsEnabled reports whether the local backend is on; defaults to true when unset.
func (c *LocalConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// OpenAIConfig holds the remote backend settings. The backend is configured
// when an API key is present.
type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxInputTokens    int           `yaml:"max_input_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// IsConfigured reports whether an API key is available.
func (c *OpenAIConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// BreakerConfig holds circuit breaker settings for the remote backend.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StorageConfig holds the embedding archive settings.
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether /metrics is served; defaults to true when unset.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ClientConfig holds settings for the batching client commands.
type ClientConfig struct {
	ServerURL string        `yaml:"server_url"`
	ChunkSize int           `yaml:"chunk_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WatchConfig holds spool directory watch settings.
type WatchConfig struct {
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
}

// Default returns a config with every default applied, for running without
// a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults and the
// API key environment override, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Local.ModelPath = expandPath(cfg.Local.ModelPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// Validate reports the first setting that prevents the server from running.
func (c *Config) Validate() error {
	if c.Cache.IsEnabled() && c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be positive when the cache is enabled, got %d", c.Cache.MaxSize)
	}
	if !c.Local.IsEnabled() && !c.OpenAI.IsConfigured() {
		return ErrNoBackend
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be at least 1, got %d", c.Dispatch.Concurrency)
	}
	if c.Client.ChunkSize <= 0 {
		return fmt.Errorf("client.chunk_size must be positive, got %d", c.Client.ChunkSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv(APIKeyEnv)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are left as written.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
