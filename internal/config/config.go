// Package config provides configuration management for stockwatch.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"stockwatch/internal/errors"
)

// Source modes.
const (
	SourceREST  = "rest"
	SourceLocal = "local"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Storage StorageConfig `mapstructure:"storage"`
	Quotes  QuotesConfig  `mapstructure:"quotes"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
	UI      UIConfig      `mapstructure:"ui"`

	// path is the file the configuration was read from, empty when defaults were used.
	path string
}

// SourceConfig selects where records live.
type SourceConfig struct {
	Mode          string        `mapstructure:"mode"` // "rest", "local"
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// RefreshConfig holds background refresh timing.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	PostAddDelay time.Duration `mapstructure:"post_add_delay"`
}

// StorageConfig holds the persistence slot configuration.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // "sqlite", "redis", "memory"
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	Key       string `mapstructure:"key"`
}

// QuotesConfig holds quote page scraping configuration for the local source.
type QuotesConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URLTemplate string        `mapstructure:"url_template"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CatalogConfig points at an instrument catalog file. Empty uses the built-in one.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stockwatch"
	}
	return filepath.Join(home, ".config", "stockwatch")
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	v := newViper(DefaultConfigDir())
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	v := newViper(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config.toml: %w", err)
		}
	} else {
		cfg.path = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func newViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("source.mode", SourceLocal)
	v.SetDefault("source.base_url", "http://localhost:8080/api/stocks")
	v.SetDefault("source.timeout", 10*time.Second)
	v.SetDefault("source.retry_attempts", 3)

	v.SetDefault("refresh.interval", 30*time.Second)
	v.SetDefault("refresh.post_add_delay", time.Second)

	v.SetDefault("storage.backend", StorageSQLite)
	v.SetDefault("storage.path", filepath.Join(configDir, "watchlist.db"))
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.key", "stockwatch.watchlist")

	v.SetDefault("quotes.enabled", true)
	v.SetDefault("quotes.url_template", "https://finance.yahoo.com/quote/{symbol}")
	v.SetDefault("quotes.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "stockwatch.log"))

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("ui.color_enabled", true)
	return v
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKWATCH_SOURCE"); v != "" {
		cfg.Source.Mode = v
	}
	if v := os.Getenv("STOCKWATCH_API_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("STOCKWATCH_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("STOCKWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STOCKWATCH_TRACING"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = enabled
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case SourceREST:
		if c.Source.BaseURL == "" {
			return invalid("source.base_url", "", "required when source.mode is rest")
		}
		u, err := url.Parse(c.Source.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("source.base_url", c.Source.BaseURL, "must be an absolute http(s) URL")
		}
	case SourceLocal:
	default:
		return invalid("source.mode", c.Source.Mode, "must be 'rest' or 'local'")
	}
	if c.Source.Timeout < 0 {
		return invalid("source.timeout", c.Source.Timeout.String(), "must be non-negative")
	}
	if c.Source.RetryAttempts < 0 {
		return invalid("source.retry_attempts", strconv.Itoa(c.Source.RetryAttempts), "must be non-negative")
	}

	if c.Refresh.Interval <= 0 {
		return invalid("refresh.interval", c.Refresh.Interval.String(), "must be positive")
	}
	if c.Refresh.PostAddDelay <= 0 {
		return invalid("refresh.post_add_delay", c.Refresh.PostAddDelay.String(), "must be positive")
	}

	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return invalid("storage.path", "", "required for the sqlite backend")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return invalid("storage.redis_addr", "", "required for the redis backend")
		}
	case StorageMemory:
	default:
		return invalid("storage.backend", c.Storage.Backend, "must be 'sqlite', 'redis' or 'memory'")
	}

	return nil
}

// Path returns the config file that was read, or "" if none was.
func (c *Config) Path() string {
	return c.path
}

// IsLocal returns true if records are kept in-process.
func (c *Config) IsLocal() bool {
	return c.Source.Mode == SourceLocal
}

func invalid(field, value, message string) error {
	return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, errors.NewValidationError(field, value, message))
}
