// ABOUTME: Configuration loading and parsing for streamchat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxAttempts   = 3
	DefaultEnvelopeDelay = 50 * time.Millisecond
	DefaultRetryBackoff  = 200 * time.Millisecond
	DefaultSettleDelay   = 100 * time.Millisecond
	DefaultCacheSize     = 256

	// ssePath is appended to the bot provider endpoint to derive the SSE endpoint.
	ssePath = "/message/sse"
)

// ErrConfiguration is the sentinel wrapped by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing or invalid required setting.
// It is fatal and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// Config represents the complete streamchat configuration
type Config struct {
	Client  ClientConfig  `yaml:"client" toml:"client"`
	Channel ChannelConfig `yaml:"channel" toml:"channel"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Archive ArchiveConfig `yaml:"archive" toml:"archive"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ClientConfig holds the SSE backend connection settings
type ClientConfig struct {
	APIKey              string `yaml:"api_key" toml:"api_key"`
	Endpoint            string `yaml:"endpoint" toml:"endpoint"` // deprecated, prefer BotProviderEndpoint
	BotProviderEndpoint string `yaml:"bot_provider_endpoint" toml:"bot_provider_endpoint"`
	DebugMode           bool   `yaml:"debug_mode" toml:"debug_mode"`
	MaxAttempts         int    `yaml:"max_attempts" toml:"max_attempts"`

	EnvelopeDelay time.Duration `yaml:"-" toml:"-"`
	RetryBackoff  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	EnvelopeDelayRaw string `yaml:"envelope_delay" toml:"envelope_delay"`
	RetryBackoffRaw  string `yaml:"retry_backoff" toml:"retry_backoff"`
}

// ChannelConfig identifies the conversation session
type ChannelConfig struct {
	ID               string `yaml:"id" toml:"id"`
	ShowDebugMessage bool   `yaml:"show_debug_message" toml:"show_debug_message"`
}

// RenderConfig holds incremental markdown rendering settings
type RenderConfig struct {
	SettleDelay    time.Duration `yaml:"-" toml:"-"`
	SettleDelayRaw string        `yaml:"settle_delay" toml:"settle_delay"`
	CacheSize      int           `yaml:"cache_size" toml:"cache_size"`
}

// ArchiveConfig holds transcript archive settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset tunables with their defaults.
func (c *Config) ApplyDefaults() {
	c.Client.ApplyDefaults()
	if c.Render.SettleDelay == 0 {
		c.Render.SettleDelay = DefaultSettleDelay
	}
	if c.Render.CacheSize <= 0 {
		c.Render.CacheSize = DefaultCacheSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// ApplyDefaults fills unset client tunables with their defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.EnvelopeDelay == 0 && c.EnvelopeDelayRaw == "" {
		c.EnvelopeDelay = DefaultEnvelopeDelay
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns a *ConfigurationError describing the first failure encountered.
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Channel.ID) == "" {
		return &ConfigurationError{Field: "channel.id", Reason: "is required"}
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return &ConfigurationError{Field: "archive.path", Reason: "is required when archive is enabled"}
	}

	return nil
}

// Validate checks that an SSE endpoint can be resolved.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" && strings.TrimSpace(c.BotProviderEndpoint) == "" {
		return &ConfigurationError{Field: "client.bot_provider_endpoint", Reason: "is required (or set client.endpoint)"}
	}
	if c.MaxAttempts < 0 {
		return &ConfigurationError{Field: "client.max_attempts", Reason: "must not be negative"}
	}
	return nil
}

var deprecationOnce sync.Once

// ResolveEndpoint returns the SSE endpoint. An explicit Endpoint takes
// priority; otherwise it is derived from BotProviderEndpoint. Using the
// deprecated Endpoint while DebugMode is on logs a warning once per process.
func (c *ClientConfig) ResolveEndpoint(logger *slog.Logger) (string, error) {
	if endpoint := strings.TrimSpace(c.Endpoint); endpoint != "" {
		if c.DebugMode {
			deprecationOnce.Do(func() {
				if logger == nil {
					logger = slog.Default()
				}
				logger.Warn("client.endpoint is deprecated, use client.bot_provider_endpoint instead",
					"endpoint", endpoint)
			})
		}
		return endpoint, nil
	}

	base := strings.TrimRight(strings.TrimSpace(c.BotProviderEndpoint), "/")
	if base == "" {
		return "", &ConfigurationError{Field: "client.bot_provider_endpoint", Reason: "is required (or set client.endpoint)"}
	}
	return base + ssePath, nil
}

// MetadataURL returns the bot provider metadata URL, or "" if only an
// explicit SSE endpoint is configured.
func (c *ClientConfig) MetadataURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BotProviderEndpoint), "/")
	if base == "" {
		return ""
	}
	return base + "/metadata"
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Client.EnvelopeDelayRaw != "" {
		cfg.Client.EnvelopeDelay, err = time.ParseDuration(cfg.Client.EnvelopeDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing envelope_delay %q: %w", cfg.Client.EnvelopeDelayRaw, err)
		}
	}

	if cfg.Client.RetryBackoffRaw != "" {
		cfg.Client.RetryBackoff, err = time.ParseDuration(cfg.Client.RetryBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_backoff %q: %w", cfg.Client.RetryBackoffRaw, err)
		}
	}

	if cfg.Render.SettleDelayRaw != "" {
		cfg.Render.SettleDelay, err = time.ParseDuration(cfg.Render.SettleDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing settle_delay %q: %w", cfg.Render.SettleDelayRaw, err)
		}
	}

	return nil
}
