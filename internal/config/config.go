// ABOUTME: Configuration loading and parsing for the toolweave backend
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete backend configuration
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BusConfig holds message bus connection configuration
type BusConfig struct {
	// URL is the NATS server address. The value "memory" selects the
	// in-process bus, useful for single-binary deployments and tests.
	URL string `yaml:"url"`
	// Namespace prefixes every subject so multiple deployments can share
	// one bus instance.
	Namespace string `yaml:"namespace"`
	// Name identifies this connection to the server.
	Name string `yaml:"name"`

	ReconnectWait time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReconnectWaitRaw string `yaml:"reconnect_wait"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the heartbeat record store configuration. When disabled,
// heartbeats are tracked in process memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HeartbeatConfig holds connection liveness timing configuration
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"-"`
	Timeout  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
	TimeoutRaw  string `yaml:"timeout"`
}

// DispatchConfig holds tool-call dispatch configuration
type DispatchConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// AdminConfig holds the administrative HTTP endpoint configuration
type AdminConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the optional fields a minimal config file omits.
func (c *Config) applyDefaults() {
	if c.Bus.URL == "" {
		c.Bus.URL = "nats://127.0.0.1:4222"
	}
	if c.Bus.Name == "" {
		c.Bus.Name = "toolweave-backend"
	}
	if c.Bus.ReconnectWait == 0 {
		c.Bus.ReconnectWait = 2 * time.Second
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = 30 * time.Second
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = 3 * c.Heartbeat.Interval
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 30 * time.Second
	}
	if c.Admin.HTTPAddr == "" {
		c.Admin.HTTPAddr = "127.0.0.1:8420"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Heartbeat.Timeout < c.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.timeout (%s) must be at least heartbeat.interval (%s)",
			c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bus.ReconnectWaitRaw != "" {
		cfg.Bus.ReconnectWait, err = time.ParseDuration(cfg.Bus.ReconnectWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_wait %q: %w", cfg.Bus.ReconnectWaitRaw, err)
		}
	}

	if cfg.Heartbeat.IntervalRaw != "" {
		cfg.Heartbeat.Interval, err = time.ParseDuration(cfg.Heartbeat.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat interval %q: %w", cfg.Heartbeat.IntervalRaw, err)
		}
	}

	if cfg.Heartbeat.TimeoutRaw != "" {
		cfg.Heartbeat.Timeout, err = time.ParseDuration(cfg.Heartbeat.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat timeout %q: %w", cfg.Heartbeat.TimeoutRaw, err)
		}
	}

	if cfg.Dispatch.TimeoutRaw != "" {
		cfg.Dispatch.Timeout, err = time.ParseDuration(cfg.Dispatch.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch timeout %q: %w", cfg.Dispatch.TimeoutRaw, err)
		}
	}

	return nil
}
