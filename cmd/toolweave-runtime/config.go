// ABOUTME: Configuration loading for the toolweave runtime binary
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/toolweave/toolweave/internal/protocol"
)

type Config struct {
	Bus     BusConfig     `toml:"bus"`
	Redis   RedisConfig   `toml:"redis"`
	Runtime RuntimeConfig `toml:"runtime"`
	Logging LoggingConfig `toml:"logging"`
}

type BusConfig struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type RuntimeConfig struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"`
	Workspace string `toml:"workspace"`

	HeartbeatInterval time.Duration `toml:"-"`

	// Raw string value for TOML unmarshaling
	HeartbeatIntervalRaw string `toml:"heartbeat_interval"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Runtime.HeartbeatIntervalRaw != "" {
		cfg.Runtime.HeartbeatInterval, err = time.ParseDuration(cfg.Runtime.HeartbeatIntervalRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Runtime.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Bus.URL == "" {
		cfg.Bus.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Runtime.Kind == "" {
		cfg.Runtime.Kind = string(protocol.RuntimeMCP)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Runtime.Name == "" {
		return fmt.Errorf("runtime.name is required")
	}
	if !protocol.RuntimeType(c.Runtime.Kind).Valid() {
		return fmt.Errorf("runtime.kind %q is not one of MCP, EDGE, TOOLSET", c.Runtime.Kind)
	}
	return nil
}
