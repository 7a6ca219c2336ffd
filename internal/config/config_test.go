// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
bus:
  url: "nats://bus.internal:4222"
  namespace: "prod"
  name: "backend-1"
  reconnect_wait: "5s"

database:
  path: "./test.db"

redis:
  enabled: true
  addr: "127.0.0.1:6379"
  db: 2

heartbeat:
  interval: "15s"
  timeout: "45s"

dispatch:
  timeout: "20s"

admin:
  http_addr: "0.0.0.0:8420"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify bus config
	if cfg.Bus.URL != "nats://bus.internal:4222" {
		t.Errorf("Bus.URL = %q, want %q", cfg.Bus.URL, "nats://bus.internal:4222")
	}
	if cfg.Bus.Namespace != "prod" {
		t.Errorf("Bus.Namespace = %q, want %q", cfg.Bus.Namespace, "prod")
	}
	if cfg.Bus.Name != "backend-1" {
		t.Errorf("Bus.Name = %q, want %q", cfg.Bus.Name, "backend-1")
	}
	if cfg.Bus.ReconnectWait != 5*time.Second {
		t.Errorf("Bus.ReconnectWait = %v, want %v", cfg.Bus.ReconnectWait, 5*time.Second)
	}

	// Verify database config
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	// Verify redis config
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Redis.Addr, "127.0.0.1:6379")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d, want 2", cfg.Redis.DB)
	}

	// Verify heartbeat config with duration parsing
	if cfg.Heartbeat.Interval != 15*time.Second {
		t.Errorf("Heartbeat.Interval = %v, want %v", cfg.Heartbeat.Interval, 15*time.Second)
	}
	if cfg.Heartbeat.Timeout != 45*time.Second {
		t.Errorf("Heartbeat.Timeout = %v, want %v", cfg.Heartbeat.Timeout, 45*time.Second)
	}

	// Verify dispatch config
	if cfg.Dispatch.Timeout != 20*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want %v", cfg.Dispatch.Timeout, 20*time.Second)
	}

	// Verify admin config
	if cfg.Admin.HTTPAddr != "0.0.0.0:8420" {
		t.Errorf("Admin.HTTPAddr = %q, want %q", cfg.Admin.HTTPAddr, "0.0.0.0:8420")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bus.URL != "nats://127.0.0.1:4222" {
		t.Errorf("Bus.URL = %q, want default nats address", cfg.Bus.URL)
	}
	if cfg.Bus.Name != "toolweave-backend" {
		t.Errorf("Bus.Name = %q, want %q", cfg.Bus.Name, "toolweave-backend")
	}
	if cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("Heartbeat.Interval = %v, want %v", cfg.Heartbeat.Interval, 30*time.Second)
	}
	if cfg.Heartbeat.Timeout != 90*time.Second {
		t.Errorf("Heartbeat.Timeout = %v, want %v", cfg.Heartbeat.Timeout, 90*time.Second)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want %v", cfg.Dispatch.Timeout, 30*time.Second)
	}
	if cfg.Admin.HTTPAddr != "127.0.0.1:8420" {
		t.Errorf("Admin.HTTPAddr = %q, want default admin address", cfg.Admin.HTTPAddr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "secret-from-env")
	t.Setenv("TEST_BUS_URL", "nats://env.internal:4222")

	configPath := writeConfig(t, `
bus:
  url: "${TEST_BUS_URL}"

database:
  path: "./test.db"

redis:
  enabled: true
  addr: "127.0.0.1:6379"
  password: "${TEST_REDIS_PASSWORD}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bus.URL != "nats://env.internal:4222" {
		t.Errorf("Bus.URL = %q, want %q", cfg.Bus.URL, "nats://env.internal:4222")
	}
	if cfg.Redis.Password != "secret-from-env" {
		t.Errorf("Redis.Password = %q, want %q", cfg.Redis.Password, "secret-from-env")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, `
database:
  path: "./test.db"

redis:
  password: "${UNSET_VAR_FOR_TEST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Unset variables expand to the empty string
	if cfg.Redis.Password != "" {
		t.Errorf("Redis.Password = %q, want empty", cfg.Redis.Password)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

heartbeat:
  interval: "thirty seconds"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want duration parse error")
	}
	if !strings.Contains(err.Error(), "parsing durations") {
		t.Errorf("error = %v, want parsing durations error", err)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "database.path is required") {
		t.Errorf("error = %v, want database.path error", err)
	}
}

func TestLoad_RedisEnabledWithoutAddr(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

redis:
  enabled: true
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "redis.addr is required") {
		t.Errorf("error = %v, want redis.addr error", err)
	}
}

func TestLoad_TimeoutShorterThanInterval(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

heartbeat:
  interval: "30s"
  timeout: "10s"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "heartbeat.timeout") {
		t.Errorf("error = %v, want heartbeat.timeout error", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

logging:
  level: "verbose"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error = %v, want logging.level error", err)
	}
}
