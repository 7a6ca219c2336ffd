// Package config handles configuration loading for the toolweave backend.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	redis:
//	  password: "${TOOLWEAVE_REDIS_PASSWORD}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	heartbeat:
//	  interval: "30s"
//	  timeout: "90s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Message bus:
//
//	bus:
//	  url: "nats://127.0.0.1:4222"  # or "memory" for in-process
//	  namespace: "prod"             # optional subject prefix
//	  reconnect_wait: "2s"
//
// Database:
//
//	database:
//	  path: "/var/lib/toolweave/backend.db"
//
// Heartbeat store:
//
//	redis:
//	  enabled: true
//	  addr: "127.0.0.1:6379"
//	  password: "${TOOLWEAVE_REDIS_PASSWORD}"
//	  db: 0
//
// Connection liveness:
//
//	heartbeat:
//	  interval: "30s"
//	  timeout: "90s"
//
// Tool dispatch:
//
//	dispatch:
//	  timeout: "30s"
//
// Admin endpoint:
//
//	admin:
//	  http_addr: "127.0.0.1:8420"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/toolweave/backend.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
