// ABOUTME: Entry point for a toolweave runtime process — connects, serves tools, heartbeats.
// ABOUTME: Ships a built-in echo tool so a fresh deployment has something to call end to end.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/runtime"
	"github.com/toolweave/toolweave/internal/subject"
)

// getConfigPath returns the path to the runtime config file.
// Priority: TOOLWEAVE_RUNTIME_CONFIG env var > XDG_CONFIG_HOME/toolweave/runtime.toml > ~/.config/toolweave/runtime.toml
func getConfigPath() string {
	if envPath := os.Getenv("TOOLWEAVE_RUNTIME_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "runtime.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "toolweave", "runtime.toml")
}

func main() {
	configPath := flag.String("config", getConfigPath(), "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := bus.ConnectNATS(bus.NATSOptions{
		URL:    cfg.Bus.URL,
		Name:   "toolweave-runtime-" + cfg.Runtime.Name,
		Logger: logger.With("component", "bus"),
	})
	if err != nil {
		return fmt.Errorf("connecting message bus: %w", err)
	}
	defer b.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	client := runtime.NewClient(runtime.ClientParams{
		Bus:        b,
		Router:     subject.Router{Namespace: cfg.Bus.Namespace},
		Registry:   protocol.NewDefaultRegistry(),
		Heartbeats: heartbeat.NewRedisStore(redisClient, cfg.Bus.Namespace),
		Config: runtime.ClientConfig{
			Name:              cfg.Runtime.Name,
			Kind:              protocol.RuntimeType(cfg.Runtime.Kind),
			WorkspaceID:       cfg.Runtime.Workspace,
			HeartbeatInterval: cfg.Runtime.HeartbeatInterval,
		},
		Logger: logger.With("component", "runtime", "name", cfg.Runtime.Name),
	})

	if err := client.RegisterTool("echo", echoTool); err != nil {
		return fmt.Errorf("registering echo tool: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting runtime client: %w", err)
	}
	defer client.Close()

	bound := client.Bound()
	logger.Info("runtime connected",
		"identity_id", bound.IdentityID,
		"workspace_id", bound.WorkspaceID,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// echoTool returns its arguments unchanged. Useful for wiring smoke tests.
func echoTool(_ context.Context, req *protocol.CallToolRequest) (json.RawMessage, error) {
	return req.Arguments, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
