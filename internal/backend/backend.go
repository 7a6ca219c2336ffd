// ABOUTME: Backend orchestrator that wires the bus, store, and protocol services
// ABOUTME: Manages identity handshakes, reset coordination, and the admin HTTP endpoint

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/config"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/identity"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/reset"
	"github.com/toolweave/toolweave/internal/store"
	"github.com/toolweave/toolweave/internal/subject"
)

// Backend orchestrates the toolweave backend components. It owns the bus
// connection, the persistent store, the identity service answering connect
// handshakes, the reset coordinator, and the admin HTTP server.
type Backend struct {
	config     *config.Config
	store      store.Store
	bus        bus.Bus
	heartbeats heartbeat.Store
	monitor    *heartbeat.Monitor
	identity   *identity.Service
	reset      *reset.Coordinator
	httpServer *http.Server
	logger     *slog.Logger

	// redisClient is nil when heartbeats are tracked in memory.
	redisClient *redis.Client
}

// New wires a Backend from configuration. Nothing is listening until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "backend")

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	b, err := initBus(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	hb, redisClient := initHeartbeats(cfg)

	router := subject.Router{Namespace: cfg.Bus.Namespace}
	registry := protocol.NewDefaultRegistry()

	svc := identity.NewService(identity.ServiceParams{
		Store:             s,
		Bus:               b,
		Router:            router,
		Registry:          registry,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		Logger:            logger.With("component", "identity"),
	})

	coordinator := reset.NewCoordinator(reset.CoordinatorParams{
		Store:      s,
		Heartbeats: hb,
		Bus:        b,
		Router:     router,
		Logger:     logger.With("component", "reset"),
	})

	backend := &Backend{
		config:      cfg,
		store:       s,
		bus:         b,
		heartbeats:  hb,
		monitor:     heartbeat.NewMonitor(hb),
		identity:    svc,
		reset:       coordinator,
		logger:      logger,
		redisClient: redisClient,
	}
	backend.httpServer = &http.Server{
		Handler:           backend.adminMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return backend, nil
}

// initStore creates the SQLite store, honoring the TOOLWEAVE_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TOOLWEAVE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initBus connects the message bus. The "memory" URL selects the in-process
// bus for single-binary deployments.
func initBus(cfg *config.Config, logger *slog.Logger) (bus.Bus, error) {
	if cfg.Bus.URL == "memory" {
		return bus.NewMemory(), nil
	}
	b, err := bus.ConnectNATS(bus.NATSOptions{
		URL:           cfg.Bus.URL,
		Name:          cfg.Bus.Name,
		ReconnectWait: cfg.Bus.ReconnectWait,
		Logger:        logger.With("component", "bus"),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting message bus: %w", err)
	}
	return b, nil
}

// initHeartbeats picks the heartbeat record store: Redis when configured,
// in-process memory otherwise.
func initHeartbeats(cfg *config.Config) (heartbeat.Store, *redis.Client) {
	if !cfg.Redis.Enabled {
		return heartbeat.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return heartbeat.NewRedisStore(client, cfg.Bus.Namespace), client
}

// ensureDefaultWorkspace creates the default workspace on first boot so
// connections always have somewhere to land.
func (b *Backend) ensureDefaultWorkspace(ctx context.Context) error {
	_, err := b.store.DefaultWorkspace(ctx)
	if err == nil {
		return nil
	}
	if err != store.ErrNotFound {
		return fmt.Errorf("looking up default workspace: %w", err)
	}

	ws, err := b.store.CreateWorkspace(ctx, reset.DefaultWorkspaceName, true)
	if err != nil {
		return fmt.Errorf("creating default workspace: %w", err)
	}
	b.logger.Info("created default workspace", "workspace_id", ws.ID)
	return nil
}

// Run starts the backend and blocks until the context is canceled or a
// server fails. Returns nil on graceful shutdown.
func (b *Backend) Run(ctx context.Context) error {
	if err := b.ensureDefaultWorkspace(ctx); err != nil {
		return err
	}
	if err := b.identity.Start(ctx); err != nil {
		return fmt.Errorf("starting identity service: %w", err)
	}

	httpLn, err := net.Listen("tcp", b.config.Admin.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on admin address: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.logger.Info("admin HTTP server listening", "addr", httpLn.Addr().String())
		if err := b.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Shutdown fires on cancellation or on a sibling failure, and makes
		// Serve return ErrServerClosed either way.
		<-gctx.Done()
		b.logger.Info("initiating shutdown")
		return b.gracefulShutdown()
	})
	return g.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (b *Backend) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the backend and releases resources.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down backend")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", b.httpServer.Shutdown(ctx))

	b.identity.Stop()
	b.bus.Close()

	if mem, ok := b.heartbeats.(*heartbeat.MemoryStore); ok {
		mem.Close()
	}
	if b.redisClient != nil {
		errs = appendCloseError(errs, "redis close", b.redisClient.Close())
	}
	errs = appendCloseError(errs, "store close", b.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
