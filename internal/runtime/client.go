// ABOUTME: Runtime-side binding: connect handshake, tool serving, heartbeat, and reconnect recovery.
// ABOUTME: Rebinds against the current default workspace on broadcast or on a missed-reset generation change.

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/dispatch"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/identity"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/subject"
)

// Binding is the resolved identity this process is currently bound to.
type Binding struct {
	IdentityID        string
	Name              string
	WorkspaceID       string
	HeartbeatInterval time.Duration
}

// ClientConfig configures a runtime client.
type ClientConfig struct {
	// Name is the logical endpoint name presented at handshake.
	Name string
	// Kind declares what this endpoint is (MCP, EDGE, TOOLSET).
	Kind protocol.RuntimeType
	// WorkspaceID is the initially declared workspace. Empty declares the
	// default workspace.
	WorkspaceID string

	// ConnectTimeout bounds one handshake request. Zero uses 10s.
	ConnectTimeout time.Duration
	// HeartbeatInterval overrides the server-assigned cadence when set.
	HeartbeatInterval time.Duration
	// HeartbeatTTL is the record lifetime. Zero derives 3x the interval.
	HeartbeatTTL time.Duration
	// RetryDelay is the base reconnect backoff. Zero uses 250ms.
	RetryDelay time.Duration

	// PID, HostIP, and Hostname override the detected connection metadata.
	PID      string
	HostIP   string
	Hostname string
}

// Client binds a runtime or toolset process to a workspace identity and
// keeps the binding alive across resets.
type Client struct {
	bus        bus.Bus
	router     subject.Router
	registry   *protocol.Registry
	heartbeats heartbeat.Store
	cfg        ClientConfig
	logger     *slog.Logger

	mu        sync.Mutex
	binding   *Binding
	server    *dispatch.Server
	tools     map[string]dispatch.ToolHandler
	rebinding atomic.Bool

	reconnectSub bus.Subscription
}

// ClientParams wires a Client's dependencies.
type ClientParams struct {
	Bus        bus.Bus
	Router     subject.Router
	Registry   *protocol.Registry
	Heartbeats heartbeat.Store
	Config     ClientConfig
	Logger     *slog.Logger
}

// NewClient creates an unbound client. Call Start to connect.
func NewClient(p ClientParams) *Client {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "runtime", "name", p.Config.Name)
	}
	cfg := p.Config
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.PID == "" {
		cfg.PID = strconv.Itoa(os.Getpid())
	}
	if cfg.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			cfg.Hostname = hn
		} else {
			cfg.Hostname = "unknown"
		}
	}
	if cfg.HostIP == "" {
		cfg.HostIP = detectHostIP()
	}
	if cfg.WorkspaceID == "" {
		cfg.WorkspaceID = identity.WorkspaceDefault
	}
	return &Client{
		bus:        p.Bus,
		router:     p.Router,
		registry:   p.Registry,
		heartbeats: p.Heartbeats,
		cfg:        cfg,
		logger:     logger,
		tools:      make(map[string]dispatch.ToolHandler),
	}
}

// RegisterTool records a tool handler. When the client is already bound the
// tool is served immediately; otherwise it is served at bind time.
func (c *Client) RegisterTool(toolID string, handler dispatch.ToolHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[toolID]; exists {
		return fmt.Errorf("tool %q already registered", toolID)
	}
	c.tools[toolID] = handler

	if c.server != nil {
		return c.server.ServeTool(toolID, handler)
	}
	return nil
}

// Bound returns a snapshot of the current binding, or nil before the first
// successful handshake.
func (c *Client) Bound() *Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return nil
	}
	b := *c.binding
	return &b
}

// Start runs the initial handshake, begins serving registered tools, starts
// the heartbeat loop, and listens for reconnect broadcasts. It returns once
// bound; background loops stop when ctx is done.
func (c *Client) Start(ctx context.Context) error {
	// Capture the reset generation before the handshake. A reset landing
	// anywhere after this read is detected on a beater tick; reading later
	// (or inside the loop goroutine) would silently adopt a reset that
	// lands right after the bind.
	gen, err := c.heartbeats.Generation(ctx)
	if err != nil {
		return fmt.Errorf("reading reset generation: %w", err)
	}

	if err := c.bindOnce(ctx, c.cfg.WorkspaceID); err != nil {
		return err
	}

	sub, err := c.bus.Subscribe(c.router.ReconnectRuntimes(), func(m *bus.Msg) {
		reason := c.decodeReason(m.Data)
		c.logger.Info("reconnect instruction received", "reason", reason)
		c.rebind(ctx)
	})
	if err != nil {
		return fmt.Errorf("subscribing reconnect broadcasts: %w", err)
	}
	c.reconnectSub = sub

	beater := heartbeat.NewBeater(heartbeat.BeaterParams{
		Store:      c.heartbeats,
		Interval:   c.heartbeatInterval(),
		TTL:        c.heartbeatTTL(),
		Generation: gen,
		IdentityID: func() string {
			if b := c.Bound(); b != nil {
				return b.IdentityID
			}
			return ""
		},
		OnGenerationChange: func(gen int64) {
			// A reset happened and we never saw the broadcast.
			c.logger.Info("detected reset via heartbeat generation", "generation", gen)
			c.rebind(ctx)
		},
		Logger: c.logger,
	})
	go beater.Run(ctx)

	return nil
}

func (c *Client) decodeReason(data []byte) string {
	msg, err := c.registry.Decode(data)
	if err != nil {
		return ""
	}
	if rr, ok := msg.(*protocol.ReconnectRuntimes); ok {
		return rr.Reason
	}
	return ""
}

func (c *Client) heartbeatInterval() time.Duration {
	if c.cfg.HeartbeatInterval > 0 {
		return c.cfg.HeartbeatInterval
	}
	if b := c.Bound(); b != nil && b.HeartbeatInterval > 0 {
		return b.HeartbeatInterval
	}
	return heartbeat.DefaultInterval
}

func (c *Client) heartbeatTTL() time.Duration {
	if c.cfg.HeartbeatTTL > 0 {
		return c.cfg.HeartbeatTTL
	}
	return 3 * c.heartbeatInterval()
}

// connect runs one handshake exchange and returns the resolved binding.
func (c *Client) connect(ctx context.Context, workspaceID string) (*Binding, error) {
	req := &protocol.ConnectRequest{
		Name:        c.cfg.Name,
		PID:         c.cfg.PID,
		HostIP:      c.cfg.HostIP,
		Hostname:    c.cfg.Hostname,
		WorkspaceID: workspaceID,
		RuntimeType: c.cfg.Kind,
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	raw, err := c.bus.Request(reqCtx, c.router.Connect(), data)
	if err != nil {
		return nil, fmt.Errorf("connect handshake: %w", err)
	}

	var reply protocol.ConnectReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding connect reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New("connect rejected: " + reply.Error)
	}

	return &Binding{
		IdentityID:        reply.IdentityID,
		Name:              reply.Name,
		WorkspaceID:       reply.WorkspaceID,
		HeartbeatInterval: time.Duration(reply.HeartbeatIntervalMS) * time.Millisecond,
	}, nil
}

// bindOnce connects and installs the binding and its serving endpoint.
func (c *Client) bindOnce(ctx context.Context, workspaceID string) error {
	binding, err := c.connect(ctx, workspaceID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server != nil {
		c.server.Close()
	}

	c.binding = binding
	c.server = dispatch.NewServer(dispatch.ServerParams{
		Bus:      c.bus,
		Router:   c.router,
		Registry: c.registry,
		Bound: dispatch.BoundIdentity{
			ID:          binding.IdentityID,
			Name:        binding.Name,
			WorkspaceID: binding.WorkspaceID,
		},
		Logger: c.logger,
	})

	for toolID, handler := range c.tools {
		if err := c.server.ServeTool(toolID, handler); err != nil {
			return err
		}
	}
	if err := c.server.ServeCapabilities(); err != nil {
		return err
	}
	if err := c.server.AnnounceCapabilities(); err != nil {
		c.logger.Warn("announcing capabilities", "error", err)
	}

	c.logger.Info("bound",
		"identity_id", binding.IdentityID,
		"workspace_id", binding.WorkspaceID,
	)
	return nil
}

// rebind tears down the current binding and re-runs the handshake against
// the current default workspace, retrying with jittered backoff. Concurrent
// triggers (broadcast plus generation check) collapse into one attempt.
func (c *Client) rebind(ctx context.Context) {
	if !c.rebinding.CompareAndSwap(false, true) {
		return
	}
	defer c.rebinding.Store(false)

	delay := c.cfg.RetryDelay
	for {
		err := c.bindOnce(ctx, identity.WorkspaceDefault)
		if err == nil {
			return
		}
		c.logger.Warn("rebind failed, retrying", "error", err, "delay", delay)

		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return
		}
		if delay < 5*time.Second {
			delay *= 2
		}
	}
}

// Close drops the reconnect subscription and the serving endpoint.
func (c *Client) Close() {
	if c.reconnectSub != nil {
		if err := c.reconnectSub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribing reconnect broadcasts", "error", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		c.server.Close()
		c.server = nil
	}
}

// detectHostIP returns the first non-loopback IPv4 address, falling back to
// loopback when the host has none.
func detectHostIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
