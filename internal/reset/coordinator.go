// ABOUTME: Reset coordinator: recreates the default workspace and instructs the fleet to rebind.
// ABOUTME: Broadcast is best-effort; the heartbeat generation backstops any connection that missed it.

package reset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/store"
	"github.com/toolweave/toolweave/internal/subject"
)

// DefaultWorkspaceName is the name given to each freshly created default
// workspace.
const DefaultWorkspaceName = "default"

// Coordinator drives an administrative reset across the fleet.
type Coordinator struct {
	store      store.Store
	heartbeats heartbeat.Store
	bus        bus.Bus
	router     subject.Router
	logger     *slog.Logger
}

// CoordinatorParams configures a Coordinator.
type CoordinatorParams struct {
	Store      store.Store
	Heartbeats heartbeat.Store
	Bus        bus.Bus
	Router     subject.Router
	Logger     *slog.Logger
}

// NewCoordinator creates a reset coordinator.
func NewCoordinator(p CoordinatorParams) *Coordinator {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "reset")
	}
	return &Coordinator{
		store:      p.Store,
		heartbeats: p.Heartbeats,
		bus:        p.Bus,
		router:     p.Router,
		logger:     logger,
	}
}

// Reset recreates the default workspace, bumps the heartbeat generation,
// clears every heartbeat record, and broadcasts the reconnect instruction.
// There is no per-runtime acknowledgment: convergence shows up as new
// heartbeat records, and stragglers recover through the generation check
// within one heartbeat interval. There is no way to un-reset.
func (c *Coordinator) Reset(ctx context.Context, reason string) (*store.Workspace, error) {
	ws, err := c.store.CreateWorkspace(ctx, DefaultWorkspaceName, true)
	if err != nil {
		return nil, fmt.Errorf("recreating default workspace: %w", err)
	}

	gen, err := c.heartbeats.BumpGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("bumping reset generation: %w", err)
	}

	// Stale liveness entries must not mask missed reconnections.
	if err := c.heartbeats.ClearAll(ctx); err != nil {
		return nil, fmt.Errorf("clearing heartbeat records: %w", err)
	}

	msg := &protocol.ReconnectRuntimes{Reason: reason}
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	// Best-effort broadcast: zero subscribers is not an error.
	if err := c.bus.Publish(msg.Subject(c.router), data); err != nil {
		c.logger.Warn("reconnect broadcast failed, relying on heartbeat recovery", "error", err)
	}

	c.logger.Info("reset complete",
		"workspace_id", ws.ID,
		"generation", gen,
		"reason", reason,
	)
	return ws, nil
}
