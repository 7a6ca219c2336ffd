// ABOUTME: Read side of the heartbeat store for routing and liveness decisions.
// ABOUTME: An identity without a fresh record must be treated as unavailable for dispatch.

package heartbeat

import (
	"context"
	"time"
)

// Monitor answers liveness queries against the heartbeat store. Reads are
// unrestricted: any component deciding where to dispatch may consult it.
type Monitor struct {
	store Store
}

// NewMonitor wraps a heartbeat store.
func NewMonitor(store Store) *Monitor {
	return &Monitor{store: store}
}

// Alive reports whether the identity currently has a fresh heartbeat.
func (m *Monitor) Alive(ctx context.Context, identityID string) (bool, error) {
	return m.store.Alive(ctx, identityID)
}

// LastSeen returns the identity's most recent heartbeat timestamp, if any.
func (m *Monitor) LastSeen(ctx context.Context, identityID string) (time.Time, bool, error) {
	return m.store.LastSeen(ctx, identityID)
}
