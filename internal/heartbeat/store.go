// ABOUTME: Heartbeat store contract: TTL'd liveness records whose absence signals staleness.
// ABOUTME: Includes the generation counter the reset coordinator bumps for missed-broadcast recovery.

package heartbeat

import (
	"context"
	"time"
)

// Store holds ephemeral heartbeat records keyed by identity id. A record's
// absence after its TTL is the liveness signal; there is no explicit stale
// flag that could drift from the TTL clock.
//
// Writes to an identity's record are owned exclusively by that identity's
// connection. ClearAll is the single exception, reserved for the reset
// coordinator.
type Store interface {
	// Beat creates or refreshes the record for identityID with the given TTL.
	Beat(ctx context.Context, identityID string, ttl time.Duration) error

	// LastSeen returns the record's timestamp. ok is false when the record
	// is absent or expired.
	LastSeen(ctx context.Context, identityID string) (t time.Time, ok bool, err error)

	// Alive reports whether a fresh record exists for identityID.
	Alive(ctx context.Context, identityID string) (bool, error)

	// ClearAll deletes every heartbeat record. Reset-time use only.
	ClearAll(ctx context.Context) error

	// Generation returns the current reset generation counter.
	Generation(ctx context.Context) (int64, error)

	// BumpGeneration increments and returns the reset generation counter.
	// A connection whose cached generation no longer matches missed a reset
	// broadcast and must re-run the connect handshake.
	BumpGeneration(ctx context.Context) (int64, error)
}
