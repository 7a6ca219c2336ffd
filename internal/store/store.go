// ABOUTME: Store interface and record types for toolweave persistence.
// ABOUTME: Defines Workspace and Identity records and the operations the protocol layer needs.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// IdentityStatus is the lifecycle state of a logical endpoint.
type IdentityStatus string

const (
	StatusPending  IdentityStatus = "PENDING"
	StatusActive   IdentityStatus = "ACTIVE"
	StatusInactive IdentityStatus = "INACTIVE"
)

// Workspace is the tenancy boundary. Every identity and every routable
// tool call is scoped to exactly one workspace.
type Workspace struct {
	ID        string
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

// ConnectionMeta identifies the physical process that owns a logical
// identity. Immutable once a connection's handshake completes; re-sent on
// every reconnect.
type ConnectionMeta struct {
	ProcessID string
	HostIP    string
	Hostname  string
}

// Identity is a persistent record representing a logical endpoint (runtime
// or toolset). A physical connection is bound to exactly one identity for
// the lifetime of the connection; the binding is re-established on every
// reconnect, possibly under a new workspace.
type Identity struct {
	ID          string
	Name        string
	WorkspaceID string
	Kind        string
	Status      IdentityStatus
	ProcessID   string
	HostIP      string
	Hostname    string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

// Store is the persistence contract for workspaces and identities.
type Store interface {
	// CreateWorkspace inserts a workspace. When makeDefault is true, the
	// new workspace atomically replaces the previous default.
	CreateWorkspace(ctx context.Context, name string, makeDefault bool) (*Workspace, error)

	// DefaultWorkspace returns the current default workspace or ErrNotFound.
	DefaultWorkspace(ctx context.Context) (*Workspace, error)

	// GetWorkspace returns a workspace by id or ErrNotFound.
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)

	// FindOrCreateIdentity resolves the identity for (workspaceID, name,
	// kind), creating it when absent. Resolution is idempotent: duplicate
	// connects yield the same identity. The record is marked ACTIVE, its
	// connection metadata refreshed, and lastSeenAt stamped.
	FindOrCreateIdentity(ctx context.Context, workspaceID, name, kind string, meta ConnectionMeta) (*Identity, error)

	// GetIdentity returns an identity by id or ErrNotFound.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// TouchIdentity stamps lastSeenAt and sets the status.
	TouchIdentity(ctx context.Context, id string, status IdentityStatus) error

	// MarkInactive transitions an identity to INACTIVE.
	MarkInactive(ctx context.Context, id string) error

	// ListIdentities returns all identities in a workspace, newest first.
	ListIdentities(ctx context.Context, workspaceID string) ([]*Identity, error)

	// Close releases the underlying database handle.
	Close() error
}
