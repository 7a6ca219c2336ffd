// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides workspace/identity persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		process_id TEXT NOT NULL DEFAULT '',
		host_ip TEXT NOT NULL DEFAULT '',
		hostname TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(workspace_id, name, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_identities_workspace ON identities(workspace_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateWorkspace inserts a workspace, optionally making it the default.
func (s *SQLiteStore) CreateWorkspace(ctx context.Context, name string, makeDefault bool) (*Workspace, error) {
	ws := &Workspace{
		ID:        uuid.New().String(),
		Name:      name,
		IsDefault: makeDefault,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if makeDefault {
		if _, err := tx.ExecContext(ctx, "UPDATE workspaces SET is_default = 0 WHERE is_default = 1"); err != nil {
			return nil, fmt.Errorf("clearing previous default: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO workspaces (id, name, is_default, created_at) VALUES (?, ?, ?, ?)",
		ws.ID, ws.Name, boolToInt(ws.IsDefault), ws.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting workspace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing workspace: %w", err)
	}

	s.logger.Info("workspace created", "workspace_id", ws.ID, "name", name, "default", makeDefault)
	return ws, nil
}

// DefaultWorkspace returns the current default workspace.
func (s *SQLiteStore) DefaultWorkspace(ctx context.Context) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_default, created_at FROM workspaces WHERE is_default = 1")
	return scanWorkspace(row)
}

// GetWorkspace returns a workspace by id.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_default, created_at FROM workspaces WHERE id = ?", id)
	return scanWorkspace(row)
}

func scanWorkspace(row *sql.Row) (*Workspace, error) {
	var ws Workspace
	var isDefault int
	err := row.Scan(&ws.ID, &ws.Name, &isDefault, &ws.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning workspace: %w", err)
	}
	ws.IsDefault = isDefault != 0
	return &ws, nil
}

// FindOrCreateIdentity resolves (workspaceID, name, kind) to a single
// identity, creating the record on first sight. Always refreshes connection
// metadata, marks the identity ACTIVE, and stamps lastSeenAt.
func (s *SQLiteStore) FindOrCreateIdentity(ctx context.Context, workspaceID, name, kind string, meta ConnectionMeta) (*Identity, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM identities WHERE workspace_id = ? AND name = ? AND kind = ?",
		workspaceID, name, kind,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO identities (id, name, workspace_id, kind, status, process_id, host_ip, hostname, last_seen_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, name, workspaceID, kind, StatusActive, meta.ProcessID, meta.HostIP, meta.Hostname, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting identity: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("looking up identity: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE identities
			SET status = ?, process_id = ?, host_ip = ?, hostname = ?, last_seen_at = ?
			WHERE id = ?`,
			StatusActive, meta.ProcessID, meta.HostIP, meta.Hostname, now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("refreshing identity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing identity: %w", err)
	}

	return s.GetIdentity(ctx, id)
}

// GetIdentity returns an identity by id.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, workspace_id, kind, status, process_id, host_ip, hostname, last_seen_at, created_at
		FROM identities WHERE id = ?`, id)

	ident, err := scanIdentity(row.Scan)
	if err != nil {
		return nil, err
	}
	return ident, nil
}

// TouchIdentity stamps lastSeenAt and sets the status.
func (s *SQLiteStore) TouchIdentity(ctx context.Context, id string, status IdentityStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE identities SET status = ?, last_seen_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching identity: %w", err)
	}
	return requireRow(res)
}

// MarkInactive transitions an identity to INACTIVE.
func (s *SQLiteStore) MarkInactive(ctx context.Context, id string) error {
	return s.TouchIdentity(ctx, id, StatusInactive)
}

// ListIdentities returns all identities in the workspace, newest first.
func (s *SQLiteStore) ListIdentities(ctx context.Context, workspaceID string) ([]*Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, workspace_id, kind, status, process_id, host_ip, hostname, last_seen_at, created_at
		FROM identities WHERE workspace_id = ?
		ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		ident, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, err
		}
		identities = append(identities, ident)
	}
	return identities, rows.Err()
}

func scanIdentity(scan func(dest ...any) error) (*Identity, error) {
	var ident Identity
	err := scan(
		&ident.ID, &ident.Name, &ident.WorkspaceID, &ident.Kind, &ident.Status,
		&ident.ProcessID, &ident.HostIP, &ident.Hostname, &ident.LastSeenAt, &ident.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning identity: %w", err)
	}
	return &ident, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
