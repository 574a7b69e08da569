package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sirchat/internal/auth"
)

const (
	homeWorkspaceQuerySQLite = `SELECT id FROM workspaces WHERE user_id = ? AND is_home = 1 LIMIT 1`

	sqliteSchema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	is_home    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_workspaces_user_home ON workspaces(user_id, is_home);`
)

// SQLiteLookup serves local development against a SQLite copy of the
// workspaces table.
type SQLiteLookup struct {
	db *sql.DB
}

func NewSQLiteLookup(db *sql.DB) *SQLiteLookup {
	return &SQLiteLookup{db: db}
}

// EnsureSchema creates the workspaces table when missing.
func (l *SQLiteLookup) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create workspaces table: %w", err)
	}
	return nil
}

func (l *SQLiteLookup) HomeWorkspaceID(ctx context.Context, sess *auth.Session) (string, error) {
	var id string
	err := l.db.QueryRowContext(ctx, homeWorkspaceQuerySQLite, sess.UserID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query home workspace: %w", err)
	}
	return id, nil
}
