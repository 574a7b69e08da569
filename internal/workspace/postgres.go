package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sirchat/internal/auth"
)

const homeWorkspaceQueryPostgres = `SELECT id FROM workspaces WHERE user_id = $1 AND is_home = true LIMIT 1`

// PostgresLookup reads the workspaces table directly.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

// NewPostgresLookup wraps an open pool.
func NewPostgresLookup(pool *pgxpool.Pool) *PostgresLookup {
	return &PostgresLookup{pool: pool}
}

func (l *PostgresLookup) HomeWorkspaceID(ctx context.Context, sess *auth.Session) (string, error) {
	var id string
	err := l.pool.QueryRow(ctx, homeWorkspaceQueryPostgres, sess.UserID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query home workspace: %w", err)
	}
	return id, nil
}
