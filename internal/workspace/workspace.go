// Package workspace resolves a user's home workspace.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sirchat/internal/auth"
	"sirchat/internal/storage"
)

// ErrNotFound is returned when the user has no home workspace.
var ErrNotFound = errors.New("home workspace not found")

// Backend names accepted by New.
const (
	BackendSupabase   = "supabase"
	BackendPostgreSQL = "postgresql"
	BackendSQLite     = "sqlite"
)

// Lookup finds the id of the user's home workspace.
type Lookup interface {
	HomeWorkspaceID(ctx context.Context, sess *auth.Session) (string, error)
}

// Config selects a lookup backend.
type Config struct {
	Backend string
	// Storage backs the postgresql and sqlite lookups.
	Storage storage.Storage
	// SupabaseURL and SupabaseAnonKey back the supabase lookup.
	SupabaseURL     string
	SupabaseAnonKey string
	HTTPClient      *http.Client
}

// New builds the Lookup described by cfg.
func New(ctx context.Context, cfg Config) (Lookup, error) {
	switch cfg.Backend {
	case BackendSupabase:
		return NewSupabaseLookup(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.HTTPClient)
	case BackendPostgreSQL:
		if cfg.Storage == nil || cfg.Storage.PostgreSQLPool() == nil {
			return nil, fmt.Errorf("workspace backend %q requires postgresql storage", cfg.Backend)
		}
		return NewPostgresLookup(cfg.Storage.PostgreSQLPool()), nil
	case BackendSQLite:
		if cfg.Storage == nil || cfg.Storage.SQLiteDB() == nil {
			return nil, fmt.Errorf("workspace backend %q requires sqlite storage", cfg.Backend)
		}
		l := NewSQLiteLookup(cfg.Storage.SQLiteDB())
		if err := l.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown workspace backend: %s", cfg.Backend)
	}
}
