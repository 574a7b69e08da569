package finetune

import (
	"context"
	"errors"
	"fmt"

	"sirchat/config"
	"sirchat/internal/storage"
)

// Result holds the initialized store and the storage it owns, if any.
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases resources held by the store.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens storage from app configuration and creates the store on it.
// The returned Result owns the storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	st, err := storage.New(ctx, StorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store, err := createStore(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Result{Store: store, Storage: st}, nil
}

// NewWithSharedStorage creates a store on a connection owned by the caller.
func NewWithSharedStorage(ctx context.Context, shared storage.Storage) (*Result, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared storage is required")
	}
	store, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &Result{Store: store}, nil
}

// StorageConfig maps app configuration onto storage settings, filling defaults.
func StorageConfig(cfg *config.Config) storage.Config {
	defaults := storage.DefaultConfig()
	storageCfg := storage.Config{
		Type: cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = defaults.Type
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = defaults.SQLite.Path
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = defaults.MongoDB.Database
	}
	return storageCfg
}

func createStore(ctx context.Context, st storage.Storage) (Store, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB())
	case storage.TypePostgreSQL:
		pool := st.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		return NewPostgreSQLStore(ctx, pool)
	case storage.TypeMongoDB:
		db := st.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		return NewMongoDBStore(db)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", st.Type())
	}
}
