package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	db := store.SQLiteDB()

	// Fine-tune uploads and workspace provisioning write to separate tables.
	for _, table := range []string{"test_datasets", "test_workspaces"} {
		if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT)`, table)); err != nil {
			t.Fatalf("failed to create %s table: %v", table, err)
		}
	}

	const goroutines = 10
	const insertsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			table := "test_datasets"
			if id%2 == 1 {
				table = "test_workspaces"
			}
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, table),
					fmt.Sprintf("%d-%d", id, j), "payload")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d into %s: %w", id, j, table, err)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	expectedPerTable := (goroutines / 2) * insertsPerGoroutine
	for _, table := range []string{"test_datasets", "test_workspaces"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("failed to count %s rows: %v", table, err)
		}
		if count != expectedPerTable {
			t.Errorf("%s: got %d rows, want %d", table, count, expectedPerTable)
		}
	}
}

func TestSQLiteCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "sirchat.db")
	store, err := NewSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	if store.Type() != TypeSQLite {
		t.Errorf("Type() = %q, want %q", store.Type(), TypeSQLite)
	}
	if store.PostgreSQLPool() != nil || store.MongoDatabase() != nil {
		t.Error("sqlite storage should not expose other backends")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSQLiteForeignKeysEnabled(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "fk.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	var enabled int
	if err := store.SQLiteDB().QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{Type: "cassandra"}); err == nil {
		t.Error("expected error for unknown storage type")
	}
	if _, err := New(ctx, Config{Type: TypePostgreSQL}); err == nil {
		t.Error("expected error for missing PostgreSQL URL")
	}
	if _, err := New(ctx, Config{Type: TypeMongoDB}); err == nil {
		t.Error("expected error for missing MongoDB URL")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Type != TypeSQLite {
		t.Errorf("Type = %q, want %q", cfg.Type, TypeSQLite)
	}
	if cfg.SQLite.Path != "data/sirchat.db" {
		t.Errorf("SQLite.Path = %q", cfg.SQLite.Path)
	}
	if cfg.PostgreSQL.MaxConns != 10 {
		t.Errorf("PostgreSQL.MaxConns = %d, want 10", cfg.PostgreSQL.MaxConns)
	}
	if cfg.MongoDB.Database != "sirchat" {
		t.Errorf("MongoDB.Database = %q", cfg.MongoDB.Database)
	}
}
