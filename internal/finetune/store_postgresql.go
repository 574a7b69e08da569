package finetune

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore stores training data in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the training_data table and index if needed.
// An existing table, such as the one a Supabase project already carries with
// uuid ids and a timestamptz created_at, is used as is once its columns check out.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS training_data (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			messages JSONB NOT NULL,
			model_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create training_data table: %w", err)
	}
	if err := checkPostgreSQLColumns(ctx, pool); err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_training_data_user_created ON training_data(user_id, created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create training_data user index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// postgresColumnTypes lists the accepted data types per column. Ids may be
// text or uuid; created_at must be a timestamp.
var postgresColumnTypes = map[string][]string{
	"id":         {"text", "uuid", "character varying"},
	"user_id":    {"text", "uuid", "character varying"},
	"messages":   {"jsonb", "json"},
	"model_id":   {"text", "character varying"},
	"status":     {"text", "character varying"},
	"created_at": {"timestamp with time zone", "timestamp without time zone"},
}

func checkPostgreSQLColumns(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'training_data'
	`)
	if err != nil {
		return fmt.Errorf("inspect training_data columns: %w", err)
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return fmt.Errorf("scan training_data column: %w", err)
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate training_data columns: %w", err)
	}

	for column, accepted := range postgresColumnTypes {
		dataType, ok := found[column]
		if !ok {
			return fmt.Errorf("training_data is missing column %s", column)
		}
		if !slices.Contains(accepted, dataType) {
			return fmt.Errorf("training_data.%s has type %s, expected one of %s", column, dataType, strings.Join(accepted, ", "))
		}
	}
	return nil
}

// Create inserts a new row. Parameters stay untyped so the server converts
// them to whatever the column holds, text or uuid.
func (s *PostgreSQLStore) Create(ctx context.Context, td *TrainingData) error {
	if err := validateRow(td); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO training_data (id, user_id, messages, model_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, td.ID, td.UserID, string(td.Messages), td.ModelID, td.Status, td.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert training data: %w", err)
	}
	return nil
}

// ListByUser returns rows ordered by created_at desc, id desc.
func (s *PostgreSQLStore) ListByUser(ctx context.Context, userID string) ([]*TrainingData, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id::text, messages::text, model_id, status, created_at
		FROM training_data
		WHERE user_id::text = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list training data: %w", err)
	}
	defer rows.Close()

	items := make([]*TrainingData, 0)
	for rows.Next() {
		var (
			td       TrainingData
			messages string
		)
		if err := rows.Scan(&td.ID, &td.UserID, &messages, &td.ModelID, &td.Status, &td.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan training data row: %w", err)
		}
		td.Messages = []byte(messages)
		td.CreatedAt = td.CreatedAt.UTC()
		items = append(items, &td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training data rows: %w", err)
	}
	return items, nil
}

// Delete removes a row owned by userID.
func (s *PostgreSQLStore) Delete(ctx context.Context, userID, id string) error {
	cmd, err := s.pool.Exec(ctx, "DELETE FROM training_data WHERE id::text = $1 AND user_id::text = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete training data: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
