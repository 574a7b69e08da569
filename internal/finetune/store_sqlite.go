package finetune

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteStore stores training data in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the training_data table and index if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS training_data (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			messages TEXT NOT NULL,
			model_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create training_data table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_training_data_user_created ON training_data(user_id, created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create training_data user index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new row.
func (s *SQLiteStore) Create(ctx context.Context, td *TrainingData) error {
	if err := validateRow(td); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_data (id, user_id, messages, model_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, td.ID, td.UserID, string(td.Messages), td.ModelID, td.Status, toMillis(td.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert training data: %w", err)
	}
	return nil
}

// ListByUser returns rows ordered by created_at desc, id desc.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*TrainingData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, messages, model_id, status, created_at
		FROM training_data
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list training data: %w", err)
	}
	defer rows.Close()

	items := make([]*TrainingData, 0)
	for rows.Next() {
		var (
			td        TrainingData
			messages  string
			createdAt int64
		)
		if err := rows.Scan(&td.ID, &td.UserID, &messages, &td.ModelID, &td.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan training data row: %w", err)
		}
		td.Messages = []byte(messages)
		td.CreatedAt = fromMillis(createdAt)
		items = append(items, &td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training data rows: %w", err)
	}
	return items, nil
}

// Delete removes a row owned by userID.
func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM training_data WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete training data: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; DB lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
