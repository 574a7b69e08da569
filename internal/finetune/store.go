// Package finetune persists training conversations submitted for fine-tuning.
package finetune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested training data does not exist for the user.
var ErrNotFound = errors.New("training data not found")

// StatusPending is the status of every new submission. No job consumes it yet.
const StatusPending = "pending"

// TrainingData is one submitted conversation.
type TrainingData struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Messages  json.RawMessage `json:"messages"`
	ModelID   string          `json:"model_id"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewTrainingData builds a pending row with a fresh id.
func NewTrainingData(userID string, messages json.RawMessage, modelID string) *TrainingData {
	return &TrainingData{
		ID:        uuid.NewString(),
		UserID:    userID,
		Messages:  messages,
		ModelID:   modelID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Store defines persistence for training data. Every read and delete is
// scoped to the owning user.
type Store interface {
	Create(ctx context.Context, td *TrainingData) error
	// ListByUser returns the user's rows, newest first.
	ListByUser(ctx context.Context, userID string) ([]*TrainingData, error)
	// Delete removes the row when it belongs to userID.
	Delete(ctx context.Context, userID, id string) error
	Close() error
}

func validateRow(td *TrainingData) error {
	if td == nil {
		return fmt.Errorf("training data is nil")
	}
	if td.ID == "" || td.UserID == "" {
		return fmt.Errorf("training data requires id and user_id")
	}
	if !json.Valid(td.Messages) {
		return fmt.Errorf("training data messages must be valid JSON")
	}
	return nil
}

// toMillis and fromMillis store created_at as epoch milliseconds in SQLite and MongoDB.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
