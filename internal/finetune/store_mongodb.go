package finetune

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoTrainingDocument struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	Messages  string `bson:"messages"`
	ModelID   string `bson:"model_id"`
	Status    string `bson:"status"`
	CreatedAt int64  `bson:"created_at"`
}

// MongoDBStore stores training data in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("training_data")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	index := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("create training_data indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Create inserts a new row.
func (s *MongoDBStore) Create(ctx context.Context, td *TrainingData) error {
	if err := validateRow(td); err != nil {
		return err
	}
	doc := mongoTrainingDocument{
		ID:        td.ID,
		UserID:    td.UserID,
		Messages:  string(td.Messages),
		ModelID:   td.ModelID,
		Status:    td.Status,
		CreatedAt: toMillis(td.CreatedAt),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert training data: %w", err)
	}
	return nil
}

// ListByUser returns rows ordered by created_at desc, id desc.
func (s *MongoDBStore) ListByUser(ctx context.Context, userID string) ([]*TrainingData, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list training data: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*TrainingData, 0)
	for cursor.Next(ctx) {
		var doc mongoTrainingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode training data document: %w", err)
		}
		items = append(items, &TrainingData{
			ID:        doc.ID,
			UserID:    doc.UserID,
			Messages:  []byte(doc.Messages),
			ModelID:   doc.ModelID,
			Status:    doc.Status,
			CreatedAt: fromMillis(doc.CreatedAt),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate training data cursor: %w", err)
	}
	return items, nil
}

// Delete removes a row owned by userID.
func (s *MongoDBStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete training data: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; Mongo client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
