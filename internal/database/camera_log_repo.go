// internal/database/camera_log_repo.go
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sua-org/cam-scout/internal/model"
)

// CameraLogRepository handles camera event log operations
type CameraLogRepository struct {
	collection *mongo.Collection
}

func NewCameraLogRepository(db *MongoDB) *CameraLogRepository {
	return &CameraLogRepository{
		collection: db.GetCollection(CollectionCameraLogs),
	}
}

// Create inserts a new camera log
func (r *CameraLogRepository) Create(ctx context.Context, entry *model.CameraLog) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctxTimeout, entry); err != nil {
		return fmt.Errorf("failed to create camera log: %w", err)
	}
	return nil
}

// ListByIP returns the newest logs of one camera
func (r *CameraLogRepository) ListByIP(ctx context.Context, ip string, limit int) ([]model.CameraLog, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctxTimeout, bson.M{"ip": ip}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list camera logs: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var logs []model.CameraLog
	if err := cursor.All(ctxTimeout, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode camera logs: %w", err)
	}
	return logs, nil
}
