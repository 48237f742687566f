// internal/database/indexes.go
package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cameraLogRetention: logs de câmera expiram sozinhos via índice TTL.
const cameraLogRetention = 30 * 24 * time.Hour

// CreateIndexes creates the indexes used by the repositories
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionCameraLogs)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "ip", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_ip_created_at"),
		},
		{
			Keys: bson.D{
				{Key: "event", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_event_created_at"),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetName("idx_created_at_ttl").
				SetExpireAfterSeconds(int32(cameraLogRetention.Seconds())),
		},
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return err
	}

	slog.Info("Created camera_logs indexes")
	return nil
}
