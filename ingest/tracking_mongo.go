package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoTrackingStore implements TrackingStore backed by a MongoDB
// collection, one document per document ID (_id). Useful when tracking
// metadata should outlive the search index deployment. The caller owns
// the mongo.Client lifecycle.
type MongoTrackingStore struct {
	Collection *mongo.Collection
}

// NewMongoTrackingStore creates a MongoTrackingStore from a *mongo.Collection.
func NewMongoTrackingStore(collection *mongo.Collection) *MongoTrackingStore {
	return &MongoTrackingStore{Collection: collection}
}

func (s *MongoTrackingStore) Get(ctx context.Context, documentID string) (*DocumentTracking, error) {
	var rec DocumentTracking
	err := s.Collection.FindOne(ctx, bson.M{"_id": documentID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTrackingNotFound
		}
		return nil, fmt.Errorf("read tracking record %s: %w", documentID, err)
	}
	return &rec, nil
}

func (s *MongoTrackingStore) Put(ctx context.Context, rec DocumentTracking) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("tracking record document id cannot be empty")
	}
	_, err := s.Collection.ReplaceOne(ctx,
		bson.M{"_id": rec.DocumentID},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write tracking record %s: %w", rec.DocumentID, err)
	}
	return nil
}

func (s *MongoTrackingStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.Collection.DeleteOne(ctx, bson.M{"_id": documentID})
	if err != nil {
		return fmt.Errorf("delete tracking record %s: %w", documentID, err)
	}
	return nil
}
