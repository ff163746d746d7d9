package ingest

import (
	"context"
	"sync"
	"time"
)

// DocumentTracking is the per-document record the Deduplicator uses to
// decide replace-vs-skip without re-reading every fragment. It is keyed by
// the stable DocumentID and stores the content hash currently indexed, so
// a content change can locate and delete the previous version's fragments.
// The record is written only after the fragment set for the hash has been
// fully indexed, so it is never newer than the index contents it describes.
type DocumentTracking struct {
	DocumentID         string    `json:"document_id" bson:"_id"`
	ContentHash        string    `json:"content_hash" bson:"content_hash"`
	Title              string    `json:"title" bson:"title"`
	Source             string    `json:"source" bson:"source"`
	Category           string    `json:"category" bson:"category"`
	ChunkCount         int       `json:"chunk_count" bson:"chunk_count"`
	TotalContentLength int       `json:"total_content_length" bson:"total_content_length"`
	LastUpdated        time.Time `json:"last_updated" bson:"last_updated"`
}

// TrackingStore persists DocumentTracking records keyed by document ID.
type TrackingStore interface {
	// Get returns the record for the document ID, or ErrTrackingNotFound.
	Get(ctx context.Context, documentID string) (*DocumentTracking, error)

	// Put creates or overwrites the record for rec.DocumentID.
	Put(ctx context.Context, rec DocumentTracking) error

	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, documentID string) error
}

// InMemoryTrackingStore is a process-local TrackingStore for tests and
// single-process deployments.
type InMemoryTrackingStore struct {
	mu      sync.RWMutex
	records map[string]DocumentTracking
}

func NewInMemoryTrackingStore() *InMemoryTrackingStore {
	return &InMemoryTrackingStore{records: make(map[string]DocumentTracking)}
}

func (s *InMemoryTrackingStore) Get(ctx context.Context, documentID string) (*DocumentTracking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, ErrTrackingNotFound
	}
	out := rec
	return &out, nil
}

func (s *InMemoryTrackingStore) Put(ctx context.Context, rec DocumentTracking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DocumentID] = rec
	return nil
}

func (s *InMemoryTrackingStore) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID)
	return nil
}
