package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTrackingPrefix = "ingestcore:doc_tracking:"

// RedisTrackingStore keeps tracking records as Redis hashes under
// <prefix><document_id>, colocated with the fragment index so a single
// Redis deployment serves both the write-side bookkeeping and the search
// entries.
type RedisTrackingStore struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisTrackingStore creates a Redis-backed tracking store. An empty
// prefix falls back to the default namespace.
func NewRedisTrackingStore(client redis.UniversalClient, prefix string) (*RedisTrackingStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisTrackingPrefix
	}
	return &RedisTrackingStore{Client: client, Prefix: prefix}, nil
}

func (s *RedisTrackingStore) key(documentID string) string {
	return s.Prefix + documentID
}

func (s *RedisTrackingStore) Get(ctx context.Context, documentID string) (*DocumentTracking, error) {
	fields, err := s.Client.HGetAll(ctx, s.key(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read tracking record %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return nil, ErrTrackingNotFound
	}

	chunkCount, err := strconv.Atoi(fields["chunk_count"])
	if err != nil {
		return nil, fmt.Errorf("tracking record %s: parse chunk_count %q: %w", documentID, fields["chunk_count"], err)
	}
	totalLen, err := strconv.Atoi(fields["total_content_length"])
	if err != nil {
		return nil, fmt.Errorf("tracking record %s: parse total_content_length %q: %w", documentID, fields["total_content_length"], err)
	}
	lastUpdated, err := time.Parse(time.RFC3339, fields["last_updated"])
	if err != nil {
		return nil, fmt.Errorf("tracking record %s: parse last_updated %q: %w", documentID, fields["last_updated"], err)
	}

	return &DocumentTracking{
		DocumentID:         documentID,
		ContentHash:        fields["content_hash"],
		Title:              fields["title"],
		Source:             fields["source"],
		Category:           fields["category"],
		ChunkCount:         chunkCount,
		TotalContentLength: totalLen,
		LastUpdated:        lastUpdated,
	}, nil
}

func (s *RedisTrackingStore) Put(ctx context.Context, rec DocumentTracking) error {
	if strings.TrimSpace(rec.DocumentID) == "" {
		return fmt.Errorf("tracking record document id cannot be empty")
	}
	err := s.Client.HSet(ctx, s.key(rec.DocumentID),
		"content_hash", rec.ContentHash,
		"title", rec.Title,
		"source", rec.Source,
		"category", rec.Category,
		"chunk_count", strconv.Itoa(rec.ChunkCount),
		"total_content_length", strconv.Itoa(rec.TotalContentLength),
		"last_updated", rec.LastUpdated.UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("write tracking record %s: %w", rec.DocumentID, err)
	}
	return nil
}

func (s *RedisTrackingStore) Delete(ctx context.Context, documentID string) error {
	if err := s.Client.Del(ctx, s.key(documentID)).Err(); err != nil {
		return fmt.Errorf("delete tracking record %s: %w", documentID, err)
	}
	return nil
}
