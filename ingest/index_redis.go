package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisIndexPrefix = "ingestcore:fragment:"

// vectorField is the hash field holding the embedding bytes.
const vectorField = "vector"

// RedisSearchIndex implements SearchIndex on Redis. Every fragment is a
// hash at <prefix><fragment_key> holding the flat fields plus the vector
// as little-endian float32 bytes, the layout RediSearch vector indexes
// consume directly.
//
// Because fragment keys embed the owning document hash, tag queries on
// document_hash and key-pattern scans both resolve to a single SCAN over
// <prefix><hash>_*; no secondary index is maintained.
type RedisSearchIndex struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisSearchIndex creates a Redis-backed search index. An empty prefix
// falls back to the default namespace so multiple services can share one
// Redis instance safely.
func NewRedisSearchIndex(client redis.UniversalClient, prefix string) (*RedisSearchIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisIndexPrefix
	}
	return &RedisSearchIndex{Client: client, Prefix: prefix}, nil
}

func (s *RedisSearchIndex) storageKey(key string) string {
	return s.Prefix + key
}

func (s *RedisSearchIndex) logicalKey(storageKey string) string {
	return strings.TrimPrefix(storageKey, s.Prefix)
}

// Upsert writes each entry with a single HSET per key, pipelined. HSET on
// an existing key merges fields, so the key is deleted first to guarantee
// last-write-wins replacement of the whole entry.
func (s *RedisSearchIndex) Upsert(ctx context.Context, entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.Client.Pipeline()
	for _, entry := range entries {
		if strings.TrimSpace(entry.Key) == "" {
			return fmt.Errorf("index entry key cannot be empty")
		}
		key := s.storageKey(entry.Key)

		values := make([]any, 0, 2*(len(entry.Fields)+1))
		for k, v := range entry.Fields {
			values = append(values, k, v)
		}
		if len(entry.Vector) > 0 {
			values = append(values, vectorField, string(encodeVector(entry.Vector)))
		}

		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %d index entries: %w", len(entries), err)
	}
	return nil
}

// QueryByTag matches entries by exact field value. Queries on
// document_hash ride the deterministic key pattern; any other field falls
// back to a full scan of the namespace with client-side filtering.
func (s *RedisSearchIndex) QueryByTag(ctx context.Context, field, value string) ([]IndexEntry, error) {
	pattern := "*"
	if field == "document_hash" {
		pattern = value + "_*"
	}

	keys, err := s.ScanKeys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := s.Client.HGetAll(ctx, s.storageKey(key)).Result()
		if err != nil {
			return nil, fmt.Errorf("read index entry %s: %w", key, err)
		}
		if len(fields) == 0 {
			// key expired or deleted between scan and read
			continue
		}
		if fields[field] != value {
			continue
		}

		entry := IndexEntry{Key: key, Fields: fields}
		if raw, ok := fields[vectorField]; ok {
			delete(fields, vectorField)
			vec, err := decodeVector([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", key, err)
			}
			entry.Vector = vec
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ScanKeys enumerates logical keys matching the glob pattern via SCAN.
func (s *RedisSearchIndex) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	match := s.Prefix + pattern
	keys := make([]string, 0)
	var cursor uint64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, next, err := s.Client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan index keys %q: %w", pattern, err)
		}
		for _, k := range batch {
			keys = append(keys, s.logicalKey(k))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Delete removes keys in one pipelined DEL; missing keys are ignored.
func (s *RedisSearchIndex) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = s.storageKey(k)
	}
	if err := s.Client.Del(ctx, storageKeys...).Err(); err != nil {
		return fmt.Errorf("delete %d index entries: %w", len(keys), err)
	}
	return nil
}
