package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// IndexEntry is one row of the external search index: a deterministic key,
// flat string fields, and the embedding vector.
type IndexEntry struct {
	Key    string
	Fields map[string]string
	Vector []float32
}

// SearchIndex abstracts the external vector index / search engine. The
// core assumes last-write-wins semantics per key and no implicit TTL.
//
// Keys passed in and returned are logical fragment keys; implementations
// may namespace them internally (key prefixes etc.) but must strip the
// namespace again on the way out.
type SearchIndex interface {
	// Upsert writes entries keyed by their deterministic key, replacing
	// any previous entry under the same key.
	Upsert(ctx context.Context, entries []IndexEntry) error

	// QueryByTag returns all entries whose field matches value exactly.
	// Results carry no ordering guarantee; callers sort by chunk_index.
	QueryByTag(ctx context.Context, field, value string) ([]IndexEntry, error)

	// ScanKeys enumerates keys matching a glob-style pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys; unknown keys are ignored.
	Delete(ctx context.Context, keys []string) error
}

// encodeVector serializes an embedding as little-endian float32 bytes, the
// layout vector-capable Redis search indexes expect in hash fields.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector reverses encodeVector.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector payload length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
