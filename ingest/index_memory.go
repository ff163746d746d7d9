package ingest

import (
	"context"
	"path"
	"sort"
	"sync"
)

// InMemorySearchIndex is a process-local SearchIndex for tests, examples,
// and single-process deployments. It mirrors the Redis implementation's
// semantics: last-write-wins per key, glob key scans, exact tag matches.
type InMemorySearchIndex struct {
	mu      sync.RWMutex
	entries map[string]IndexEntry
}

func NewInMemorySearchIndex() *InMemorySearchIndex {
	return &InMemorySearchIndex{entries: make(map[string]IndexEntry)}
}

func (s *InMemorySearchIndex) Upsert(ctx context.Context, entries []IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		fields := make(map[string]string, len(entry.Fields))
		for k, v := range entry.Fields {
			fields[k] = v
		}
		vec := make([]float32, len(entry.Vector))
		copy(vec, entry.Vector)
		s.entries[entry.Key] = IndexEntry{Key: entry.Key, Fields: fields, Vector: vec}
	}
	return nil
}

func (s *InMemorySearchIndex) QueryByTag(ctx context.Context, field, value string) ([]IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexEntry, 0)
	for _, entry := range s.entries {
		if entry.Fields[field] == value {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemorySearchIndex) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key := range s.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemorySearchIndex) Delete(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Len reports the number of indexed entries; handy in tests.
func (s *InMemorySearchIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
