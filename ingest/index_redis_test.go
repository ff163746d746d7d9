package ingest

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisIndex(t *testing.T) (*RedisSearchIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	index, err := NewRedisSearchIndex(client, "")
	require.NoError(t, err)
	return index, mr
}

func testEntries(hash string, n int) []IndexEntry {
	entries := make([]IndexEntry, n)
	for i := range entries {
		frag := Fragment{
			Key:          FragmentKey(hash, i),
			DocumentHash: hash,
			ChunkIndex:   i,
			Title:        fragmentTitle("Redis Doc", i),
			Content:      "fragment content",
			Category:     CategoryOSS,
			DocType:      "guide",
		}
		entries[i] = IndexEntry{
			Key:    frag.Key,
			Fields: frag.indexFields(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)),
			Vector: []float32{float32(i), 0.5, -1.25},
		}
	}
	return entries
}

func TestRedisSearchIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert and scan by document pattern", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		require.NoError(t, index.Upsert(ctx, testEntries("aaaa000011112222", 3)))
		require.NoError(t, index.Upsert(ctx, testEntries("bbbb000011112222", 2)))

		keys, err := index.ScanKeys(ctx, "aaaa000011112222_*")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			"aaaa000011112222_0", "aaaa000011112222_1", "aaaa000011112222_2",
		}, keys)
	})

	t.Run("query by document hash returns full entries", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		hash := "cccc000011112222"
		require.NoError(t, index.Upsert(ctx, testEntries(hash, 2)))

		entries, err := index.QueryByTag(ctx, "document_hash", hash)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		byKey := make(map[string]IndexEntry, len(entries))
		for _, e := range entries {
			byKey[e.Key] = e
		}
		first := byKey[FragmentKey(hash, 0)]
		assert.Equal(t, hash, first.Fields["document_hash"])
		assert.Equal(t, "0", first.Fields["chunk_index"])
		assert.Equal(t, "Redis Doc", first.Fields["title"])
		assert.Equal(t, []float32{0, 0.5, -1.25}, first.Vector, "vector bytes must round-trip")
		assert.NotContains(t, first.Fields, vectorField, "raw vector bytes stay out of the field map")
	})

	t.Run("query by other fields scans and filters", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		require.NoError(t, index.Upsert(ctx, testEntries("dddd000011112222", 2)))

		entries, err := index.QueryByTag(ctx, "category", CategoryOSS)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = index.QueryByTag(ctx, "category", CategoryEnterprise)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("upsert replaces the whole entry", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		hash := "eeee000011112222"
		require.NoError(t, index.Upsert(ctx, testEntries(hash, 1)))

		replacement := IndexEntry{
			Key:    FragmentKey(hash, 0),
			Fields: map[string]string{"document_hash": hash, "chunk_index": "0", "content": "rewritten"},
		}
		require.NoError(t, index.Upsert(ctx, []IndexEntry{replacement}))

		entries, err := index.QueryByTag(ctx, "document_hash", hash)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "rewritten", entries[0].Fields["content"])
		assert.NotContains(t, entries[0].Fields, "title", "old fields must not survive the replace")
	})

	t.Run("delete removes only the given keys", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		hash := "ffff000011112222"
		require.NoError(t, index.Upsert(ctx, testEntries(hash, 3)))

		require.NoError(t, index.Delete(ctx, []string{FragmentKey(hash, 1)}))

		keys, err := index.ScanKeys(ctx, hash+"_*")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{FragmentKey(hash, 0), FragmentKey(hash, 2)}, keys)

		assert.NoError(t, index.Delete(ctx, []string{"missing_0"}), "unknown keys are ignored")
	})

	t.Run("pipeline works against the redis index", func(t *testing.T) {
		index, _ := newTestRedisIndex(t)
		h := NewTestHarness(t).WithIndex(index).Setup()

		ctx := context.Background()
		h.SaveBatch(ctx, "2025-01-15", testBatchDocs())

		manifest, err := h.Pipeline().IngestBatch(ctx, "2025-01-15")
		require.NoError(t, err)
		assert.True(t, manifest.Success)
		assert.Greater(t, manifest.ChunksIndexed, 0)

		hash := testBatchDocs()[0].Hash()
		out, err := h.Reader().GetAllFragments(ctx, hash, true)
		require.NoError(t, err)
		assert.True(t, out.Found)
		require.NotNil(t, out.Tracking)
		assert.Equal(t, len(out.Fragments), out.Tracking.ChunkCount)
	})
}
