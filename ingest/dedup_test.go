package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFragments(t *testing.T, title, content string) []Fragment {
	t.Helper()
	doc := Document{Title: title, Content: content, SourceURL: "https://example.com/" + sanitizeTitle(title), Category: CategoryOSS, DocType: "guide"}
	result, err := SlidingChunker{ChunkSize: 120, Overlap: 20, MinChunkSize: 10}.Chunk(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, result.Fragments)
	return result.Fragments
}

func TestDeduplicatorReplaceDocumentChunks(t *testing.T) {
	ctx := context.Background()

	newDedup := func(t *testing.T) (*Deduplicator, *InMemorySearchIndex, *InMemoryTrackingStore, Embedder) {
		index := NewInMemorySearchIndex()
		tracking := NewInMemoryTrackingStore()
		embedder, err := NewLocalEmbedder(64)
		require.NoError(t, err)
		return NewDeduplicator(index, tracking), index, tracking, embedder
	}

	t.Run("first ingest indexes every fragment and writes tracking", func(t *testing.T) {
		dedup, index, tracking, embedder := newDedup(t)
		fragments := testFragments(t, "First Doc", "Redis keeps data in memory. Persistence is optional but recommended. Replication copies data to replicas for availability and read scaling across nodes.")

		n, err := dedup.ReplaceDocumentChunks(ctx, fragments, embedder)
		require.NoError(t, err)
		assert.Equal(t, len(fragments), n)
		assert.Equal(t, len(fragments), index.Len())

		hash := fragments[0].DocumentHash
		rec, err := tracking.Get(ctx, fragments[0].DocumentID)
		require.NoError(t, err)
		assert.Equal(t, fragments[0].DocumentID, rec.DocumentID)
		assert.Equal(t, hash, rec.ContentHash)
		assert.Equal(t, len(fragments), rec.ChunkCount)
		assert.Equal(t, "First Doc", rec.Title)

		keys, err := dedup.FindExistingFragmentKeys(ctx, hash)
		require.NoError(t, err)
		assert.Len(t, keys, len(fragments))
		for i, key := range keys {
			assert.Equal(t, FragmentKey(hash, i), key)
		}
	})

	t.Run("unchanged document is skipped", func(t *testing.T) {
		dedup, index, _, embedder := newDedup(t)
		fragments := testFragments(t, "Stable Doc", "Content that does not change between ingestion runs stays indexed exactly once.")

		n, err := dedup.ReplaceDocumentChunks(ctx, fragments, embedder)
		require.NoError(t, err)
		require.Greater(t, n, 0)
		before := index.Len()

		again := testFragments(t, "Stable Doc", "Content that does not change between ingestion runs stays indexed exactly once.")
		n, err = dedup.ReplaceDocumentChunks(ctx, again, embedder)
		require.NoError(t, err)
		assert.Zero(t, n, "unchanged document must be a no-op")
		assert.Equal(t, before, index.Len())
	})

	t.Run("replace clears stale fragments under the same hash", func(t *testing.T) {
		dedup, index, _, embedder := newDedup(t)
		fragments := testFragments(t, "Shrinking Doc", "A long first version of the document. It spans several windows of the small chunker used in this test, producing multiple fragments to replace.")
		hash := fragments[0].DocumentHash

		// simulate a previous, larger fragment set left by a partial write
		stale := []IndexEntry{
			{Key: FragmentKey(hash, 7), Fields: map[string]string{"document_hash": hash, "chunk_index": "7", "content": "stale"}},
			{Key: FragmentKey(hash, 8), Fields: map[string]string{"document_hash": hash, "chunk_index": "8", "content": "stale"}},
		}
		require.NoError(t, index.Upsert(ctx, stale))

		n, err := dedup.ReplaceDocumentChunks(ctx, fragments, embedder)
		require.NoError(t, err)
		assert.Equal(t, len(fragments), n)

		keys, err := index.ScanKeys(ctx, hash+"_*")
		require.NoError(t, err)
		assert.Len(t, keys, len(fragments), "stale keys must be gone")
		assert.NotContains(t, keys, FragmentKey(hash, 7))
		assert.NotContains(t, keys, FragmentKey(hash, 8))
	})

	t.Run("changed content gets a fresh fragment set", func(t *testing.T) {
		dedup, index, tracking, embedder := newDedup(t)
		v1 := testFragments(t, "Evolving Doc", "Original content describing the failover procedure in its first revision with some detail.")
		_, err := dedup.ReplaceDocumentChunks(ctx, v1, embedder)
		require.NoError(t, err)

		v2 := testFragments(t, "Evolving Doc", "Rewritten content describing the failover procedure with corrections and extra steps.")
		require.NotEqual(t, v1[0].DocumentHash, v2[0].DocumentHash)
		require.Equal(t, v1[0].DocumentID, v2[0].DocumentID, "same title and source keep the same identity")

		n, err := dedup.ReplaceDocumentChunks(ctx, v2, embedder)
		require.NoError(t, err)
		assert.Equal(t, len(v2), n)

		oldKeys, err := index.ScanKeys(ctx, v1[0].DocumentHash+"_*")
		require.NoError(t, err)
		assert.Empty(t, oldKeys, "previous version's fragments must be deleted")

		newKeys, err := index.ScanKeys(ctx, v2[0].DocumentHash+"_*")
		require.NoError(t, err)
		assert.Len(t, newKeys, len(v2))

		rec, err := tracking.Get(ctx, v2[0].DocumentID)
		require.NoError(t, err)
		assert.Equal(t, v2[0].DocumentHash, rec.ContentHash, "record must track the new content hash")
	})

	t.Run("multi-fragment version shrinks to one without orphans", func(t *testing.T) {
		dedup, index, _, embedder := newDedup(t)
		long := testFragments(t, "Memory Guide",
			"Track used_memory against maxmemory at all times. Eviction starts once the limit is reached. "+
				"Review the eviction policy per workload. Keyspace notifications can report evicted keys. "+
				"Fragmentation inflates resident memory beyond the dataset size on some allocators.")
		require.Greater(t, len(long), 2)
		_, err := dedup.ReplaceDocumentChunks(ctx, long, embedder)
		require.NoError(t, err)

		short := testFragments(t, "Memory Guide", "Track used_memory against maxmemory.")
		require.Len(t, short, 1)

		n, err := dedup.ReplaceDocumentChunks(ctx, short, embedder)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		oldKeys, err := index.ScanKeys(ctx, long[0].DocumentHash+"_*")
		require.NoError(t, err)
		assert.Empty(t, oldKeys, "every old fragment must be gone, not just overwritten indexes")
		assert.Equal(t, 1, index.Len())
	})

	t.Run("mixed hash batch is rejected", func(t *testing.T) {
		dedup, _, _, embedder := newDedup(t)
		a := testFragments(t, "Doc A", "Some content for document A.")
		b := testFragments(t, "Doc B", "Different content for document B.")

		_, err := dedup.ReplaceDocumentChunks(ctx, append(a, b...), embedder)
		assert.ErrorIs(t, err, ErrMixedFragmentBatch)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		dedup, _, _, embedder := newDedup(t)
		_, err := dedup.ReplaceDocumentChunks(ctx, nil, embedder)
		assert.ErrorIs(t, err, ErrEmptyFragmentBatch)
	})

	t.Run("embed failure leaves tracking untouched", func(t *testing.T) {
		dedup, _, tracking, _ := newDedup(t)
		fragments := testFragments(t, "Doomed Doc", "Content whose embedding will fail in this test run.")

		_, err := dedup.ReplaceDocumentChunks(ctx, fragments, failingEmbedder{})
		require.Error(t, err)

		_, err = tracking.Get(ctx, fragments[0].DocumentID)
		assert.ErrorIs(t, err, ErrTrackingNotFound, "a failed replace must not mark the document ingested")
	})
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}

func TestShouldReplace(t *testing.T) {
	ctx := context.Background()
	tracking := NewInMemoryTrackingStore()
	dedup := NewDeduplicator(NewInMemorySearchIndex(), tracking)

	replace, err := dedup.ShouldReplace(ctx, "doc0000000000000", "aaaa111122223333")
	require.NoError(t, err)
	assert.True(t, replace, "untracked documents always ingest")

	require.NoError(t, tracking.Put(ctx, DocumentTracking{
		DocumentID:  "doc0000000000000",
		ContentHash: "aaaa111122223333",
	}))

	replace, err = dedup.ShouldReplace(ctx, "doc0000000000000", "aaaa111122223333")
	require.NoError(t, err)
	assert.False(t, replace, "matching content hash skips the replace")

	replace, err = dedup.ShouldReplace(ctx, "doc0000000000000", "bbbb444455556666")
	require.NoError(t, err)
	assert.True(t, replace, "a different content hash means the document changed")

	replace, err = dedup.ShouldReplace(ctx, "doc0000000000000", "")
	require.NoError(t, err)
	assert.True(t, replace, "empty candidate hash forces the replace")
}
