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

func newTestRedisTracking(t *testing.T) *RedisTrackingStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisTrackingStore(client, "")
	require.NoError(t, err)
	return store
}

func TestRedisTrackingStore(t *testing.T) {
	ctx := context.Background()

	rec := DocumentTracking{
		DocumentID:         "1111aaaa2222bbbb",
		ContentHash:        "abcd1234abcd1234",
		Title:              "Persistence Guide",
		Source:             "https://example.com/persistence",
		Category:           CategoryOSS,
		ChunkCount:         4,
		TotalContentLength: 3200,
		LastUpdated:        time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC),
	}

	t.Run("put get round trip", func(t *testing.T) {
		store := newTestRedisTracking(t)
		require.NoError(t, store.Put(ctx, rec))

		got, err := store.Get(ctx, rec.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, &rec, got)
	})

	t.Run("missing record is a sentinel", func(t *testing.T) {
		store := newTestRedisTracking(t)
		_, err := store.Get(ctx, "0000000000000000")
		assert.ErrorIs(t, err, ErrTrackingNotFound)
	})

	t.Run("put overwrites", func(t *testing.T) {
		store := newTestRedisTracking(t)
		require.NoError(t, store.Put(ctx, rec))

		updated := rec
		updated.ContentHash = "feed5678feed5678"
		updated.ChunkCount = 6
		updated.LastUpdated = rec.LastUpdated.Add(time.Hour)
		require.NoError(t, store.Put(ctx, updated))

		got, err := store.Get(ctx, rec.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, "feed5678feed5678", got.ContentHash, "same identity, new content hash")
		assert.Equal(t, 6, got.ChunkCount)
		assert.Equal(t, updated.LastUpdated, got.LastUpdated)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newTestRedisTracking(t)
		require.NoError(t, store.Put(ctx, rec))
		require.NoError(t, store.Delete(ctx, rec.DocumentID))

		_, err := store.Get(ctx, rec.DocumentID)
		assert.ErrorIs(t, err, ErrTrackingNotFound)

		assert.NoError(t, store.Delete(ctx, rec.DocumentID))
	})

	t.Run("empty document id is rejected", func(t *testing.T) {
		store := newTestRedisTracking(t)
		assert.Error(t, store.Put(ctx, DocumentTracking{ContentHash: "abcd1234abcd1234"}))
	})
}
