package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfoundry/ingestcore/ingest/testutil"
)

func newTestS3Store(t *testing.T, prefix string) *S3BlobStore {
	t.Helper()
	ctx := context.Background()

	mock, err := testutil.StartMockS3(ctx, "ingest-test")
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewS3BlobStore(mock.Client, mock.Bucket, prefix)
}

func TestS3BlobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put get round trip", func(t *testing.T) {
		store := newTestS3Store(t, "")

		require.NoError(t, store.Put(ctx, "artifacts/2025-01-15/oss/doc.json", []byte(`{"title":"x"}`)))

		data, err := store.Get(ctx, "artifacts/2025-01-15/oss/doc.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"x"}`, string(data))
	})

	t.Run("get missing key is ErrBlobNotFound", func(t *testing.T) {
		store := newTestS3Store(t, "")
		_, err := store.Get(ctx, "nope.json")
		assert.ErrorIs(t, err, ErrBlobNotFound)
	})

	t.Run("exists and delete", func(t *testing.T) {
		store := newTestS3Store(t, "")
		require.NoError(t, store.Put(ctx, "a/b.json", []byte("{}")))

		ok, err := store.Exists(ctx, "a/b.json")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.Delete(ctx, "a/b.json"))

		ok, err = store.Exists(ctx, "a/b.json")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, store.Delete(ctx, "a/b.json"), "deleting a missing key is not an error")
	})

	t.Run("list honors the configured prefix", func(t *testing.T) {
		store := newTestS3Store(t, "team-a/")
		require.NoError(t, store.Put(ctx, "artifacts/2025-01-15/oss/one.json", []byte("{}")))
		require.NoError(t, store.Put(ctx, "artifacts/2025-01-15/oss/two.json", []byte("{}")))
		require.NoError(t, store.Put(ctx, "artifacts/2025-01-16/oss/other.json", []byte("{}")))

		infos, err := store.List(ctx, "artifacts/2025-01-15/")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "artifacts/2025-01-15/oss/one.json", infos[0].Key, "keys come back without the store prefix")
		assert.Equal(t, "artifacts/2025-01-15/oss/two.json", infos[1].Key)
		assert.Positive(t, infos[0].Size)
	})

	t.Run("artifact store works end to end over s3", func(t *testing.T) {
		store := NewArtifactStore(newTestS3Store(t, ""), "")

		doc := Document{Title: "S3 Doc", Content: "stored remotely", SourceURL: "https://example.com/s3", Category: CategoryOSS, DocType: "guide"}
		_, err := store.SaveBatch(ctx, "2025-01-15", []Document{doc})
		require.NoError(t, err)

		manifest, err := store.ReadBatchManifest(ctx, "2025-01-15")
		require.NoError(t, err)
		assert.Equal(t, 1, manifest.TotalDocuments)

		dates, err := store.ListBatchDates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-01-15"}, dates)
	})
}
