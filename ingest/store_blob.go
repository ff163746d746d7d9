package ingest

import (
	"context"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// BlobStore is the storage abstraction under the ArtifactStore: documents
// and manifests are small JSON objects addressed by slash-separated keys.
type BlobStore interface {
	// Put writes data under key, creating any intermediate namespace.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object's bytes, or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns objects under prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
