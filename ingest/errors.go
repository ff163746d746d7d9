package ingest

import "errors"

var (
	ErrBlobNotFound     = errors.New("blob not found")
	ErrManifestNotFound = errors.New("batch manifest not found")
	ErrTrackingNotFound = errors.New("tracking record not found")

	ErrEmbedderNotConfigured = errors.New("embedder is not configured")
	ErrIndexNotConfigured    = errors.New("search index is not configured")

	ErrInvalidEmbeddingDimension = errors.New("embedding dimension must be positive")
	ErrMixedFragmentBatch        = errors.New("fragment batch spans multiple document hashes")
	ErrEmptyFragmentBatch        = errors.New("fragment batch is empty")
)
