package ingest

import (
	"context"
	"path/filepath"
	"testing"
)

// TestHarness provides a fluent API for setting up test environments.
// Use this in tests to reduce boilerplate setup code.
//
// Example:
//
//	harness := NewTestHarness(t).
//	    WithChunker(SlidingChunker{ChunkSize: 200, Overlap: 40}).
//	    Setup()
//
//	manifest, err := harness.Pipeline().IngestBatch(ctx, "2025-01-15")
type TestHarness struct {
	t *testing.T

	// Configuration options
	blobRoot     string
	index        SearchIndex
	tracking     TrackingStore
	embedder     Embedder
	chunker      Chunker
	workers      int
	extraOptions []PipelineOption

	// Internal state
	store       *ArtifactStore
	dedup       *Deduplicator
	pipeline    *Pipeline
	reader      *FragmentReader
	initialized bool
}

// NewTestHarness creates a new test harness. Every dependency defaults to
// an in-process implementation: a local blob store under t.TempDir, an
// in-memory search index and tracking store, and the deterministic local
// embedder.
func NewTestHarness(t *testing.T) *TestHarness {
	return &TestHarness{t: t}
}

// WithIndex replaces the default in-memory search index.
func (h *TestHarness) WithIndex(index SearchIndex) *TestHarness {
	h.index = index
	return h
}

// WithTracking replaces the default in-memory tracking store.
func (h *TestHarness) WithTracking(tracking TrackingStore) *TestHarness {
	h.tracking = tracking
	return h
}

// WithEmbedder sets a custom embedder for the harness.
func (h *TestHarness) WithEmbedder(embedder Embedder) *TestHarness {
	h.embedder = embedder
	return h
}

// WithChunker sets a custom chunker for the harness pipeline.
func (h *TestHarness) WithChunker(chunker Chunker) *TestHarness {
	h.chunker = chunker
	return h
}

// WithBlobRoot sets a shared blob storage root. Use this when simulating
// multiple pipeline instances over the same artifact storage.
func (h *TestHarness) WithBlobRoot(dir string) *TestHarness {
	h.blobRoot = dir
	return h
}

// WithWorkers sets the pipeline worker count.
func (h *TestHarness) WithWorkers(n int) *TestHarness {
	h.workers = n
	return h
}

// WithOptions adds additional pipeline options applied at Setup.
func (h *TestHarness) WithOptions(opts ...PipelineOption) *TestHarness {
	h.extraOptions = append(h.extraOptions, opts...)
	return h
}

// Setup initializes the test environment and wires the pipeline, the
// deduplicator, and the fragment reader.
func (h *TestHarness) Setup() *TestHarness {
	if h.initialized {
		h.t.Fatal("Harness already initialized")
	}

	if h.blobRoot == "" {
		h.blobRoot = filepath.Join(h.t.TempDir(), "blobs")
	}
	if h.index == nil {
		h.index = NewInMemorySearchIndex()
	}
	if h.tracking == nil {
		h.tracking = NewInMemoryTrackingStore()
	}
	if h.embedder == nil {
		embedder, err := NewLocalEmbedder(defaultLocalEmbedDim)
		if err != nil {
			h.t.Fatalf("Failed to create local embedder: %v", err)
		}
		h.embedder = embedder
	}

	h.store = NewArtifactStore(&LocalBlobStore{Root: h.blobRoot}, "")
	h.dedup = NewDeduplicator(h.index, h.tracking)

	opts := make([]PipelineOption, 0, len(h.extraOptions)+2)
	if h.chunker != nil {
		opts = append(opts, WithChunker(h.chunker))
	}
	if h.workers > 0 {
		opts = append(opts, WithWorkers(h.workers))
	}
	opts = append(opts, h.extraOptions...)

	h.pipeline = NewPipeline(h.store, h.dedup, h.embedder, opts...)
	h.reader = NewFragmentReader(h.index, h.tracking)

	h.initialized = true
	return h
}

// SaveBatch persists docs as a dated batch through the artifact store,
// failing the test on error.
func (h *TestHarness) SaveBatch(ctx context.Context, batchDate string, docs []Document) *BatchManifest {
	h.t.Helper()
	manifest, err := h.Store().SaveBatch(ctx, batchDate, docs)
	if err != nil {
		h.t.Fatalf("Failed to save batch %s: %v", batchDate, err)
	}
	return manifest
}

// Store returns the artifact store.
func (h *TestHarness) Store() *ArtifactStore {
	h.requireSetup()
	return h.store
}

// Dedup returns the deduplicating index writer.
func (h *TestHarness) Dedup() *Deduplicator {
	h.requireSetup()
	return h.dedup
}

// Pipeline returns the ingestion pipeline.
func (h *TestHarness) Pipeline() *Pipeline {
	h.requireSetup()
	return h.pipeline
}

// Reader returns the fragment reader.
func (h *TestHarness) Reader() *FragmentReader {
	h.requireSetup()
	return h.reader
}

// Index returns the search index.
func (h *TestHarness) Index() SearchIndex {
	h.requireSetup()
	return h.index
}

// Tracking returns the tracking store.
func (h *TestHarness) Tracking() TrackingStore {
	h.requireSetup()
	return h.tracking
}

// Embedder returns the embedder.
func (h *TestHarness) Embedder() Embedder {
	h.requireSetup()
	return h.embedder
}

// BlobRoot returns the blob storage root directory.
func (h *TestHarness) BlobRoot() string {
	return h.blobRoot
}

func (h *TestHarness) requireSetup() {
	if !h.initialized {
		h.t.Fatal("Harness not initialized. Call Setup() first.")
	}
}
