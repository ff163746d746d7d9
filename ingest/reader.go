package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DocumentFragments is the read-side view of one document's indexed
// fragment set. Found is false when the hash is unknown; in that case
// Fragments is empty and Tracking is nil.
type DocumentFragments struct {
	DocumentHash string            `json:"document_hash"`
	Fragments    []Fragment        `json:"fragments"`
	Found        bool              `json:"found"`
	Tracking     *DocumentTracking `json:"tracking,omitempty"`
}

// FragmentReader reassembles documents from the search index. Unknown
// hashes are reported through Found, not as errors; only transport and
// decode failures are errors.
type FragmentReader struct {
	Index    SearchIndex
	Tracking TrackingStore
	Metrics  AppMetrics
}

// NewFragmentReader wires a reader over the index and tracking store.
func NewFragmentReader(index SearchIndex, tracking TrackingStore) *FragmentReader {
	return &FragmentReader{Index: index, Tracking: tracking, Metrics: NoopAppMetrics{}}
}

// GetAllFragments returns every indexed fragment for documentHash in
// chunk order. When includeMetadata is set the document's tracking
// record is joined in as well.
func (r *FragmentReader) GetAllFragments(ctx context.Context, documentHash string, includeMetadata bool) (*DocumentFragments, error) {
	started := time.Now()
	out, err := r.getAllFragments(ctx, documentHash, includeMetadata)
	count := 0
	if out != nil {
		count = len(out.Fragments)
	}
	r.metrics().RecordFragmentRead(documentHash, time.Since(started).Milliseconds(), count, err)
	return out, err
}

func (r *FragmentReader) getAllFragments(ctx context.Context, documentHash string, includeMetadata bool) (*DocumentFragments, error) {
	if r.Index == nil {
		return nil, ErrIndexNotConfigured
	}

	entries, err := r.Index.QueryByTag(ctx, "document_hash", documentHash)
	if err != nil {
		return nil, fmt.Errorf("query fragments for %s: %w", documentHash, err)
	}

	out := &DocumentFragments{
		DocumentHash: documentHash,
		Fragments:    make([]Fragment, 0, len(entries)),
	}
	if len(entries) == 0 {
		return out, nil
	}

	for _, entry := range entries {
		frag, err := fragmentFromEntry(entry)
		if err != nil {
			return nil, err
		}
		out.Fragments = append(out.Fragments, frag)
	}
	sortFragmentsByIndex(out.Fragments)
	out.Found = true

	if includeMetadata && r.Tracking != nil {
		docID := out.Fragments[0].DocumentID
		rec, err := r.Tracking.Get(ctx, docID)
		if err != nil && !errors.Is(err, ErrTrackingNotFound) {
			return nil, fmt.Errorf("load tracking record for %s: %w", docID, err)
		}
		out.Tracking = rec
	}

	slog.Default().DebugContext(ctx, "read document fragments",
		"document_hash", documentHash,
		"fragments", len(out.Fragments),
	)
	return out, nil
}

// GetRelatedFragments returns the fragments around targetIndex within
// the given window: indexes [targetIndex-window, targetIndex+window],
// clamped to the document. A negative targetIndex returns the whole
// document. The fragment whose index equals targetIndex is flagged
// IsTargetChunk.
func (r *FragmentReader) GetRelatedFragments(ctx context.Context, documentHash string, targetIndex, window int) (*DocumentFragments, error) {
	all, err := r.GetAllFragments(ctx, documentHash, false)
	if err != nil {
		return nil, err
	}
	if !all.Found || targetIndex < 0 {
		return all, nil
	}
	if window < 0 {
		window = 0
	}

	// fragments are sorted and contiguously numbered from zero, so the
	// chunk index doubles as the slice position
	lo := targetIndex - window
	if lo < 0 {
		lo = 0
	}
	hi := targetIndex + window + 1
	if hi > len(all.Fragments) {
		hi = len(all.Fragments)
	}
	if lo >= hi {
		all.Fragments = []Fragment{}
		return all, nil
	}

	selected := make([]Fragment, hi-lo)
	copy(selected, all.Fragments[lo:hi])
	for i := range selected {
		selected[i].IsTargetChunk = selected[i].ChunkIndex == targetIndex
	}
	all.Fragments = selected
	return all, nil
}

func (r *FragmentReader) metrics() AppMetrics {
	if r.Metrics == nil {
		return NoopAppMetrics{}
	}
	return r.Metrics
}
