package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Deduplicator owns document identity on the write side: it decides
// replace-vs-skip from the tracking record, removes the previous version's
// fragments by deterministic key pattern, and writes the new fragment set
// followed by the tracking record.
//
// The tracking record is keyed by the stable document ID and stores the
// content hash whose fragments are currently indexed. A content change
// therefore finds the old fragment set through the record and deletes it
// before upserting under the new hash, so no fragments are orphaned.
//
// Ordering within one document's replace is fixed: delete existing, embed
// and upsert the new set, then update the tracking record. The record is
// never written before the index write succeeds, so a failed attempt
// leaves the document looking "needs replace" and the next run converges
// by redoing delete-then-reinsert. No step holds a lock across the index
// and the tracking store.
type Deduplicator struct {
	Index    SearchIndex
	Tracking TrackingStore
}

// NewDeduplicator wires a Deduplicator over the given index and tracking
// store.
func NewDeduplicator(index SearchIndex, tracking TrackingStore) *Deduplicator {
	return &Deduplicator{Index: index, Tracking: tracking}
}

// ShouldReplace reports whether fragments for the document identified by
// documentID need (re)indexing. A missing tracking record always means
// ingest. When newContentHash is non-empty and matches the recorded hash
// the document is unchanged and the replace is skipped.
func (d *Deduplicator) ShouldReplace(ctx context.Context, documentID, newContentHash string) (bool, error) {
	rec, err := d.Tracking.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrTrackingNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("look up tracking record for %s: %w", documentID, err)
	}
	if newContentHash != "" && newContentHash == rec.ContentHash {
		return false, nil
	}
	return true, nil
}

// FindExistingFragmentKeys enumerates the fragment keys currently indexed
// for documentHash by scanning the deterministic key pattern.
func (d *Deduplicator) FindExistingFragmentKeys(ctx context.Context, documentHash string) ([]string, error) {
	keys, err := d.Index.ScanKeys(ctx, documentHash+"_*")
	if err != nil {
		return nil, fmt.Errorf("scan fragment keys for %s: %w", documentHash, err)
	}
	return keys, nil
}

// DeleteExistingFragments bulk-deletes every indexed fragment for
// documentHash and returns how many were removed.
func (d *Deduplicator) DeleteExistingFragments(ctx context.Context, documentHash string) (int, error) {
	keys, err := d.FindExistingFragmentKeys(ctx, documentHash)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := d.Index.Delete(ctx, keys); err != nil {
		return 0, fmt.Errorf("delete stale fragments for %s: %w", documentHash, err)
	}
	return len(keys), nil
}

// ReplaceDocumentChunks indexes one document's fragment set, replacing
// whatever version of the document is currently indexed. Returns the
// number of fragments indexed, 0 when the document is unchanged and
// skipped.
//
// When the tracking record names a different content hash, that hash's
// fragments are deleted first; the new hash's key range is cleared too so
// partial writes from a failed earlier attempt are reclaimed. A failure at
// any point propagates without updating the tracking record, and the next
// run converges by redoing the delete-then-reinsert.
func (d *Deduplicator) ReplaceDocumentChunks(ctx context.Context, fragments []Fragment, embedder Embedder) (int, error) {
	if d.Index == nil {
		return 0, ErrIndexNotConfigured
	}
	if len(fragments) == 0 {
		return 0, ErrEmptyFragmentBatch
	}

	hash := fragments[0].DocumentHash
	if hash == "" {
		return 0, fmt.Errorf("fragment batch has empty document hash")
	}
	docID := fragments[0].DocumentID
	if docID == "" {
		return 0, fmt.Errorf("fragment batch has empty document id")
	}
	for _, f := range fragments {
		if f.DocumentHash != hash {
			return 0, fmt.Errorf("%w: %s and %s", ErrMixedFragmentBatch, hash, f.DocumentHash)
		}
	}

	previous, err := d.Tracking.Get(ctx, docID)
	if err != nil && !errors.Is(err, ErrTrackingNotFound) {
		return 0, fmt.Errorf("look up tracking record for %s: %w", docID, err)
	}
	if previous != nil && previous.ContentHash == hash {
		slog.Default().DebugContext(ctx, "document unchanged, skipping replace",
			"document_id", docID,
			"document_hash", hash,
		)
		return 0, nil
	}

	deleted := 0
	if previous != nil && previous.ContentHash != "" {
		n, err := d.DeleteExistingFragments(ctx, previous.ContentHash)
		if err != nil {
			return 0, err
		}
		deleted += n
	}
	n, err := d.DeleteExistingFragments(ctx, hash)
	if err != nil {
		return 0, err
	}
	deleted += n

	texts := make([]string, len(fragments))
	totalContentLength := 0
	for i, f := range fragments {
		texts[i] = f.Content
		totalContentLength += len(f.Content)
	}
	vectors, err := EmbedAll(ctx, embedder, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %d fragments for %s: %w", len(fragments), hash, err)
	}
	if len(vectors) != len(fragments) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(fragments))
	}

	now := time.Now().UTC()
	entries := make([]IndexEntry, len(fragments))
	for i := range fragments {
		fragments[i].Key = FragmentKey(hash, fragments[i].ChunkIndex)
		fragments[i].Vector = vectors[i]
		entries[i] = IndexEntry{
			Key:    fragments[i].Key,
			Fields: fragments[i].indexFields(now),
			Vector: vectors[i],
		}
	}

	if err := d.Index.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("index fragments for %s: %w", hash, err)
	}

	rec := DocumentTracking{
		DocumentID:         docID,
		ContentHash:        hash,
		Title:              fragments[0].Title,
		Source:             fragments[0].Source,
		Category:           fragments[0].Category,
		ChunkCount:         len(fragments),
		TotalContentLength: totalContentLength,
		LastUpdated:        now,
	}
	if err := d.Tracking.Put(ctx, rec); err != nil {
		// next run sees a stale/missing record and retries the replace
		return 0, fmt.Errorf("write tracking record for %s: %w", docID, err)
	}

	slog.Default().InfoContext(ctx, "replaced document fragments",
		"document_id", docID,
		"document_hash", hash,
		"deleted", deleted,
		"indexed", len(fragments),
	)
	return len(fragments), nil
}
