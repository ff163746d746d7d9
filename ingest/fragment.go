package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Fragment is a retrieval-sized slice of a document. The Chunker produces
// fragments without Key and Vector; the Deduplicator assigns both before
// the fragment reaches the index.
type Fragment struct {
	Key          string
	DocumentHash string
	DocumentID   string
	ChunkIndex   int
	Title        string
	Content      string
	Source       string
	Category     string
	DocType      string
	Severity     string
	Metadata     map[string]any
	Vector       []float32

	// IsTargetChunk is set only on read, when a context-window query marks
	// the fragment it was centered on.
	IsTargetChunk bool
}

// FragmentKey builds the deterministic index key for a fragment. The key
// format itself encodes the grouping by document, so existing fragments
// can be enumerated by key pattern with no secondary index.
func FragmentKey(documentHash string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentHash, chunkIndex)
}

// fragmentTitle derives the per-fragment title: the document title verbatim
// for the first fragment, "{title} (Part N)" for the rest.
func fragmentTitle(docTitle string, chunkIndex int) string {
	if chunkIndex == 0 {
		return docTitle
	}
	return fmt.Sprintf("%s (Part %d)", docTitle, chunkIndex+1)
}

// indexFields converts the fragment into the flat field map stored in the
// search index. Metadata is flattened with the meta_ prefix; indexedAt is
// recorded as the write timestamp.
func (f Fragment) indexFields(indexedAt time.Time) map[string]string {
	fields := map[string]string{
		"fragment_key":  f.Key,
		"document_hash": f.DocumentHash,
		"document_id":   f.DocumentID,
		"chunk_index":   strconv.Itoa(f.ChunkIndex),
		"title":         f.Title,
		"content":       f.Content,
		"source":        f.Source,
		"category":      f.Category,
		"doc_type":      f.DocType,
		"severity":      f.Severity,
		"indexed_at":    indexedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range FlattenMetadata(f.Metadata) {
		fields[k] = v
	}
	return fields
}

// fragmentFromEntry rebuilds a Fragment from an index entry on the read
// path. Flattened meta_ fields are surfaced as string-valued metadata.
func fragmentFromEntry(entry IndexEntry) (Fragment, error) {
	idx, err := strconv.Atoi(entry.Fields["chunk_index"])
	if err != nil {
		return Fragment{}, fmt.Errorf("entry %s: parse chunk_index %q: %w", entry.Key, entry.Fields["chunk_index"], err)
	}

	var meta map[string]any
	for k, v := range entry.Fields {
		if len(k) > len(metaFieldPrefix) && k[:len(metaFieldPrefix)] == metaFieldPrefix {
			if meta == nil {
				meta = make(map[string]any)
			}
			meta[k[len(metaFieldPrefix):]] = v
		}
	}

	return Fragment{
		Key:          entry.Key,
		DocumentHash: entry.Fields["document_hash"],
		DocumentID:   entry.Fields["document_id"],
		ChunkIndex:   idx,
		Title:        entry.Fields["title"],
		Content:      entry.Fields["content"],
		Source:       entry.Fields["source"],
		Category:     entry.Fields["category"],
		DocType:      entry.Fields["doc_type"],
		Severity:     entry.Fields["severity"],
		Metadata:     meta,
		Vector:       entry.Vector,
	}, nil
}

// sortFragmentsByIndex orders fragments by chunk index ascending. Ordering
// is retrieval-critical: concatenating sorted fragments must preserve the
// reading order of the source text.
func sortFragmentsByIndex(fragments []Fragment) {
	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].ChunkIndex < fragments[j].ChunkIndex
	})
}
