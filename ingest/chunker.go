package ingest

import (
	"context"
	"strings"
	"unicode"
)

// Chunker defaults, in content units (bytes of UTF-8 text).
const (
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultMinChunkSize    = 100
	DefaultMaxChunksPerDoc = 10
)

// ChunkResult is the ordered fragment set produced for one document.
// Truncated reports that MaxChunksPerDoc was reached with content left
// over; the tail is dropped but the condition is surfaced so ingestion
// manifests can record it.
type ChunkResult struct {
	Fragments []Fragment
	Truncated bool
}

// Chunker splits one document into an ordered sequence of fragment drafts.
// Drafts carry no Key and no Vector; the Deduplicator assigns both.
type Chunker interface {
	Chunk(ctx context.Context, doc Document) (ChunkResult, error)
}

// SlidingChunker splits content with a sliding window of overlapping
// fragments, preferring sentence boundaries, then whitespace, then hard
// breaks. Zero-valued fields fall back to the package defaults.
type SlidingChunker struct {
	ChunkSize       int
	Overlap         int
	MinChunkSize    int
	MaxChunksPerDoc int
}

func (c SlidingChunker) chunkSize() int {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return DefaultChunkSize
}

func (c SlidingChunker) overlap() int {
	if c.Overlap > 0 {
		return c.Overlap
	}
	return DefaultChunkOverlap
}

func (c SlidingChunker) minChunkSize() int {
	if c.MinChunkSize > 0 {
		return c.MinChunkSize
	}
	return DefaultMinChunkSize
}

func (c SlidingChunker) maxChunks() int {
	if c.MaxChunksPerDoc > 0 {
		return c.MaxChunksPerDoc
	}
	return DefaultMaxChunksPerDoc
}

// Chunk implements Chunker.
//
// Content no longer than ChunkSize yields exactly one fragment holding the
// trimmed content, even when empty (an empty fragment is a no-op further
// down the pipeline). Longer content slides a window of ChunkSize, cutting
// at the last sentence terminator past the window midpoint when one exists,
// else the last whitespace past the midpoint, else hard at the window end.
// Slices shorter than MinChunkSize after trimming are discarded; kept
// fragments are numbered contiguously from zero. When stepping back by
// Overlap cannot advance the window (possible once Overlap exceeds half the
// chunk size) chunking stops at that point.
func (c SlidingChunker) Chunk(ctx context.Context, doc Document) (ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return ChunkResult{}, err
	}

	size := c.chunkSize()
	hash := doc.Hash()
	content := doc.Content

	if len(content) <= size {
		return ChunkResult{
			Fragments: []Fragment{c.draft(doc, hash, 0, strings.TrimSpace(content))},
		}, nil
	}

	overlap := c.overlap()
	minSize := c.minChunkSize()
	maxChunks := c.maxChunks()

	fragments := make([]Fragment, 0, maxChunks)
	truncated := false
	start := 0

	for start < len(content) {
		if err := ctx.Err(); err != nil {
			return ChunkResult{}, err
		}
		if len(fragments) >= maxChunks {
			truncated = true
			break
		}

		end := start + size
		if end >= len(content) {
			end = len(content)
		} else {
			end = cutPoint(content, start, end, size)
		}

		piece := strings.TrimSpace(content[start:end])
		if len(piece) >= minSize {
			fragments = append(fragments, c.draft(doc, hash, len(fragments), piece))
		}

		if end >= len(content) {
			break
		}

		next := end - overlap
		if next <= start {
			// overlap would stall the window; stop here
			break
		}
		start = next
	}

	return ChunkResult{Fragments: fragments, Truncated: truncated}, nil
}

// cutPoint finds where to end the window [start, end). A sentence
// terminator past the window midpoint wins (cut is inclusive of the
// period); otherwise the last whitespace past the midpoint (exclusive
// cut); otherwise the hard window end.
func cutPoint(content string, start, end, size int) int {
	floor := start + size/2

	if idx := strings.LastIndexByte(content[start:end], '.'); idx >= 0 && start+idx > floor {
		return start + idx + 1
	}

	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(rune(content[i])) {
			return i
		}
	}

	return end
}

func (c SlidingChunker) draft(doc Document, hash string, chunkIndex int, content string) Fragment {
	return Fragment{
		DocumentHash: hash,
		DocumentID:   doc.DocumentID(),
		ChunkIndex:   chunkIndex,
		Title:        fragmentTitle(doc.Title, chunkIndex),
		Content:      content,
		Source:       doc.SourceURL,
		Category:     doc.Category,
		DocType:      doc.DocType,
		Severity:     doc.Severity,
		Metadata:     doc.Metadata,
	}
}
