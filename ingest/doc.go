// Package ingest implements a chunked, deduplicated, vector-searchable
// knowledge store for product documentation, runbooks, and generated guides.
//
// Raw documents are persisted in dated batches by an ArtifactStore, split
// into retrieval-sized fragments by a Chunker, and pushed into an external
// SearchIndex by a Deduplicator that keys every fragment deterministically
// ({content_hash}_{chunk_index}). Re-ingesting an unchanged document is a
// cheap no-op; re-ingesting changed content replaces the full fragment set
// without duplicating or orphaning old fragments. A FragmentReader is the
// symmetric read path: it reconstructs a document, or a context window
// around one fragment, straight from the index using the same key scheme.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// Document categories. Each ingestion batch keeps one folder per category.
const (
	CategoryOSS        = "oss"
	CategoryEnterprise = "enterprise"
	CategoryShared     = "shared"
)

// Categories lists the closed set of batch folders, in processing order.
var Categories = []string{CategoryOSS, CategoryEnterprise, CategoryShared}

// Document is a raw, already-materialized document handed to the pipeline.
// It is immutable once scraped. ContentHash names this exact revision;
// DocumentID names the document across revisions.
type Document struct {
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	SourceURL   string         `json:"source_url"`
	Category    string         `json:"category"`
	DocType     string         `json:"doc_type"`
	Severity    string         `json:"severity,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ScrapedAt   time.Time      `json:"scraped_at"`
	ContentHash string         `json:"content_hash,omitempty"`
}

// contentHashLen is the number of hex characters kept from the digest.
const contentHashLen = 16

// ComputeContentHash derives the document's identity from title, content,
// and source URL. Two documents with identical title+content+source hash
// identically regardless of when they were scraped.
func (d Document) ComputeContentHash() string {
	sum := sha256.Sum256([]byte(d.Title + d.Content + d.SourceURL))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

// Hash returns the stored content hash, computing it when absent.
func (d Document) Hash() string {
	if d.ContentHash != "" {
		return d.ContentHash
	}
	return d.ComputeContentHash()
}

// DocumentID derives the document's stable identity from title and source
// URL alone, so it survives content edits. Tracking records are keyed by
// it; fragment keys stay content-sensitive through the content hash, which
// is how a rewrite replaces the previous version's fragments instead of
// accumulating next to them.
func (d Document) DocumentID() string {
	sum := sha256.Sum256([]byte(d.Title + d.SourceURL))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

const maxSanitizedTitleLen = 80

// sanitizeTitle turns a document title into a filesystem-safe file name
// stem: lowercase, runs of non-alphanumerics collapsed to a single
// underscore, trimmed, capped at maxSanitizedTitleLen.
func sanitizeTitle(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	s := strings.Trim(b.String(), "_")
	if len(s) > maxSanitizedTitleLen {
		s = strings.Trim(s[:maxSanitizedTitleLen], "_")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
