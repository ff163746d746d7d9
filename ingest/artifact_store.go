package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	defaultArtifactRoot       = "artifacts"
	batchManifestFilename     = "batch_manifest.json"
	ingestionManifestFilename = "ingestion_manifest.json"
)

var batchDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ArtifactStore persists raw documents and batch manifests on durable
// storage, organized by date and category:
//
//	artifacts/{YYYY-MM-DD}/{category}/{sanitized-title}_{content_hash}.json
//	artifacts/{YYYY-MM-DD}/batch_manifest.json
//	artifacts/{YYYY-MM-DD}/ingestion_manifest.json
//
// The content hash in the file name makes document files collision-safe.
type ArtifactStore struct {
	Blobs BlobStore
	Root  string
}

// NewArtifactStore creates an artifact store over blobs. An empty root
// falls back to "artifacts".
func NewArtifactStore(blobs BlobStore, root string) *ArtifactStore {
	if strings.TrimSpace(root) == "" {
		root = defaultArtifactRoot
	}
	return &ArtifactStore{Blobs: blobs, Root: root}
}

func (s *ArtifactStore) batchPrefix(batchDate string) string {
	return path.Join(s.Root, batchDate)
}

func (s *ArtifactStore) documentKey(batchDate, category, filename string) string {
	return path.Join(s.Root, batchDate, category, filename)
}

// DocumentFilename builds the collision-safe file name for a document.
func DocumentFilename(doc Document) string {
	return fmt.Sprintf("%s_%s.json", sanitizeTitle(doc.Title), doc.Hash())
}

// SaveDocument persists one document into its batch/category folder and
// returns the file name it was stored under. The content hash is filled
// in when absent so the persisted file always carries its identity.
func (s *ArtifactStore) SaveDocument(ctx context.Context, batchDate string, doc Document) (string, error) {
	if doc.ContentHash == "" {
		doc.ContentHash = doc.ComputeContentHash()
	}
	if doc.Category == "" {
		return "", fmt.Errorf("document %q has no category", doc.Title)
	}

	filename := DocumentFilename(doc)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document %q: %w", doc.Title, err)
	}
	if err := s.Blobs.Put(ctx, s.documentKey(batchDate, doc.Category, filename), data); err != nil {
		return "", err
	}
	return filename, nil
}

// LoadDocument reads one document file back. Malformed files surface a
// structural error naming the file.
func (s *ArtifactStore) LoadDocument(ctx context.Context, batchDate, category, filename string) (*Document, error) {
	data, err := s.Blobs.Get(ctx, s.documentKey(batchDate, category, filename))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document file %s: %w", filename, err)
	}
	return &doc, nil
}

// ListDocuments returns the document file names in one batch category,
// sorted. A missing category folder yields an empty list.
func (s *ArtifactStore) ListDocuments(ctx context.Context, batchDate, category string) ([]string, error) {
	prefix := path.Join(s.Root, batchDate, category) + "/"
	infos, err := s.Blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s/%s: %w", batchDate, category, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// SaveBatch persists a set of documents as one dated batch and writes the
// batch manifest derived from them.
func (s *ArtifactStore) SaveBatch(ctx context.Context, batchDate string, docs []Document) (*BatchManifest, error) {
	for _, doc := range docs {
		if _, err := s.SaveDocument(ctx, batchDate, doc); err != nil {
			return nil, err
		}
	}
	manifest := BuildBatchManifest(batchDate, docs)
	if err := s.WriteBatchManifest(ctx, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// BuildBatchManifest derives the batch manifest for docs: per-category and
// per-type counts plus the distinct source URLs.
func BuildBatchManifest(batchDate string, docs []Document) *BatchManifest {
	manifest := &BatchManifest{
		BatchDate:      batchDate,
		TotalDocuments: len(docs),
		Categories:     make(map[string]int),
		DocumentTypes:  make(map[string]int),
		Sources:        make([]string, 0),
		CreatedAt:      time.Now().UTC(),
	}
	seen := make(map[string]struct{})
	for _, doc := range docs {
		manifest.Categories[doc.Category]++
		manifest.DocumentTypes[doc.DocType]++
		if _, ok := seen[doc.SourceURL]; !ok && doc.SourceURL != "" {
			seen[doc.SourceURL] = struct{}{}
			manifest.Sources = append(manifest.Sources, doc.SourceURL)
		}
	}
	sort.Strings(manifest.Sources)
	return manifest
}

// WriteBatchManifest persists the batch manifest for its batch date.
func (s *ArtifactStore) WriteBatchManifest(ctx context.Context, manifest *BatchManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch manifest: %w", err)
	}
	key := path.Join(s.batchPrefix(manifest.BatchDate), batchManifestFilename)
	return s.Blobs.Put(ctx, key, data)
}

// ReadBatchManifest loads the batch manifest for batchDate, or
// ErrManifestNotFound.
func (s *ArtifactStore) ReadBatchManifest(ctx context.Context, batchDate string) (*BatchManifest, error) {
	key := path.Join(s.batchPrefix(batchDate), batchManifestFilename)
	data, err := s.Blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: batch %s", ErrManifestNotFound, batchDate)
		}
		return nil, err
	}
	var manifest BatchManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse batch manifest for %s: %w", batchDate, err)
	}
	return &manifest, nil
}

// WriteIngestionManifest persists the ingestion manifest for its batch.
func (s *ArtifactStore) WriteIngestionManifest(ctx context.Context, manifest *IngestionManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ingestion manifest: %w", err)
	}
	key := path.Join(s.batchPrefix(manifest.BatchDate), ingestionManifestFilename)
	return s.Blobs.Put(ctx, key, data)
}

// ReadIngestionManifest loads the ingestion manifest for batchDate, or
// ErrManifestNotFound when the batch has not been ingested.
func (s *ArtifactStore) ReadIngestionManifest(ctx context.Context, batchDate string) (*IngestionManifest, error) {
	key := path.Join(s.batchPrefix(batchDate), ingestionManifestFilename)
	data, err := s.Blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: ingestion manifest for batch %s", ErrManifestNotFound, batchDate)
		}
		return nil, err
	}
	var manifest IngestionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse ingestion manifest for %s: %w", batchDate, err)
	}
	return &manifest, nil
}

// HasIngestionManifest reports whether an ingestion manifest exists for
// the batch.
func (s *ArtifactStore) HasIngestionManifest(ctx context.Context, batchDate string) (bool, error) {
	key := path.Join(s.batchPrefix(batchDate), ingestionManifestFilename)
	return s.Blobs.Exists(ctx, key)
}

// ListBatchDates returns the distinct batch dates present in storage,
// sorted ascending. Only first-level folders matching YYYY-MM-DD count.
func (s *ArtifactStore) ListBatchDates(ctx context.Context) ([]string, error) {
	infos, err := s.Blobs.List(ctx, s.Root+"/")
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	seen := make(map[string]struct{})
	dates := make([]string, 0)
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, s.Root+"/")
		date, _, ok := strings.Cut(rest, "/")
		if !ok || !batchDatePattern.MatchString(date) {
			continue
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}
