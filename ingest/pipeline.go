package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultIngestWorkers = 4

// Pipeline drives batch ingestion: it reads a dated batch of raw
// documents from the artifact store, chunks and embeds them, replaces
// their fragment sets in the search index through the Deduplicator, and
// records the run in an ingestion manifest.
type Pipeline struct {
	Store    *ArtifactStore
	Dedup    *Deduplicator
	Embedder Embedder
	Chunker  Chunker
	Workers  int
	Metrics  AppMetrics
}

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*Pipeline)

// WithWorkers sets the per-category worker count. Values below one keep
// the default.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.Workers = n
		}
	}
}

// WithChunker overrides the default sliding-window chunker.
func WithChunker(c Chunker) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.Chunker = c
		}
	}
}

// WithMetrics attaches an AppMetrics sink to the pipeline.
func WithMetrics(m AppMetrics) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.Metrics = m
		}
	}
}

// NewPipeline wires an ingestion pipeline over the artifact store, the
// deduplicating index writer, and the embedder.
func NewPipeline(store *ArtifactStore, dedup *Deduplicator, embedder Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		Store:    store,
		Dedup:    dedup,
		Embedder: embedder,
		Chunker:  SlidingChunker{},
		Workers:  defaultIngestWorkers,
		Metrics:  NoopAppMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return defaultIngestWorkers
}

// IngestBatch ingests every document of the batch manifest's categories
// for batchDate and persists the resulting ingestion manifest.
//
// Per-document failures are recorded as "<file>: <message>" entries in
// the category stats and do not fail the run; a category that cannot be
// listed at all flips Success to false and returns an error alongside
// the manifest. The manifest is returned in both cases so callers can
// inspect partial progress.
func (p *Pipeline) IngestBatch(ctx context.Context, batchDate string) (*IngestionManifest, error) {
	if p.Embedder == nil {
		return nil, ErrEmbedderNotConfigured
	}

	batch, err := p.Store.ReadBatchManifest(ctx, batchDate)
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	manifest := &IngestionManifest{
		RunID:               uuid.NewString(),
		BatchDate:           batchDate,
		StartedAt:           started,
		CategoriesProcessed: make(map[string]*CategoryStats),
		Success:             true,
	}

	log := slog.Default().With("run_id", manifest.RunID, "batch_date", batchDate)
	log.InfoContext(ctx, "starting batch ingestion", "categories", len(batch.Categories))

	categories := make([]string, 0, len(batch.Categories))
	for category := range batch.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var runErr error
	for _, category := range categories {
		stats, err := p.ingestCategory(ctx, batchDate, category)
		manifest.CategoriesProcessed[category] = stats
		manifest.DocumentsProcessed += stats.DocumentsProcessed
		manifest.ChunksCreated += stats.ChunksCreated
		manifest.ChunksIndexed += stats.ChunksIndexed
		if err != nil {
			manifest.Success = false
			if runErr == nil {
				runErr = fmt.Errorf("ingest category %s: %w", category, err)
			}
			log.ErrorContext(ctx, "category ingestion failed", "category", category, "error", err)
			continue
		}
		log.InfoContext(ctx, "category ingested",
			"category", category,
			"documents", stats.DocumentsProcessed,
			"chunks_indexed", stats.ChunksIndexed,
			"errors", len(stats.Errors),
		)
	}

	manifest.CompletedAt = time.Now().UTC()
	p.Metrics.RecordIngest(batchDate, time.Since(started).Milliseconds(),
		manifest.DocumentsProcessed, manifest.ChunksIndexed, runErr)

	if err := p.Store.WriteIngestionManifest(ctx, manifest); err != nil {
		manifest.Success = false
		log.ErrorContext(ctx, "failed to persist ingestion manifest", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("write ingestion manifest for %s: %w", batchDate, err)
		}
	}

	log.InfoContext(ctx, "batch ingestion finished",
		"documents_processed", manifest.DocumentsProcessed,
		"chunks_indexed", manifest.ChunksIndexed,
		"success", manifest.Success,
	)
	return manifest, runErr
}

// ReindexBatch re-runs ingestion for a batch that was already ingested.
// The deterministic fragment keys make this safe: unchanged documents
// are skipped and changed ones replace their own fragments in place.
func (p *Pipeline) ReindexBatch(ctx context.Context, batchDate string) (*IngestionManifest, error) {
	slog.Default().InfoContext(ctx, "reindexing batch", "batch_date", batchDate)
	return p.IngestBatch(ctx, batchDate)
}

// ListIngestedBatches returns every batch date present in storage along
// with whether it has been ingested, sorted ascending by date.
func (p *Pipeline) ListIngestedBatches(ctx context.Context) ([]BatchStatus, error) {
	dates, err := p.Store.ListBatchDates(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]BatchStatus, 0, len(dates))
	for _, date := range dates {
		ingested, err := p.Store.HasIngestionManifest(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("check ingestion manifest for %s: %w", date, err)
		}
		statuses = append(statuses, BatchStatus{BatchDate: date, Ingested: ingested})
	}
	return statuses, nil
}

// ingestCategory fans a category's document files out over a bounded
// worker pool. The returned stats are complete even when err is non-nil.
func (p *Pipeline) ingestCategory(ctx context.Context, batchDate, category string) (*CategoryStats, error) {
	stats := &CategoryStats{
		Errors:             make([]string, 0),
		TruncatedDocuments: make([]string, 0),
	}

	files, err := p.Store.ListDocuments(ctx, batchDate, category)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, nil
	}

	workers := p.workers()
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filename := range jobs {
				created, indexed, truncated, err := p.ingestDocument(ctx, batchDate, category, filename)

				mu.Lock()
				if err != nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", filename, err))
				} else {
					stats.DocumentsProcessed++
					stats.ChunksCreated += created
					stats.ChunksIndexed += indexed
					if truncated {
						stats.TruncatedDocuments = append(stats.TruncatedDocuments, filename)
					}
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, filename := range files {
		select {
		case jobs <- filename:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sort.Strings(stats.Errors)
	sort.Strings(stats.TruncatedDocuments)
	return stats, ctx.Err()
}

// ingestDocument loads, chunks, and replace-indexes one document file.
// Returns chunks created, chunks indexed (zero when the document was
// unchanged and skipped), and whether chunking truncated the document.
func (p *Pipeline) ingestDocument(ctx context.Context, batchDate, category, filename string) (created, indexed int, truncated bool, err error) {
	doc, err := p.Store.LoadDocument(ctx, batchDate, category, filename)
	if err != nil {
		return 0, 0, false, err
	}

	result, err := p.Chunker.Chunk(ctx, *doc)
	if err != nil {
		return 0, 0, false, fmt.Errorf("chunk: %w", err)
	}
	created = len(result.Fragments)
	if created == 0 {
		return 0, 0, result.Truncated, nil
	}
	if result.Truncated {
		slog.Default().WarnContext(ctx, "document truncated during chunking",
			"file", filename,
			"document_hash", doc.Hash(),
			"chunks_kept", created,
		)
	}

	embedStart := time.Now()
	indexed, err = p.Dedup.ReplaceDocumentChunks(ctx, result.Fragments, p.Embedder)
	p.Metrics.RecordEmbed(category, time.Since(embedStart).Milliseconds(), err)
	if err != nil {
		return created, 0, result.Truncated, err
	}
	return created, indexed, result.Truncated, nil
}
