package ingest

import "time"

// BatchManifest summarizes one dated batch of raw documents, written when
// the batch is persisted and read back as the precondition for ingestion.
type BatchManifest struct {
	BatchDate      string         `json:"batch_date"`
	TotalDocuments int            `json:"total_documents"`
	Categories     map[string]int `json:"categories"`
	DocumentTypes  map[string]int `json:"document_types"`
	Sources        []string       `json:"sources"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CategoryStats accumulates per-category ingestion results. Errors holds
// one "<file>: <message>" entry per failed document; a non-empty list does
// not by itself fail the batch.
type CategoryStats struct {
	DocumentsProcessed int      `json:"documents_processed"`
	ChunksCreated      int      `json:"chunks_created"`
	ChunksIndexed      int      `json:"chunks_indexed"`
	Errors             []string `json:"errors"`
	TruncatedDocuments []string `json:"truncated_documents,omitempty"`
}

// IngestionManifest records one ingestion run over a batch: per-category
// stats, batch totals, and the success flag. It is persisted next to the
// batch manifest and its presence marks the batch as ingested.
type IngestionManifest struct {
	RunID               string                    `json:"run_id"`
	BatchDate           string                    `json:"batch_date"`
	StartedAt           time.Time                 `json:"started_at"`
	CompletedAt         time.Time                 `json:"completed_at"`
	DocumentsProcessed  int                       `json:"documents_processed"`
	ChunksCreated       int                       `json:"chunks_created"`
	ChunksIndexed       int                       `json:"chunks_indexed"`
	CategoriesProcessed map[string]*CategoryStats `json:"categories_processed"`
	Success             bool                      `json:"success"`
}

// BatchStatus pairs an available batch date with whether an ingestion
// manifest exists for it.
type BatchStatus struct {
	BatchDate string `json:"batch_date"`
	Ingested  bool   `json:"ingested"`
}
