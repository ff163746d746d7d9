package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/docfoundry/ingestcore/ingest"

	"github.com/labstack/echo/v4"
)

type Dependencies struct {
	AppMetrics   ingest.AppMetrics
	IngestBatch  func(context.Context, string) (*ingest.IngestionManifest, error)
	ReindexBatch func(context.Context, string) (*ingest.IngestionManifest, error)
	ListBatches  func(context.Context) ([]ingest.BatchStatus, error)
	GetFragments func(ctx context.Context, hash string, includeMetadata bool) (*ingest.DocumentFragments, error)
	GetRelated   func(ctx context.Context, hash string, targetIndex, window int) (*ingest.DocumentFragments, error)
	Logger       *slog.Logger
}

var (
	batchDateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	documentHashRe  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

const defaultContextWindow = 2

func Register(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.AppMetrics
	if metrics == nil {
		metrics = ingest.NoopAppMetrics{}
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})
	e.GET("/metrics/app", func(c echo.Context) error {
		return c.JSON(http.StatusOK, metrics.Snapshot())
	})

	e.GET("/batches", func(c echo.Context) error {
		if deps.ListBatches == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "pipeline unavailable"})
		}
		statuses, err := deps.ListBatches(c.Request().Context())
		if err != nil {
			return WriteError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"batches": statuses})
	})

	runBatch := func(c echo.Context, name string, run func(context.Context, string) (*ingest.IngestionManifest, error)) error {
		if run == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "pipeline unavailable"})
		}
		batchDate := c.Param("date")
		if !batchDateFormat.MatchString(batchDate) {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "batch date must be YYYY-MM-DD"})
		}

		manifest, err := run(c.Request().Context(), batchDate)
		if err != nil {
			logger.ErrorContext(c.Request().Context(), name+" failed",
				"batch_date", batchDate,
				"error", err,
			)
			if manifest != nil {
				// partial run: surface the manifest with the failure
				return c.JSON(http.StatusInternalServerError, map[string]any{
					"error":    err.Error(),
					"manifest": manifest,
				})
			}
			return WriteError(c, err)
		}

		logger.InfoContext(c.Request().Context(), name+" completed",
			"batch_date", batchDate,
			"run_id", manifest.RunID,
			"documents_processed", manifest.DocumentsProcessed,
			"chunks_indexed", manifest.ChunksIndexed,
		)
		return c.JSON(http.StatusOK, manifest)
	}

	e.POST("/batches/:date/ingest", func(c echo.Context) error {
		return runBatch(c, "batch ingest", deps.IngestBatch)
	})
	e.POST("/batches/:date/reindex", func(c echo.Context) error {
		return runBatch(c, "batch reindex", deps.ReindexBatch)
	})

	e.GET("/documents/:hash/fragments", func(c echo.Context) error {
		if deps.GetFragments == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "reader unavailable"})
		}
		hash := c.Param("hash")
		if !documentHashRe.MatchString(hash) {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "document hash must be 16 hex characters"})
		}
		includeMetadata := parseBoolParam(c.QueryParam("include_metadata"))

		out, err := deps.GetFragments(c.Request().Context(), hash, includeMetadata)
		if err != nil {
			return WriteError(c, err)
		}
		if !out.Found {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "document not found", "document_hash": hash})
		}
		return c.JSON(http.StatusOK, out)
	})

	e.GET("/documents/:hash/context", func(c echo.Context) error {
		if deps.GetRelated == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "reader unavailable"})
		}
		hash := c.Param("hash")
		if !documentHashRe.MatchString(hash) {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "document hash must be 16 hex characters"})
		}

		targetIndex := -1
		if raw := strings.TrimSpace(c.QueryParam("chunk_index")); raw != "" {
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return c.JSON(http.StatusBadRequest, map[string]any{"error": "chunk_index must be a non-negative integer"})
			}
			targetIndex = idx
		}
		window := defaultContextWindow
		if raw := strings.TrimSpace(c.QueryParam("window")); raw != "" {
			w, err := strconv.Atoi(raw)
			if err != nil || w < 0 {
				return c.JSON(http.StatusBadRequest, map[string]any{"error": "window must be a non-negative integer"})
			}
			window = w
		}

		out, err := deps.GetRelated(c.Request().Context(), hash, targetIndex, window)
		if err != nil {
			return WriteError(c, err)
		}
		if !out.Found {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "document not found", "document_hash": hash})
		}
		return c.JSON(http.StatusOK, out)
	})
}

func parseBoolParam(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func WriteError(c echo.Context, err error) error {
	if errors.Is(err, ingest.ErrManifestNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
}
