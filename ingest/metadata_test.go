package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenMetadata(t *testing.T) {
	t.Run("empty input yields nil", func(t *testing.T) {
		assert.Nil(t, FlattenMetadata(nil))
		assert.Nil(t, FlattenMetadata(map[string]any{}))
	})

	t.Run("scalars and lists", func(t *testing.T) {
		got := FlattenMetadata(map[string]any{
			"team":     "sre",
			"priority": float64(3),
			"ratio":    1.5,
			"enabled":  true,
			"tags":     []any{"redis", "cluster", float64(7)},
			"aliases":  []string{"kb", "docs"},
			"note":     nil,
		})

		assert.Equal(t, map[string]string{
			"meta_team":     "sre",
			"meta_priority": "3",
			"meta_ratio":    "1.5",
			"meta_enabled":  "true",
			"meta_tags":     "redis,cluster,7",
			"meta_aliases":  "kb,docs",
			"meta_note":     "",
		}, got)
	})

	t.Run("nested maps join path segments", func(t *testing.T) {
		got := FlattenMetadata(map[string]any{
			"source": map[string]any{
				"kind": "scraper",
				"http": map[string]any{"status": float64(200)},
			},
			"labels": map[string]string{"env": "prod"},
		})

		assert.Equal(t, map[string]string{
			"meta_source_kind":        "scraper",
			"meta_source_http_status": "200",
			"meta_labels_env":         "prod",
		}, got)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := map[string]any{"nested": map[string]any{"a": "b"}}
		FlattenMetadata(in)
		assert.Equal(t, map[string]any{"nested": map[string]any{"a": "b"}}, in)
	})
}
