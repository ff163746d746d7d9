package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeContentHash(t *testing.T) {
	doc := Document{
		Title:     "Memory Analysis",
		Content:   "Use MEMORY DOCTOR to diagnose fragmentation.",
		SourceURL: "https://example.com/memory",
	}

	hash := doc.ComputeContentHash()
	assert.Len(t, hash, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", hash)

	t.Run("stable across scrape time and other fields", func(t *testing.T) {
		other := doc
		other.ScrapedAt = time.Now()
		other.Category = CategoryEnterprise
		other.Metadata = map[string]any{"x": 1}
		assert.Equal(t, hash, other.ComputeContentHash())
	})

	t.Run("sensitive to identity fields", func(t *testing.T) {
		changed := doc
		changed.Content += " Updated."
		assert.NotEqual(t, hash, changed.ComputeContentHash())

		retitled := doc
		retitled.Title = "Memory Analysis v2"
		assert.NotEqual(t, hash, retitled.ComputeContentHash())

		moved := doc
		moved.SourceURL = "https://example.com/memory2"
		assert.NotEqual(t, hash, moved.ComputeContentHash())
	})

	t.Run("Hash prefers the stored value", func(t *testing.T) {
		pinned := doc
		pinned.ContentHash = "deadbeefdeadbeef"
		assert.Equal(t, "deadbeefdeadbeef", pinned.Hash())
		assert.Equal(t, hash, doc.Hash())
	})
}

func TestDocumentID(t *testing.T) {
	doc := Document{
		Title:     "Memory Analysis",
		Content:   "Use MEMORY DOCTOR to diagnose fragmentation.",
		SourceURL: "https://example.com/memory",
	}

	id := doc.DocumentID()
	assert.Regexp(t, "^[0-9a-f]{16}$", id)
	assert.NotEqual(t, doc.Hash(), id)

	t.Run("survives content edits", func(t *testing.T) {
		edited := doc
		edited.Content += " Rewritten with more detail."
		assert.Equal(t, id, edited.DocumentID())
		assert.NotEqual(t, doc.Hash(), edited.Hash())
	})

	t.Run("changes with title or source", func(t *testing.T) {
		retitled := doc
		retitled.Title = "Memory Analysis v2"
		assert.NotEqual(t, id, retitled.DocumentID())

		moved := doc
		moved.SourceURL = "https://example.com/memory2"
		assert.NotEqual(t, id, moved.DocumentID())
	})
}

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Redis Persistence", "redis_persistence"},
		{"punctuation collapses", "Redis: The Definitive Guide!!!", "redis_the_definitive_guide"},
		{"leading and trailing junk", "  --Hello, World--  ", "hello_world"},
		{"unicode letters kept", "Café Configuration", "café_configuration"},
		{"empty falls back", "???", "untitled"},
		{"blank falls back", "", "untitled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitizeTitle(tc.in))
		})
	}

	t.Run("long titles are capped", func(t *testing.T) {
		long := sanitizeTitle(strings.Repeat("very long title ", 20))
		assert.LessOrEqual(t, len(long), maxSanitizedTitleLen)
		assert.False(t, strings.HasSuffix(long, "_"))
	})
}

func TestFragmentKey(t *testing.T) {
	assert.Equal(t, "abc123_0", FragmentKey("abc123", 0))
	assert.Equal(t, "abc123_7", FragmentKey("abc123", 7))
}

func TestFragmentTitle(t *testing.T) {
	assert.Equal(t, "Guide", fragmentTitle("Guide", 0))
	assert.Equal(t, "Guide (Part 2)", fragmentTitle("Guide", 1))
	assert.Equal(t, "Guide (Part 5)", fragmentTitle("Guide", 4))
}
