package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "all-minilm"
)

// OllamaEmbedder implements Embedder and BatchEmbedder using the Ollama
// /api/embed endpoint, which accepts either a single string or an array
// of inputs.
type OllamaEmbedder struct {
	BaseURL string
	Model   string
}

// NewOllamaEmbedder creates an Ollama embedder with optional overrides.
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		trimmedBaseURL = defaultOllamaBaseURL
	}

	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = defaultOllamaModel
	}

	return &OllamaEmbedder{
		BaseURL: trimmedBaseURL,
		Model:   trimmedModel,
	}
}

// Embed requests a single vector embedding from Ollama.
func (o *OllamaEmbedder) Embed(ctx context.Context, input string) ([]float32, error) {
	vectors, err := o.embed(ctx, input)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch requests embeddings for all inputs in one round trip.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	vectors, err := o.embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(vectors), len(inputs))
	}
	return vectors, nil
}

func (o *OllamaEmbedder) embed(ctx context.Context, input any) ([][]float32, error) {
	requestBody, err := json.Marshal(map[string]any{
		"model": o.Model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama embed request: %w", err)
	}

	endpoint := strings.TrimRight(o.BaseURL, "/") + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request embeddings from ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(body) == 0 {
			return nil, fmt.Errorf("ollama embed request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama embed request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama embed response: %w", err)
	}

	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed response contained empty embeddings")
	}

	vectors := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Ping validates Ollama connectivity by requesting a short embedding.
func (o *OllamaEmbedder) Ping(ctx context.Context) error {
	_, err := o.Embed(ctx, "ping")
	return err
}
