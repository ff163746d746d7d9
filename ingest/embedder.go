package ingest

import "context"

// Embedder generates embeddings for text inputs.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// BatchEmbedder is an optional extension for embedding services that
// accept many inputs in one round trip.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
}

// EmbedAll embeds every input, using the batch form when the embedder
// supports it and falling back to one call per input otherwise.
func EmbedAll(ctx context.Context, e Embedder, inputs []string) ([][]float32, error) {
	if e == nil {
		return nil, ErrEmbedderNotConfigured
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if be, ok := e.(BatchEmbedder); ok {
		return be.EmbedBatch(ctx, inputs)
	}

	vectors := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := e.Embed(ctx, input)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}
