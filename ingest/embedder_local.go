package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	defaultLocalEmbedDim = 384
	localMinNgram        = 3
	localMaxNgram        = 6
)

var (
	localSeedIndex = []byte("ingestcore-subword-idx-v1::")
	localSeedSign  = []byte("ingestcore-subword-sgn-v1::")
)

// LocalEmbedder is a deterministic, pure-Go embedding implementation using
// character n-gram hashing. Fragments sharing subword structure produce
// similar vectors, which is enough for offline operation and tests; no
// external embedding service is required.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a local deterministic embedder with the given
// output dimensionality.
func NewLocalEmbedder(dim int) (*LocalEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEmbeddingDimension, dim)
	}
	return &LocalEmbedder{dim: dim}, nil
}

// Embed returns a deterministic embedding for the input text. Each word is
// decomposed into character n-grams, hashed into the vector space via the
// feature hashing trick, then word vectors are averaged and L2-normalized.
func (e *LocalEmbedder) Embed(_ context.Context, input string) ([]float32, error) {
	tokens := localTokenize(input)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("input has no indexable tokens")
	}

	vec := make([]float32, e.dim)
	for _, tok := range tokens {
		e.addWordVector(vec, tok)
	}

	scale := 1.0 / float32(len(tokens))
	for i := range vec {
		vec[i] *= scale
	}

	if !l2Normalize(vec) {
		return nil, fmt.Errorf("failed to build embedding: zero vector")
	}
	return vec, nil
}

// addWordVector hashes the bounded word and its character n-grams into vec.
func (e *LocalEmbedder) addWordVector(vec []float32, word string) {
	bounded := "<" + word + ">"
	runes := []rune(bounded)

	addHashedFeature(vec, bounded, e.dim)
	for n := localMinNgram; n <= localMaxNgram && n <= len(runes); n++ {
		for i := 0; i <= len(runes)-n; i++ {
			addHashedFeature(vec, string(runes[i:i+n]), e.dim)
		}
	}
}

func addHashedFeature(vec []float32, feature string, dim int) {
	idx := int(seededHash(localSeedIndex, feature) % uint64(dim))
	if seededHash(localSeedSign, feature)%2 == 1 {
		vec[idx] -= 1.0
	} else {
		vec[idx] += 1.0
	}
}

func localTokenize(input string) []string {
	tokens := make([]string, 0, len(input)/4)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tokens = append(tokens, b.String())
		b.Reset()
	}

	for _, r := range strings.ToLower(input) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func seededHash(seed []byte, token string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(seed)
	_, _ = h.Write([]byte(token))
	return h.Sum64()
}

func l2Normalize(vec []float32) bool {
	sumSq := 0.0
	for _, v := range vec {
		fv := float64(v)
		sumSq += fv * fv
	}
	if sumSq == 0 {
		return false
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
	return true
}
