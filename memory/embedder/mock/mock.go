package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockEmbedder is a deterministic embedder for tests and keyless local runs.
// It hashes lower-cased word tokens into buckets (feature hashing), so texts
// that share words score higher under cosine similarity than texts that
// don't.
type MockEmbedder struct {
	dimensions int
}

// Dims matches all-MiniLM-L6-v2.
const Dims = 384

// New creates a new mock embedder.
func New() *MockEmbedder {
	return &MockEmbedder{dimensions: Dims}
}

// NewWithDimensions creates a mock embedder of a custom size.
func NewWithDimensions(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = Dims
	}
	return &MockEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(m.dimensions))
		// The high bit picks the sign so unrelated tokens cancel out on average.
		if sum>>63 == 1 {
			embedding[bucket] -= 1
		} else {
			embedding[bucket] += 1
		}
	}

	// Empty text still yields a valid unit vector.
	if isZero(embedding) {
		embedding[0] = 1
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
