package memory

import (
	"context"
	"fmt"
	"time"
)

// OwnerKey is the metadata key every stored vector is filtered by.
const OwnerKey = "user_id"

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local MiniLM), cached (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Vector is one entry written to an index namespace.
type Vector struct {
	ID       string
	Values   []float32
	Content  string
	Metadata map[string]string
}

// Match is one similarity search hit.
type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// Index is the vector index client.
// Implementations: chromem.Store.
type Index interface {
	// EnsureIndex makes sure the namespace exists. It is idempotent.
	EnsureIndex(ctx context.Context, namespace string, dimensions int) error

	// Upsert writes vectors into namespace, replacing entries with the same ID.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// Query returns up to topK matches whose metadata equals every entry of
	// filter, sorted by descending score. An empty namespace yields no
	// matches and no error.
	Query(ctx context.Context, namespace string, embedding []float32, topK int, filter map[string]string) ([]Match, error)

	Close() error
}

// SearchResult is a memory returned by Manager.Search.
type SearchResult struct {
	Text      string            `json:"text"`
	Timestamp string            `json:"timestamp"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata"`
}

// Manager stores and retrieves long-term memories. Both operations degrade
// instead of failing: Store reports false, Search returns nothing.
type Manager interface {
	Store(ctx context.Context, ownerID string, text string, metadata map[string]string) bool
	Search(ctx context.Context, ownerID string, query string, topK int) []SearchResult
}

// EmbedAll embeds texts in order, stopping at the first failure.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text #%d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

// Config holds LongTermMemory configuration.
type Config struct {
	// Enabled toggles memory storage and retrieval.
	Enabled bool

	// Namespace is the index namespace memories are stored in. It must
	// differ from the knowledge-base namespace.
	Namespace string
}

// DefaultConfig returns the defaults used when no config is supplied.
var DefaultConfig = &Config{
	Enabled:   true,
	Namespace: "ai-assistant-index-memory",
}

func nowUTC() time.Time { return time.Now().UTC() }
