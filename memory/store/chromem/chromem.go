package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-assistant/memory"
)

// Store wraps chromem-go as a namespaced vector index.
// chromem-go is a pure Go, embedded vector database; every namespace maps to
// one collection.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	dims        map[string]int
	mu          sync.RWMutex
}

var _ memory.Index = (*Store)(nil)

// New creates an in-memory store.
func New() (*Store, error) {
	return newStore(chromem.NewDB()), nil
}

// NewPersistent creates a store that persists collections under path.
func NewPersistent(path string, compress bool) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db at %s: %w", path, err)
	}
	return newStore(db), nil
}

func newStore(db *chromem.DB) *Store {
	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		dims:        make(map[string]int),
	}
}

// EnsureIndex creates the namespace if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context, namespace string, dimensions int) error {
	if _, err := s.collection(namespace); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.dims[namespace]; !ok && dimensions > 0 {
		s.dims[namespace] = dimensions
	}
	s.mu.Unlock()
	return nil
}

// collection returns the collection for a namespace, creating it on first use.
func (s *Store) collection(namespace string) (*chromem.Collection, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace must not be empty")
	}

	s.mu.RLock()
	col, exists := s.collections[namespace]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[namespace]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(
		namespace,
		map[string]string{"metric": "cosine"},
		nil, // No embedding func: vectors are always supplied
	)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", namespace, err)
	}

	log.Printf("[CHROMEM] Using collection %s (%d documents)", namespace, col.Count())
	s.collections[namespace] = col
	return col, nil
}

// Upsert writes vectors, replacing any with the same ID.
func (s *Store) Upsert(ctx context.Context, namespace string, vectors []memory.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}

	s.mu.RLock()
	want := s.dims[namespace]
	s.mu.RUnlock()

	docs := make([]chromem.Document, 0, len(vectors))
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector id must not be empty")
		}
		if want > 0 && len(v.Values) != want {
			return fmt.Errorf("vector %s has %d dimensions, namespace %s expects %d", v.ID, len(v.Values), namespace, want)
		}
		docs = append(docs, chromem.Document{
			ID:        v.ID,
			Content:   v.Content,
			Embedding: v.Values,
			Metadata:  v.Metadata,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents to %s: %w", namespace, err)
	}

	log.Printf("[CHROMEM] Upserted %d vectors into %s", len(docs), namespace)
	return nil
}

// Query retrieves vectors by similarity. Only entries whose metadata matches
// every filter pair are considered.
func (s *Store) Query(ctx context.Context, namespace string, embedding []float32, topK int, filter map[string]string) ([]memory.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	col, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	limit := topK
	if limit > count {
		limit = count
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	// A where clause can leave fewer candidates than limit.
	// Retry with smaller limits if necessary
	var results []chromem.Result
	for ; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query %s: %w", namespace, err)
		}
		if limit == 1 {
			return nil, nil
		}
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

// Close releases resources. Persistent collections are written on every
// upsert, so there is nothing to flush.
func (s *Store) Close() error {
	return nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
