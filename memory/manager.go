package memory

import (
	"context"
	"log"
	"sort"
)

// LongTermMemory remembers past exchanges per owner.
//
// It wraps an Embedder and an Index and keeps its vectors in a dedicated
// namespace so memory lifecycle stays independent of uploaded documents.
type LongTermMemory struct {
	index    Index
	embedder Embedder
	config   *Config
}

var _ Manager = (*LongTermMemory)(nil)

// NewLongTermMemory creates a LongTermMemory and asserts its namespace.
// A failure to create the namespace is logged, not returned: another
// instance may have won the race, and the index re-asserts the namespace on
// the first write.
func NewLongTermMemory(ctx context.Context, index Index, embedder Embedder, config *Config) *LongTermMemory {
	if config == nil {
		config = DefaultConfig
	}
	m := &LongTermMemory{
		index:    index,
		embedder: embedder,
		config:   config,
	}
	if config.Enabled {
		if err := index.EnsureIndex(ctx, config.Namespace, embedder.Dimensions()); err != nil {
			log.Printf("[MEMORY] Could not ensure memory index %q exists: %v", config.Namespace, err)
		}
	}
	return m
}

// Store embeds text and writes it as a new memory for ownerID.
func (m *LongTermMemory) Store(ctx context.Context, ownerID string, text string, metadata map[string]string) bool {
	if !m.config.Enabled {
		return false
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[MEMORY] Error storing memory: embed: %v", err)
		return false
	}

	now := nowUTC()
	rec := &Record{
		ID:        newRecordID(ownerID, now),
		OwnerID:   ownerID,
		Text:      text,
		Embedding: embedding,
		CreatedAt: now,
		Metadata:  metadata,
	}

	if err := m.index.Upsert(ctx, m.config.Namespace, []Vector{rec.toVector()}); err != nil {
		log.Printf("[MEMORY] Error storing memory: upsert: %v", err)
		return false
	}

	log.Printf("[MEMORY] Stored memory id=%s owner=%s (%d chars)", rec.ID, ownerID, len(text))
	return true
}

// Search returns up to topK memories of ownerID ordered by descending score.
func (m *LongTermMemory) Search(ctx context.Context, ownerID string, query string, topK int) []SearchResult {
	if !m.config.Enabled || topK <= 0 {
		return nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] Error searching memories: embed: %v", err)
		return nil
	}

	matches, err := m.index.Query(ctx, m.config.Namespace, embedding, topK, map[string]string{OwnerKey: ownerID})
	if err != nil {
		log.Printf("[MEMORY] Error searching memories: query: %v", err)
		return nil
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, searchResultFromMatch(match))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(results), truncateLog(query, 50))
	return results
}

// truncateLog truncates text to maxLen runes for logging.
func truncateLog(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
