package tools

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

const (
	defaultTopK     = 5
	upsertBatchSize = 100
)

// DocumentChunk is a chunk handed to the knowledge base for indexing.
type DocumentChunk struct {
	Text       string
	Source     string
	ChunkIndex int
}

// KnowledgeHit is one knowledge-base search result.
type KnowledgeHit struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// KnowledgeBase searches and indexes a user's uploaded documents.
type KnowledgeBase struct {
	index     memory.Index
	embedder  memory.Embedder
	namespace string
}

// NewKnowledgeBase creates a KnowledgeBase over the given namespace and
// asserts the namespace exists. Creation failures are logged: the index
// creates missing namespaces on first write.
func NewKnowledgeBase(ctx context.Context, index memory.Index, embedder memory.Embedder, namespace string) *KnowledgeBase {
	if err := index.EnsureIndex(ctx, namespace, embedder.Dimensions()); err != nil {
		log.Printf("[TOOLS] Could not ensure knowledge index %q exists: %v", namespace, err)
	}
	return &KnowledgeBase{index: index, embedder: embedder, namespace: namespace}
}

// Search returns up to topK chunks of ownerID's documents most similar to query.
func (kb *KnowledgeBase) Search(ctx context.Context, ownerID, query string, topK int) ([]KnowledgeHit, error) {
	embedding, err := kb.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := kb.index.Query(ctx, kb.namespace, embedding, topK, map[string]string{memory.OwnerKey: ownerID})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]KnowledgeHit, 0, len(matches))
	for _, m := range matches {
		idx, _ := strconv.Atoi(m.Metadata["chunk_index"])
		text := m.Metadata["text"]
		if text == "" {
			text = m.Content
		}
		hits = append(hits, KnowledgeHit{
			Text:       text,
			Source:     m.Metadata["source"],
			ChunkIndex: idx,
			Score:      m.Score,
		})
	}
	return hits, nil
}

// AddDocumentChunks embeds chunks and upserts them in batches of 100 with
// ids "<documentID>_chunk_<i>". Earlier batches stay indexed when a later
// one fails.
func (kb *KnowledgeBase) AddDocumentChunks(ctx context.Context, ownerID, documentID string, chunks []DocumentChunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := memory.EmbedAll(ctx, kb.embedder, texts)
	if err != nil {
		return err
	}

	vectors := make([]memory.Vector, 0, len(chunks))
	for i, c := range chunks {
		vectors = append(vectors, memory.Vector{
			ID:      fmt.Sprintf("%s_chunk_%d", documentID, i),
			Values:  embeddings[i],
			Content: c.Text,
			Metadata: map[string]string{
				memory.OwnerKey: ownerID,
				"document_id":   documentID,
				"text":          c.Text,
				"source":        c.Source,
				"chunk_index":   strconv.Itoa(c.ChunkIndex),
			},
		})
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := kb.index.Upsert(ctx, kb.namespace, vectors[start:end]); err != nil {
			return fmt.Errorf("upsert chunks %d-%d: %w", start, end-1, err)
		}
	}

	log.Printf("[TOOLS] Indexed %d chunks for document %s", len(vectors), documentID)
	return nil
}

// NewKnowledgeBaseTool creates the search_knowledge_base tool. The owner
// comes from the turn, never from model input.
func NewKnowledgeBaseTool(kb *KnowledgeBase) core.Tool {
	return New(core.ToolSearchKnowledgeBase).
		Description("Search through the user's uploaded documents and knowledge base. Use this when the user asks about their documents, files, or any information they've previously uploaded.").
		Schema(searchSchema("Search query to find relevant information in user's documents",
			"top_k", "Number of top results to return", defaultTopK)).
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			query := core.StringArg(params.Input, "query", "")
			topK := core.IntArg(params.Input, "top_k", defaultTopK)
			if topK <= 0 {
				topK = defaultTopK
			}

			hits, err := kb.Search(ctx, params.UserID, query, topK)
			if err != nil {
				log.Printf("[TOOLS] search_knowledge_base failed: %v", err)
				return core.ToolResult{
					"error":   fmt.Sprintf("Knowledge base search failed: %v", err),
					"query":   query,
					"results": []interface{}{},
					"count":   0,
				}
			}

			results := make([]interface{}, 0, len(hits))
			for _, h := range hits {
				results = append(results, map[string]interface{}{
					"text":        h.Text,
					"source":      h.Source,
					"chunk_index": h.ChunkIndex,
					"score":       h.Score,
				})
			}
			return core.ToolResult{
				"query":   query,
				"results": results,
				"count":   len(results),
			}
		})
}
