package ingest

import "strings"

// DefaultChunkSize is the character threshold at which a chunk is emitted.
const DefaultChunkSize = 500

// TextChunk is one ordered piece of a document.
type TextChunk struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
}

// Chunk splits text into whitespace-delimited words and groups them
// greedily. Each word adds len(word)+1 to the running length; a chunk is
// emitted as soon as the length reaches size, and any trailing words form a
// final, possibly shorter, chunk. Words are never split.
func Chunk(text string, size int) []TextChunk {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var (
		chunks  []TextChunk
		current []string
		length  int
	)
	for _, word := range strings.Fields(text) {
		current = append(current, word)
		length += len(word) + 1
		if length >= size {
			chunks = append(chunks, TextChunk{Text: strings.Join(current, " "), ChunkIndex: len(chunks)})
			current = current[:0]
			length = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, TextChunk{Text: strings.Join(current, " "), ChunkIndex: len(chunks)})
	}
	return chunks
}
