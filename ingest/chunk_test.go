package ingest_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/ingest"
)

func TestChunk_ThousandWords(t *testing.T) {
	words := make([]string, 1000)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	text := strings.Join(words, " ")

	chunks := ingest.Chunk(text, 500)
	require.NotEmpty(t, chunks)

	var covered []string
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		parts := strings.Fields(c.Text)
		covered = append(covered, parts...)

		if i < len(chunks)-1 {
			length := 0
			for _, w := range parts {
				length += len(w) + 1
			}
			assert.GreaterOrEqual(t, length, 500, "chunk %d below threshold", i)
		}
	}
	assert.Equal(t, words, covered)
}

func TestChunk_Small(t *testing.T) {
	chunks := ingest.Chunk("  hello   world\n\tagain ", 500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world again", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, ingest.Chunk("", 500))
	assert.Empty(t, ingest.Chunk(" \n\t ", 500))
}

func TestChunk_ExactThreshold(t *testing.T) {
	// "abcd" contributes 5; two words reach 10 exactly.
	chunks := ingest.Chunk("abcd abcd abcd", 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcd abcd", chunks[0].Text)
	assert.Equal(t, "abcd", chunks[1].Text)
}

func TestChunk_LongWordIsNotSplit(t *testing.T) {
	long := strings.Repeat("x", 800)
	chunks := ingest.Chunk("a "+long+" b", 500)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a "+long, chunks[0].Text)
	assert.Equal(t, "b", chunks[1].Text)
}
