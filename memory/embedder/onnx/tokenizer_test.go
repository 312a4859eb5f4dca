package onnx

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = map[string]int64{
	"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
	"the": 1996, "play": 2377, "##ing": 2075, "un": 4895, "##aff": 10354,
	"##able": 3085, "!": 999, ",": 1010, "hello": 7592,
}

func TestTokenizer_WordPiece(t *testing.T) {
	tok := NewTokenizer(testVocab)

	assert.Equal(t, []int64{1996, 2377, 2075}, tok.Tokenize("The playing"))
	assert.Equal(t, []int64{4895, 10354, 3085}, tok.Tokenize("unaffable"))
	assert.Equal(t, []int64{7592, 1010, 1996, 999}, tok.Tokenize("Hello, the!"))
	// No full segmentation means the whole word is unknown.
	assert.Equal(t, []int64{100}, tok.Tokenize("playx"))
	assert.Empty(t, tok.Tokenize("   "))
}

func TestTokenizer_Encode(t *testing.T) {
	tok := NewTokenizer(testVocab)

	enc := tok.Encode("hello the", 6)
	assert.Equal(t, []int64{101, 7592, 1996, 102, 0, 0}, enc.InputIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, enc.AttentionMask)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0}, enc.TokenTypeIDs)

	enc = tok.Encode("the the the the the", 4)
	assert.Equal(t, []int64{101, 1996, 1996, 102}, enc.InputIDs)
	assert.Equal(t, []int64{1, 1, 1, 1}, enc.AttentionMask)
}

func TestLoadTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{"[CLS]":5,"[SEP]":6,"[UNK]":7,"hi":8}}}`), 0o600))

	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, 4, tok.VocabSize())
	assert.Equal(t, []int64{5, 8, 7, 6}, tok.Encode("hi there", 4).InputIDs)

	require.NoError(t, os.WriteFile(path, []byte(`{"model":{}}`), 0o600))
	_, err = LoadTokenizer(path)
	assert.Error(t, err)
}

func TestPool(t *testing.T) {
	// Two attended positions, one padded.
	data := []float32{
		1, 0,
		3, 0,
		100, 100,
	}
	vec, err := pool(data, []int64{1, 3, 2}, []int64{1, 1, 0}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vec[0], 1e-6)
	assert.InDelta(t, 0.0, vec[1], 1e-6)

	vec, err = pool([]float32{3, 4}, []int64{1, 2}, nil, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	_, err = pool(data, []int64{1, 3, 4}, []int64{1, 1, 0}, 2)
	assert.Error(t, err)
	_, err = pool(data, []int64{6}, nil, 2)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	vec := normalize([]float32{1, 2, 2})
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}
