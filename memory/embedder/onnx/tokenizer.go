package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	unkToken = "[UNK]"

	// Words longer than this map straight to [UNK], as in BERT's WordPiece.
	maxWordRunes = 100
)

// Tokenizer is a lowercase BERT WordPiece tokenizer driven by the vocab of a
// HuggingFace tokenizer.json.
type Tokenizer struct {
	vocab         map[string]int64
	cls, sep, unk int64
}

// Encoding is a single padded model input.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// LoadTokenizer reads the vocab from a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var file struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocab", path)
	}
	return NewTokenizer(file.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer over vocab. Special token IDs default to
// the bert-base-uncased values when the vocab does not define them.
func NewTokenizer(vocab map[string]int64) *Tokenizer {
	lookup := func(tok string, def int64) int64 {
		if id, ok := vocab[tok]; ok {
			return id
		}
		return def
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   lookup(clsToken, 101),
		sep:   lookup(sepToken, 102),
		unk:   lookup(unkToken, 100),
	}
}

// VocabSize returns the number of vocab entries.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Tokenize returns the WordPiece IDs of text without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode wraps the tokens of text in [CLS] ... [SEP] and pads to maxLen.
// Overlong input is truncated.
func (t *Tokenizer) Encode(text string, maxLen int) Encoding {
	enc := Encoding{
		InputIDs:      make([]int64, maxLen),
		AttentionMask: make([]int64, maxLen),
		TokenTypeIDs:  make([]int64, maxLen),
	}
	ids := t.Tokenize(text)
	if len(ids) > maxLen-2 {
		ids = ids[:maxLen-2]
	}

	enc.InputIDs[0] = t.cls
	copy(enc.InputIDs[1:], ids)
	enc.InputIDs[len(ids)+1] = t.sep
	for i := 0; i < len(ids)+2; i++ {
		enc.AttentionMask[i] = 1
	}
	return enc
}

// splitWords splits on whitespace and isolates each punctuation rune as its
// own word.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPiece greedily matches the longest vocab prefix, continuing with
// "##" pieces. A word with any unmatched remainder becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}

	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64
		found := false
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, found = t.vocab[piece]; found {
				break
			}
		}
		if !found {
			return []int64{t.unk}
		}
		ids = append(ids, id)
		start = end
	}
	return ids
}
