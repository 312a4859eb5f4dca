//go:build onnx

// Package onnx embeds text locally with a sentence-transformer model
// (all-MiniLM-L6-v2 by default) through ONNX Runtime.
//
// Build with -tags onnx and point Config at model.onnx, tokenizer.json and
// the onnxruntime shared library.
package onnx

import (
	"context"
	"fmt"
	"log"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"last_hidden_state"}
)

// Config configures the ONNX embedder.
type Config struct {
	ModelPath     string
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform loader search path.
	LibraryPath string

	// Dimensions is the model's hidden size (default: 384).
	Dimensions int

	// MaxSeqLen caps the token sequence, [CLS] and [SEP] included (default: 128).
	MaxSeqLen int
}

// ONNXEmbedder implements memory.Embedder.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxSeqLen  int

	// Run is not safe for concurrent use on one session.
	mu sync.Mutex
}

// New loads the tokenizer and model.
func New(cfg Config) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSeqLen < 3 {
		cfg.MaxSeqLen = 128
	}

	// The runtime environment is process-wide.
	initOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", initErr)
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	log.Printf("[ONNX] Loaded %s (%d dims, %d vocab entries, max %d tokens)",
		cfg.ModelPath, cfg.Dimensions, tokenizer.VocabSize(), cfg.MaxSeqLen)

	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxSeqLen:  cfg.MaxSeqLen,
	}, nil
}

// Embed converts text to a unit-length embedding.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := e.tokenizer.Encode(text, e.maxSeqLen)
	shape := ort.NewShape(1, int64(e.maxSeqLen))

	inputs := make([]ort.Value, 0, len(inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for i, data := range [][]int64{enc.InputIDs, enc.AttentionMask, enc.TokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", inputNames[i], err)
		}
		inputs = append(inputs, t)
	}

	// nil outputs are allocated by Run.
	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx inference returned no output")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return pool(out.GetData(), out.GetShape(), enc.AttentionMask, e.dimensions)
}

// Dimensions returns the embedding size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session.
func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}
