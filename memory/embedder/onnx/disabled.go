//go:build !onnx

// Package onnx embeds text locally through ONNX Runtime. Without the onnx
// build tag only the tokenizer is available and New fails.
package onnx

import (
	"context"
	"errors"
)

// ErrNotCompiled is returned when the binary was built without the onnx tag.
var ErrNotCompiled = errors.New("onnx embedder not compiled in: rebuild with -tags onnx")

// Config configures the ONNX embedder.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	Dimensions    int
	MaxSeqLen     int
}

// ONNXEmbedder is unavailable in this build.
type ONNXEmbedder struct{}

// New always fails without the onnx build tag.
func New(cfg Config) (*ONNXEmbedder, error) {
	return nil, ErrNotCompiled
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotCompiled
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
