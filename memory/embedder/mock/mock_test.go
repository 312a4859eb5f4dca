package mock

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbed_Deterministic(t *testing.T) {
	e := New()
	a, _ := e.Embed(context.Background(), "Hello, World")
	b, _ := e.Embed(context.Background(), "hello world")
	if math.Abs(cosine(a, b)-1) > 1e-5 {
		t.Errorf("Expected identical embeddings after normalization, cosine=%v", cosine(a, b))
	}
}

func TestEmbed_OverlapScoresHigher(t *testing.T) {
	e := New()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "favorite color")
	near, _ := e.Embed(ctx, "my favorite color is green")
	far, _ := e.Embed(ctx, "the train leaves at noon")

	if cosine(q, near) <= cosine(q, far) {
		t.Errorf("Expected overlapping text to score higher: near=%v far=%v", cosine(q, near), cosine(q, far))
	}
}

func TestEmbed_EmptyTextIsUnitVector(t *testing.T) {
	v, err := New().Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(v) != Dims {
		t.Fatalf("Expected %d dims, got %d", Dims, len(v))
	}
	if math.Abs(cosine(v, v)-1) > 1e-5 {
		t.Errorf("Expected unit vector, norm^2=%v", cosine(v, v))
	}
}
