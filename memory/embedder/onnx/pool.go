package onnx

import (
	"fmt"
	"math"
)

// pool reduces a model output to a single unit-length embedding of dims.
//
// Shape [1, dims] is already pooled. Shape [1, seq, dims] is mean pooled
// over the positions where mask is 1.
func pool(data []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output has %d values, want %d", len(data), dims)
		}
		out := make([]float32, dims)
		copy(out, data[:dims])
		return normalize(out), nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("batch size %d, want 1", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != dims {
			return nil, fmt.Errorf("hidden size %d, want %d", hidden, dims)
		}
		if len(data) < seqLen*hidden {
			return nil, fmt.Errorf("output has %d values, want %d", len(data), seqLen*hidden)
		}

		out := make([]float32, dims)
		var attended float32
		for i := 0; i < seqLen && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				out[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range out {
			out[j] /= attended
		}
		return normalize(out), nil
	}
	return nil, fmt.Errorf("unexpected output shape %v", shape)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
