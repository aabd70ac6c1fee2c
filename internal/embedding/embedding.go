// Package embedding implements the pluggable embedder capability the vector
// index drives: {model_name, dim, embed}. Providers never silently downgrade
// to a different model on failure — a failing embed call returns an error
// and leaves the caller's needs_embedding flag untouched.
package embedding

import (
	"context"
	"math"
)

// Embedder is the capability contract every embedding backend implements.
type Embedder interface {
	ModelName() string
	Dims() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type funcEmbedder struct {
	modelName string
	dims      int
	embed     func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *funcEmbedder) ModelName() string { return f.modelName }
func (f *funcEmbedder) Dims() int         { return f.dims }
func (f *funcEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.embed(ctx, texts)
}

// normalize L2-normalizes vec in float64 precision (matching the provider's
// native response width) and narrows the result to float32 for storage in
// the vec0 virtual table.
func normalize(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	var sum float64
	for _, v := range vec {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v * v
		}
	}
	out := make([]float32, len(vec))
	if sum <= 0 {
		for i, v := range vec {
			out[i] = float32(v)
		}
		return out
	}
	mag := math.Sqrt(sum)
	if mag < 1e-10 {
		for i, v := range vec {
			out[i] = float32(v)
		}
		return out
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		} else {
			out[i] = float32(v / mag)
		}
	}
	return out
}
