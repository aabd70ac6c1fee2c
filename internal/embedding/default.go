package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DefaultModelName is used when no provider is configured. It is never
// substituted for a configured model that is failing (§10); it exists so a
// fresh vault has a working semantic index before any API key is set.
const DefaultModelName = "secondloop-default-embed-v0"

// DefaultDims matches the vec0 virtual table's fixed dimension (§4.5).
const DefaultDims = 384

// NewDefault returns the deterministic, offline fallback embedder. It hashes
// each text into a fixed-size pseudo-embedding so that identical text always
// maps to the same vector and distinct text maps to (with high probability)
// distinguishable vectors, without any network dependency.
func NewDefault() Embedder {
	return &funcEmbedder{
		modelName: DefaultModelName,
		dims:      DefaultDims,
		embed: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = normalize(hashEmbed(text, DefaultDims))
			}
			return out, nil
		},
	}
}

func hashEmbed(text string, dims int) []float64 {
	out := make([]float64, dims)
	block := sha256.Sum256([]byte(text))
	state := block[:]
	for i := 0; i < dims; i++ {
		if i > 0 && i%len(state) == 0 {
			next := sha256.Sum256(state)
			state = next[:]
		}
		b := state[i%len(state)]
		// Map a byte to roughly [-1, 1] so components spread across the
		// unit hypersphere after normalization rather than clustering near
		// the origin.
		out[i] = (float64(b)/127.5 - 1) * math.Sqrt(float64(dims))
	}
	return out
}
