// Package embeddings provides the embedding backends behind case retrieval:
// a hosted Voyage client, an OpenAI-compatible local server client, and an
// LRU-cached wrapper that spares the pool from being re-embedded per query.
package embeddings

import (
	"context"
	"math"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([]Vector, error)

	// Dimensions returns the embedding dimension for this model.
	Dimensions() int

	// Model returns the model identifier.
	Model() string
}

// Vector is a dense embedding vector.
type Vector []float32

// Similarity computes cosine similarity between two vectors, in [-1, 1].
func (v Vector) Similarity(other Vector) float32 {
	if len(v) != len(other) || len(v) == 0 {
		return 0
	}

	var dot, normV, normO float32
	for i := range v {
		dot += v[i] * other[i]
		normV += v[i] * v[i]
		normO += other[i] * other[i]
	}
	if normV == 0 || normO == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normV))) * float32(math.Sqrt(float64(normO))))
}

// Normalize returns a unit vector in the same direction.
func (v Vector) Normalize() Vector {
	var norm float32
	for _, val := range v {
		norm += val * val
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	out := make(Vector, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}

// Concat returns the concatenation [v ; other], the pairwise input shape
// the relevance head scores.
func (v Vector) Concat(other Vector) Vector {
	out := make(Vector, 0, len(v)+len(other))
	out = append(out, v...)
	out = append(out, other...)
	return out
}
