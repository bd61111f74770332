package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	a := Vector{1, 0, 0}
	b := Vector{0, 1, 0}

	assert.InDelta(t, 1.0, float64(a.Similarity(a)), 1e-6)
	assert.InDelta(t, 0.0, float64(a.Similarity(b)), 1e-6)
	assert.Zero(t, a.Similarity(Vector{1, 2})) // mismatched dims
	assert.Zero(t, Vector{}.Similarity(Vector{}))
}

func TestNormalize(t *testing.T) {
	v := Vector{3, 4}.Normalize()

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	zero := Vector{0, 0}
	assert.Equal(t, zero, zero.Normalize())
}

func TestConcat(t *testing.T) {
	got := Vector{1, 2}.Concat(Vector{3})
	assert.Equal(t, Vector{1, 2, 3}, got)
}

type countingProvider struct {
	calls int
	dim   int
}

func (p *countingProvider) Embed(_ context.Context, texts []string) ([]Vector, error) {
	p.calls++
	out := make([]Vector, len(texts))
	for i, text := range texts {
		out[i] = Vector{float32(len(text)), 1}
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return p.dim }
func (p *countingProvider) Model() string   { return "counting" }

func TestCachedProviderServesRepeatsFromCache(t *testing.T) {
	inner := &countingProvider{dim: 2}
	cached := NewCachedProvider(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	second, err := cached.Embed(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "all hits, no provider call")
	assert.Equal(t, first, second)

	// A mixed batch only forwards the misses.
	third, err := cached.Embed(ctx, []string{"aa", "cccc"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, first[0], third[0])
	assert.Equal(t, Vector{4, 1}, third[1])
}

func TestCachedProviderEvictsOldest(t *testing.T) {
	inner := &countingProvider{dim: 2}
	cached := NewCachedProvider(inner, 2)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = cached.Embed(ctx, []string{"c"}) // evicts "a"
	require.NoError(t, err)

	_, err = cached.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}
