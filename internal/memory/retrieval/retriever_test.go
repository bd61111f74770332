package retrieval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/embeddings"
)

// hashProvider maps each text to a deterministic 2-dim vector.
type hashProvider struct{}

func (hashProvider) Embed(_ context.Context, texts []string) ([]embeddings.Vector, error) {
	out := make([]embeddings.Vector, len(texts))
	for i, text := range texts {
		var sum float32
		for _, r := range text {
			sum += float32(r % 7)
		}
		out[i] = embeddings.Vector{sum / 100, float32(len(text)) / 100}
	}
	return out, nil
}

func (hashProvider) Dimensions() int { return 2 }
func (hashProvider) Model() string   { return "hash" }

func testHead(t *testing.T) *Head {
	t.Helper()
	h := &Head{
		InputDim:  4,
		HiddenDim: 3,
		W1: [][]float32{
			{0.5, -0.2, 0.1, 0.3},
			{-0.4, 0.6, 0.2, -0.1},
			{0.05, 0.05, -0.3, 0.2},
		},
		B1: []float32{0.1, -0.1, 0},
		W2: [][]float32{
			{0.3, -0.2, 0.5},
			{-0.1, 0.4, 0.2},
		},
		B2: []float32{0, 0.1},
	}
	require.NoError(t, h.validate())
	return h
}

// fixedProvider returns a preassigned vector per text.
type fixedProvider map[string]embeddings.Vector

func (p fixedProvider) Embed(_ context.Context, texts []string) ([]embeddings.Vector, error) {
	out := make([]embeddings.Vector, len(texts))
	for i, text := range texts {
		out[i] = p[text]
	}
	return out, nil
}

func (fixedProvider) Dimensions() int { return 2 }
func (fixedProvider) Model() string   { return "fixed" }

func TestRetrieveCosineFallback(t *testing.T) {
	provider := fixedProvider{
		"north":      {0, 2},
		"aligned":    {0, 5},
		"orthogonal": {3, 0},
		"opposite":   {0, -1},
	}
	r := NewRetriever(provider, nil)

	texts := []string{"aligned", "orthogonal", "opposite"}
	meta := make([]casebank.CaseMeta, len(texts))
	for i, q := range texts {
		meta[i] = casebank.CaseMeta{Query: q}
	}

	got, err := r.Retrieve(context.Background(), "north", texts, meta)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Magnitude must not matter, only direction.
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.InDelta(t, 0.5, got[1].Score, 1e-6)
	assert.InDelta(t, 0.0, got[2].Score, 1e-6)

	ranked := TopK(got, 3)
	assert.Equal(t, "aligned", ranked[0].Query)
	assert.Equal(t, "orthogonal", ranked[1].Query)
	assert.Equal(t, "opposite", ranked[2].Query)
}

func pool(queries ...string) ([]string, []casebank.CaseMeta) {
	texts := make([]string, len(queries))
	meta := make([]casebank.CaseMeta, len(queries))
	for i, q := range queries {
		texts[i] = casebank.RenderCaseText(q, nil)
		meta[i] = casebank.CaseMeta{Query: q, Label: casebank.LabelPositive}
	}
	return texts, meta
}

func TestRetrieveScoresEveryEntryInRange(t *testing.T) {
	r := NewRetriever(hashProvider{}, testHead(t))
	texts, meta := pool("alpha", "beta question", "a much longer gamma question")

	results, err := r.Retrieve(context.Background(), "what is gamma?", texts, meta)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
		assert.Equal(t, texts[i], res.Text)
		assert.Equal(t, meta[i].Query, res.Query)
	}
}

func TestRetrieveEmptyPool(t *testing.T) {
	r := NewRetriever(hashProvider{}, testHead(t))

	results, err := r.Retrieve(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveMismatchedMetadata(t *testing.T) {
	r := NewRetriever(hashProvider{}, testHead(t))

	_, err := r.Retrieve(context.Background(), "q", []string{"one"}, nil)
	require.Error(t, err)
}

func TestTopKProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		results := make([]ScoredCase, n)
		for i := range results {
			results[i] = ScoredCase{
				Score: rapid.Float64Range(0, 1).Draw(rt, "score"),
				Index: i,
			}
		}
		k := rapid.IntRange(1, 12).Draw(rt, "k")

		top := TopK(results, k)

		// Exactly min(k, n) entries.
		require.Len(rt, top, min(k, n))

		// Strictly non-increasing scores, deterministic tie-break.
		for i := 1; i < len(top); i++ {
			require.GreaterOrEqual(rt, top[i-1].Score, top[i].Score)
			if top[i-1].Score == top[i].Score {
				require.Less(rt, top[i-1].Index, top[i].Index)
			}
		}

		// Input order untouched.
		for i, r := range results {
			require.Equal(rt, i, r.Index)
		}
	})
}

func TestLoadHeadRoundTrip(t *testing.T) {
	h := testHead(t)
	path := filepath.Join(t.TempDir(), "head.json")
	data, err := json.Marshal(h)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadHead(path)
	require.NoError(t, err)
	assert.Equal(t, h, loaded)
}

func TestLoadHeadRejectsBadShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.json")
	bad := `{"input_dim":4,"hidden_dim":2,"w1":[[1,2,3,4]],"b1":[0,0],"w2":[[1,1],[1,1]],"b2":[0,0]}`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := LoadHead(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "w1/b1 shape mismatch")
}

func TestHeadScoreIsProbability(t *testing.T) {
	h := testHead(t)

	score, err := h.Score(embeddings.Vector{0.2, -0.5, 1.2, 0.9})
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)

	_, err = h.Score(embeddings.Vector{1, 2})
	require.Error(t, err)
}
