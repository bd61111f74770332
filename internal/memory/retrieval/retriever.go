package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/embeddings"
)

// ScoredCase is one relevance-scored pool entry. Scores are ephemeral:
// recomputed per query, never persisted.
type ScoredCase struct {
	casebank.CaseMeta

	// Text is the rendered case text that was scored.
	Text string

	// Score is the relevance probability in [0, 1].
	Score float64

	// Index is the case's position in the pool snapshot.
	Index int
}

// Retriever ranks a case pool against a query. With a loaded head it
// scores pairs through the trained classifier; without one it falls back
// to cosine similarity of the raw embeddings.
type Retriever struct {
	provider embeddings.Provider
	head     *Head
}

// NewRetriever builds a retriever from an embedding provider and a loaded
// head. A nil head selects the cosine fallback.
func NewRetriever(provider embeddings.Provider, head *Head) *Retriever {
	return &Retriever{provider: provider, head: head}
}

// Retrieve scores every pool entry against the query in one batched
// embedding pass. Results are unsorted; callers rank with TopK. The pool and
// metadata slices must be parallel.
func (r *Retriever) Retrieve(ctx context.Context, query string, pool []string, meta []casebank.CaseMeta) ([]ScoredCase, error) {
	if len(pool) != len(meta) {
		return nil, fmt.Errorf("pool/metadata length mismatch: %d vs %d", len(pool), len(meta))
	}
	if len(pool) == 0 {
		return nil, nil
	}

	vectors, err := r.provider.Embed(ctx, append([]string{query}, pool...))
	if err != nil {
		return nil, fmt.Errorf("embed query and pool: %w", err)
	}
	queryVec := vectors[0]

	results := make([]ScoredCase, 0, len(pool))
	for i, caseVec := range vectors[1:] {
		score, err := r.scorePair(queryVec, caseVec)
		if err != nil {
			return nil, fmt.Errorf("score case %d: %w", i, err)
		}
		results = append(results, ScoredCase{
			CaseMeta: meta[i],
			Text:     pool[i],
			Score:    score,
			Index:    i,
		})
	}
	return results, nil
}

func (r *Retriever) scorePair(queryVec, caseVec embeddings.Vector) (float64, error) {
	if r.head != nil {
		return r.head.Score(queryVec.Concat(caseVec))
	}
	// Cosine of the normalized vectors, mapped from [-1, 1] onto the
	// probability scale the head produces.
	sim := queryVec.Normalize().Similarity(caseVec.Normalize())
	return (float64(sim) + 1) / 2, nil
}

// TopK sorts descending by score and truncates to min(k, len(results)).
// Ties break on pool index so ranking is deterministic.
func TopK(results []ScoredCase, k int) []ScoredCase {
	out := make([]ScoredCase, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

// Metas projects scored cases back to their metadata, preserving order.
func Metas(results []ScoredCase) []casebank.CaseMeta {
	out := make([]casebank.CaseMeta, len(results))
	for i, r := range results {
		out[i] = r.CaseMeta
	}
	return out
}
