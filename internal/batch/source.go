package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/retrieval"
)

// MemorySource adapts the case bank and retriever into the planner's
// case source. The pool is reloaded on every call so cases written
// back after one query are visible to the next.
type MemorySource struct {
	store     *casebank.Store
	retriever *retrieval.Retriever
	topK      int
}

func NewMemorySource(store *casebank.Store, retriever *retrieval.Retriever, topK int) *MemorySource {
	return &MemorySource{store: store, retriever: retriever, topK: topK}
}

func (m *MemorySource) Retrieve(ctx context.Context, query string) ([]retrieval.ScoredCase, error) {
	pool, meta, err := m.store.LoadPool()
	if errors.Is(err, casebank.ErrNoPool) {
		// First run, nothing learned yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load case pool: %w", err)
	}

	scored, err := m.retriever.Retrieve(ctx, query, pool, meta)
	if err != nil {
		return nil, fmt.Errorf("score cases: %w", err)
	}
	return retrieval.TopK(scored, m.topK), nil
}
