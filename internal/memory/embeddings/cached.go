package embeddings

import (
	"container/list"
	"context"
	"sync"
)

const defaultCacheSize = 4096

// CachedProvider wraps a Provider with an LRU cache keyed by input text.
// The case pool barely changes between queries, so most pool embeddings are
// served from cache after the first retrieval.
type CachedProvider struct {
	provider Provider
	cache    *lruCache
}

// NewCachedProvider wraps provider with a cache of maxSize entries
// (defaultCacheSize when maxSize <= 0).
func NewCachedProvider(provider Provider, maxSize int) *CachedProvider {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &CachedProvider{
		provider: provider,
		cache:    newLRUCache(maxSize),
	}
}

// Embed implements Provider, delegating only cache misses.
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]Vector, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := p.cache.Get(text); ok {
			results[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) > 0 {
		vectors, err := p.provider.Embed(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i, vec := range vectors {
			results[missingIdx[i]] = vec
			p.cache.Set(missing[i], vec)
		}
	}
	return results, nil
}

// Dimensions implements Provider.
func (p *CachedProvider) Dimensions() int { return p.provider.Dimensions() }

// Model implements Provider.
func (p *CachedProvider) Model() string { return p.provider.Model() }

type lruCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recent, holds keys
	entries map[string]*lruEntry
}

type lruEntry struct {
	vec  Vector
	elem *list.Element
}

func newLRUCache(maxSize int) *lruCache {
	return &lruCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*lruEntry, maxSize),
	}
}

func (c *lruCache) Get(key string) (Vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.vec, true
}

func (c *lruCache) Set(key string, vec Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.vec = vec
		c.order.MoveToFront(e.elem)
		return
	}
	if len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			delete(c.entries, oldest.Value.(string))
			c.order.Remove(oldest)
		}
	}
	c.entries[key] = &lruEntry{vec: vec, elem: c.order.PushFront(key)}
}
