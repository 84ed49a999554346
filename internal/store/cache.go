package store

import (
	"sync"

	"openanonymiser/internal/entity"
)

// EntityCache holds detected entity spans per document ID, in memory only.
// Spans are re-derivable by re-analyzing the source document, so losing
// the cache on restart costs one extra analysis, never correctness.
type EntityCache struct {
	mu    sync.RWMutex
	spans map[string][]entity.Span
}

// NewEntityCache returns an empty cache.
func NewEntityCache() *EntityCache {
	return &EntityCache{spans: make(map[string][]entity.Span)}
}

// Put stores the spans for a document, replacing any previous value.
func (c *EntityCache) Put(docID string, spans []entity.Span) {
	cp := make([]entity.Span, len(spans))
	copy(cp, spans)
	c.mu.Lock()
	c.spans[docID] = cp
	c.mu.Unlock()
}

// Get returns the cached spans for a document, if present.
func (c *EntityCache) Get(docID string) ([]entity.Span, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spans, ok := c.spans[docID]
	if !ok {
		return nil, false
	}
	cp := make([]entity.Span, len(spans))
	copy(cp, spans)
	return cp, true
}

// Delete removes a document's cached spans.
func (c *EntityCache) Delete(docID string) {
	c.mu.Lock()
	delete(c.spans, docID)
	c.mu.Unlock()
}
