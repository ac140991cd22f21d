// Package cache holds the console's only shared mutable state: the cached
// product collections and single-product records fetched from the remote
// inventory API.
//
// Invalidation is coarse and lazy. A successful mutation bumps the generation
// and clears the collection entries; nothing is patched in place, the next
// read refetches. The generation also guards against the stale-response
// hazard: a fetch that started before an invalidation must not land its
// result afterwards, so writers pass the generation they read at fetch start
// and the store refuses the write on a mismatch.
package cache

import (
	"sync"

	"apotek/internal/models"
)

// CollectionCache caches raw product collections keyed by upstream fetch
// route, and single products keyed by id. Derived-status decisions are never
// stored here; callers re-derive them per read since "now" advances.
type CollectionCache struct {
	mu      sync.RWMutex
	gen     uint64
	lists   map[string][]models.Product
	singles map[int64]models.Product
}

// New creates an empty cache.
func New() *CollectionCache {
	return &CollectionCache{
		lists:   make(map[string][]models.Product),
		singles: make(map[int64]models.Product),
	}
}

// Generation returns the current invalidation generation. Capture it before
// starting a fetch and hand it back to PutList/PutProduct.
func (c *CollectionCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// GetList returns the cached collection for a fetch route, if present.
func (c *CollectionCache) GetList(key string) ([]models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.lists[key]
	return list, ok
}

// PutList stores a fetched collection. It reports whether the entry was
// accepted; a fetch begun under an older generation is discarded.
func (c *CollectionCache) PutList(key string, gen uint64, products []models.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lists[key] = products
	return true
}

// GetProduct returns the cached single-product entry for an id, if present.
func (c *CollectionCache) GetProduct(id int64) (*models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.singles[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

// PutProduct stores a fetched single product under the same generation rules
// as PutList.
func (c *CollectionCache) PutProduct(gen uint64, p models.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.singles[p.ID] = p
	return true
}

// InvalidateLists drops every cached collection and bumps the generation, so
// in-flight fetches started before the call cannot repopulate stale data.
func (c *CollectionCache) InvalidateLists() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lists = make(map[string][]models.Product)
}

// InvalidateProduct drops the single-product entry for an id.
func (c *CollectionCache) InvalidateProduct(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.singles, id)
}
