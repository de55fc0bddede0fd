package card

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of parsed cards kept in memory.
const DefaultCacheSize = 4096

// Cache keeps recently parsed cards so a later stage can reuse them without
// fetching the page again. It is safe for concurrent use; a nil *Cache is a
// valid, always-empty cache.
type Cache struct {
	lru *lru.Cache[string, Record]
}

// NewCache creates a cache holding up to size records.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached record for id.
func (c *Cache) Get(id string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	return c.lru.Get(id)
}

// Add stores rec under its identifier.
func (c *Cache) Add(rec Record) {
	if c == nil || rec.Identifier == "" {
		return
	}
	c.lru.Add(rec.Identifier, rec)
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
