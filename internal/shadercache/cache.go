// Package shadercache caches compiled SPIR-V by WGSL source.
//
// Renderers validate the same handful of vertex layouts every time a
// pipeline is rebuilt; compiling the WGSL once per distinct source keeps
// that cheap. The cache uses a soft limit: when it is exceeded the least
// recently used quarter of the entries is evicted.
package shadercache

import (
	"slices"
	"sync"
)

// Compiler turns WGSL source into SPIR-V words.
type Compiler func(wgsl string) ([]uint32, error)

// Cache is a thread-safe LRU cache of compiled shaders.
// Cache must not be copied after creation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	tick    int64
	hits    uint64
	misses  uint64
}

type entry struct {
	spirv []uint32
	atime int64
}

// Stats reports cache usage.
type Stats struct {
	Len    int
	Limit  int
	Hits   uint64
	Misses uint64
}

// New creates a cache holding about limit shaders. A limit of 0 means
// unlimited.
func New(limit int) *Cache {
	return &Cache{entries: make(map[string]*entry), limit: limit}
}

// Compile returns the cached SPIR-V for src, compiling it with compile on
// a miss. Failed compilations are not cached. The returned slice is shared
// and must not be modified.
func (c *Cache) Compile(src string, compile Compiler) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[src]; ok {
		e.atime = c.tick
		c.hits++
		return e.spirv, nil
	}
	c.misses++

	spirv, err := compile(src)
	if err != nil {
		return nil, err
	}
	c.entries[src] = &entry{spirv: spirv, atime: c.tick}
	if c.limit > 0 && len(c.entries) > c.limit {
		c.evict()
	}
	return spirv, nil
}

// Len returns the number of cached shaders.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Len: len(c.entries), Limit: c.limit, Hits: c.hits, Misses: c.misses}
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// evict shrinks the cache to three quarters of its limit.
// c.mu must be held.
func (c *Cache) evict() {
	target := max(c.limit*3/4, 1)
	n := len(c.entries) - target
	if n <= 0 {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return int(c.entries[a].atime - c.entries[b].atime)
	})
	for _, k := range keys[:n] {
		delete(c.entries, k)
	}
}
