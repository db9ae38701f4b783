package index

import "sync/atomic"

// Cache is the explicit handle for the process's current index. Rebuilds
// swap in a complete Index atomically; readers of an in-flight rebuild keep
// the previous one until the swap. No package-level singleton.
//
// A fresh Cache holds no index, which counts as stale: a process trusts
// nothing it has not scanned or rebuilt itself.
type Cache struct {
	ptr   atomic.Pointer[Index]
	dirty atomic.Bool
}

// NewCache returns an empty (stale) cache handle.
func NewCache() *Cache {
	return &Cache{}
}

// Current returns the current index, or nil if none has been installed.
func (c *Cache) Current() *Index {
	return c.ptr.Load()
}

// Swap installs a freshly built index and clears the dirty flag. A write
// racing the swap is still caught by the mtime staleness check, since the
// build captured mtimes before reading.
func (c *Cache) Swap(ix *Index) {
	c.ptr.Store(ix)
	c.dirty.Store(false)
}

// MarkStale flags the cache without discarding it. The store calls this on
// every append so same-process queries never trust a predated index, even
// within filesystem timestamp granularity.
func (c *Cache) MarkStale() {
	c.dirty.Store(true)
}

// Dirty reports whether a write has landed since the last swap.
func (c *Cache) Dirty() bool {
	return c.dirty.Load()
}
