// Package cache defines the interfaces shared by the memory and disk cache
// backends, and the cache-control flags that flow between origin loaders,
// caches, and peers.
package cache

import (
	"context"
	"io"
	"sync/atomic"
)

// Control carries per-request cache directives. An origin loader may set
// NoStore while producing a value to keep that value out of every cache; the
// flag travels back to the caller and across the peer wire protocol. Control
// is safe for concurrent use.
type Control struct {
	noStore atomic.Bool
}

// SetNoStore marks the value being produced as not storable.
func (c *Control) SetNoStore() {
	c.noStore.Store(true)
}

// NoStore reports whether the value must not be stored.
func (c *Control) NoStore() bool {
	return c.noStore.Load()
}

// FillFunc produces the payload for a key, writing it to w. It must not
// close w. It may set cc.SetNoStore to keep the result out of the cache, and
// must honor ctx cancellation.
type FillFunc func(ctx context.Context, w io.Writer, cc *Control) error

// Entry is a handle to a cached value. Every Entry obtained from a Cache must
// be released exactly once after its content has been consumed, on every exit
// path.
type Entry interface {
	// Open returns a fresh reader over the entry's bytes. The reader must be
	// closed before the entry is released.
	Open() (io.ReadCloser, error)
	// NoStore reports whether the fill that produced this entry marked it
	// not storable. Such an entry is served to its callers but kept out of
	// the cache.
	NoStore() bool
	// Ref takes an additional reference on the entry.
	Ref()
	// Release drops the caller's reference. After the last reference is
	// gone any backing resources may be reclaimed.
	Release(ctx context.Context) error
}

// Cache is a keyed byte-payload store with read-through fill semantics.
type Cache interface {
	// GetOrAdd returns the entry for key, running fill to produce it on a
	// miss. Concurrent misses for the same key run fill once per process.
	// If the fill sets NoStore on cc, the produced entry is returned to the
	// caller but not retained.
	GetOrAdd(ctx context.Context, key string, fill FillFunc, cc *Control) (Entry, error)
	// Remove discards the entry for key, if any.
	Remove(ctx context.Context, key string) error
}
