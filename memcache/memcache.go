// Package memcache implements the in-memory byte-payload cache backend.
package memcache

import (
	"bytes"
	"context"
	"io"

	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/lru"
	"github.com/peercache/go-peercache/singleflight"
	"github.com/peercache/go-peercache/stats"
)

// Cache stores payloads as in-memory byte segments in an LRU bounded by a
// byte capacity. Concurrent misses for the same key are coalesced so the
// fill runs once per process.
type Cache struct {
	segments *lru.Cache[*entry]
	flight   singleflight.Flight[*entry]
	sink     stats.Sink
}

type entry struct {
	data    []byte
	noStore bool
}

var _ cache.Entry = (*entry)(nil)

func (e *entry) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (e *entry) NoStore() bool { return e.noStore }

// Ref and Release are no-ops; memory entries have no resources beyond the
// garbage-collected buffer.
func (e *entry) Ref() {}

func (e *entry) Release(context.Context) error { return nil }

// New creates a memory cache.
func New(options ...Option) (*Cache, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		sink: opts.sink,
	}
	c.segments, err = lru.New[*entry](
		lru.WithCapacity[*entry](opts.capacity),
		lru.WithMaxEntries[*entry](opts.maxEntries),
		lru.WithTTL[*entry](opts.ttl),
		lru.WithClock[*entry](opts.clock),
		lru.WithOnOverCapacity[*entry](func(string, *entry) {
			c.sink.TraceItemOverCapacity()
		}),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ cache.Cache = (*Cache)(nil)

// GetOrAdd returns the entry for key, filling it on a miss. The fill writes
// into an in-memory buffer; if it sets NoStore the buffer is still handed to
// the caller but not inserted. The single-flight gate, not the LRU, is what
// keeps a cold key's fill from running more than once.
func (c *Cache) GetOrAdd(ctx context.Context, key string, fill cache.FillFunc, cc *cache.Control) (cache.Entry, error) {
	if cc == nil {
		cc = new(cache.Control)
	}
	if e, ok := c.segments.TryGet(key); ok {
		c.sink.TraceCacheHit()
		return e, nil
	}

	var led bool
	e, err := c.flight.Do(ctx, key, func() (*entry, error) {
		led = true
		if e, ok := c.segments.TryGet(key); ok {
			c.sink.TraceCacheHit()
			return e, nil
		}
		var buf bytes.Buffer
		if err := fill(ctx, &buf, cc); err != nil {
			return nil, err
		}
		e := &entry{
			data:    buf.Bytes(),
			noStore: cc.NoStore(),
		}
		if !e.noStore {
			c.segments.Add(key, e, int64(len(e.data)))
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if !led {
		c.sink.TraceLoadDeduped()
	}
	if e.noStore {
		cc.SetNoStore()
	}
	return e, nil
}

// Remove discards the entry for key.
func (c *Cache) Remove(_ context.Context, key string) error {
	c.segments.Remove(key)
	return nil
}

// Contains reports whether key is resident.
func (c *Cache) Contains(key string) bool {
	return c.segments.Contains(key)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	return c.segments.Len()
}
