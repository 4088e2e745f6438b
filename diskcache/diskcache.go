// Package diskcache implements the file-backed cache backend. Entries are
// reference counted so that a caller can keep reading a payload that the LRU
// has already retired; the backing file is unlinked only when the last
// reference is gone.
package diskcache

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/lru"
	"github.com/peercache/go-peercache/stats"
)

var log = logging.Logger("peercache/diskcache")

// ErrDisposed is returned when opening an entry whose backing file has been
// deleted.
var ErrDisposed = errors.New("disk cache entry disposed")

// Cache bounds the number of idle on-disk entries to a maximum count. An
// entry lives in exactly one of two tables: the LRU table while only the
// cache itself references it, or the in-use table while callers hold
// references. Transitions between the tables, inserts, and eviction all run
// under one reader/writer lock; reference counts move with atomic ops.
type Cache struct {
	mu    sync.RWMutex
	idle  *lru.Cache[*Entry]
	inUse map[string]*Entry

	fs   FS
	dir  string
	sink stats.Sink
}

// FS is the filesystem surface the cache uses. It matches fsutil.FS.
type FS interface {
	OpenRead(path string) (io.ReadCloser, error)
	Delete(path string) error
	WriteAtomic(dir string, write func(w io.Writer) error) (string, error)
	DirFiles(dir string) ([]string, error)
	DirCreate(dir string) error
	DirRecreate(dir string) error
}

// Entry is one refcounted on-disk payload.
type Entry struct {
	key     string
	path    string
	noStore bool
	refs    atomic.Int64
	inCache atomic.Bool
	owner   *Cache
}

var _ cache.Entry = (*Entry)(nil)

// Open returns a fresh reader over the entry's file. The caller must hold a
// reference for the whole read.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.path == "" {
		return nil, ErrDisposed
	}
	return e.owner.fs.OpenRead(e.path)
}

func (e *Entry) NoStore() bool { return e.noStore }

// Ref takes an additional reference, keeping the backing file alive.
func (e *Entry) Ref() {
	e.refs.Add(1)
}

// Release drops one reference. When the cache still holds the entry and this
// was the last caller reference, the entry moves from the in-use table back
// to the LRU table. When the cache has already erased it, the last reference
// deletes the backing file.
func (e *Entry) Release(_ context.Context) error {
	return e.owner.release(e)
}

// New creates a disk cache rooted at dir. The directory is re-created empty.
func New(dir string, options ...Option) (*Cache, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		inUse: make(map[string]*Entry),
		fs:    opts.fs,
		dir:   dir,
		sink:  opts.sink,
	}
	c.idle, err = lru.New[*Entry](
		lru.WithMaxEntries[*Entry](opts.maxEntryCount),
		lru.WithOnEvicted[*Entry](func(key string, e *Entry) {
			// Runs synchronously from idle.Add, which only happens while mu
			// is held for writing.
			c.finishEraseLocked(e)
		}),
	)
	if err != nil {
		return nil, err
	}
	if err = c.fs.DirRecreate(dir); err != nil {
		return nil, err
	}
	return c, nil
}

var _ cache.Cache = (*Cache)(nil)

// GetOrAdd returns the entry for key, producing the backing file on a miss.
// The returned entry carries a reference for the caller; it must be released
// after the content is consumed. The two-phase lookup, a read-locked probe of
// the in-use table then a write-locked re-check of both tables, guarantees at
// most one on-disk insert per key.
func (c *Cache) GetOrAdd(ctx context.Context, key string, fill cache.FillFunc, cc *cache.Control) (cache.Entry, error) {
	if cc == nil {
		cc = new(cache.Control)
	}

	c.mu.RLock()
	e, ok := c.inUse[key]
	if ok {
		e.refs.Add(1)
	}
	c.mu.RUnlock()
	if ok {
		c.sink.TraceCacheHit()
		return e, nil
	}

	c.mu.Lock()
	if e = c.getLocked(key); e != nil {
		c.mu.Unlock()
		c.sink.TraceCacheHit()
		return e, nil
	}

	// Write while holding the lock so a second miss for the same key cannot
	// start another fill. The randomly-named file is the entry's permanent
	// content address.
	path, err := c.fs.WriteAtomic(c.dir, func(w io.Writer) error {
		return fill(ctx, w, cc)
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	e = &Entry{
		key:   key,
		path:  path,
		owner: c,
	}
	if cc.NoStore() {
		// Not inserted; the caller consumes the file and the release of the
		// last reference deletes it.
		e.noStore = true
		e.refs.Store(1)
		c.mu.Unlock()
		return e, nil
	}
	e.inCache.Store(true)
	e.refs.Store(2) // the cache's reference plus the caller's
	c.inUse[key] = e
	c.mu.Unlock()
	return e, nil
}

// getLocked finds key in either table and takes a caller reference. An entry
// found in the LRU table moves to the in-use table. Must be called with mu
// held for writing.
func (c *Cache) getLocked(key string) *Entry {
	if e, ok := c.inUse[key]; ok {
		e.refs.Add(1)
		return e
	}
	if e, ok := c.idle.Remove(key); ok {
		e.refs.Add(1)
		c.inUse[key] = e
		return e
	}
	return nil
}

func (c *Cache) release(e *Entry) error {
	if e.inCache.Load() {
		c.mu.Lock()
		n := e.refs.Add(-1)
		switch {
		case n == 1:
			// Still cached, no callers left: back to the LRU table. Adding
			// may evict the oldest idle entry, running finishEraseLocked.
			delete(c.inUse, e.key)
			if e.inCache.Load() {
				c.idle.Add(e.key, e, 0)
			}
			c.mu.Unlock()
		case n == 0:
			// The cache erased the entry while it was in use.
			delete(c.inUse, e.key)
			c.mu.Unlock()
			return c.deleteFile(e)
		default:
			c.mu.Unlock()
		}
		return nil
	}
	// Not cached: the count only decreases now, so no lock is needed.
	if e.refs.Add(-1) == 0 {
		return c.deleteFile(e)
	}
	return nil
}

// Remove erases the entry for key from whichever table holds it. Callers
// still holding references keep the backing file until they release.
func (c *Cache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.inUse[key]; ok {
		delete(c.inUse, key)
		c.finishEraseLocked(e)
		return nil
	}
	if e, ok := c.idle.Remove(key); ok {
		c.finishEraseLocked(e)
	}
	return nil
}

// finishEraseLocked detaches an entry from the cache and drops the cache's
// own reference. Must be called with mu held for writing.
func (c *Cache) finishEraseLocked(e *Entry) {
	e.inCache.Store(false)
	if e.refs.Add(-1) == 0 {
		if err := c.deleteFile(e); err != nil {
			log.Errorw("Cannot delete evicted cache file", "key", e.key, "err", err)
		}
	}
}

func (c *Cache) deleteFile(e *Entry) error {
	path := e.path
	e.path = ""
	if path == "" {
		return nil
	}
	return c.fs.Delete(path)
}

// Contains reports whether key is resident in either table.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.inUse[key]; ok {
		return true
	}
	return c.idle.Contains(key)
}

// Len returns the number of idle entries plus entries in use.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idle.Len() + len(c.inUse)
}

// IdleLen returns the number of entries in the LRU table.
func (c *Cache) IdleLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idle.Len()
}

// InUseLen returns the number of entries in the in-use table.
func (c *Cache) InUseLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.inUse)
}
