// Package lru provides a fixed-size map with least-recently-used eviction,
// optional byte-capacity accounting, and optional entry expiry.
package lru

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry[V any] struct {
	key       string
	value     V
	charge    int64
	createdAt time.Time
}

// Cache is a string-keyed LRU map. A single reader/writer lock guards all
// operations, so the cache is safe for concurrent use.
type Cache[V any] struct {
	mu sync.RWMutex

	maxEntries int
	capacity   int64
	ttl        time.Duration
	clock      clock.Clock
	replace    bool

	onEvicted      func(key string, value V)
	onOverCapacity func(key string, value V)

	ll    *list.List
	index map[string]*list.Element
	usage int64
}

// New creates a Cache. A maxEntries of 0 disables count-based eviction, a
// capacity of 0 disables charge-based eviction, and a TTL of 0 disables
// expiry.
func New[V any](options ...Option[V]) (*Cache[V], error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{
		maxEntries:     opts.maxEntries,
		capacity:       opts.capacity,
		ttl:            opts.ttl,
		clock:          opts.clock,
		replace:        opts.replace,
		onEvicted:      opts.onEvicted,
		onOverCapacity: opts.onOverCapacity,
		ll:             list.New(),
		index:          make(map[string]*list.Element),
	}, nil
}

// Add stores value under key with the given charge. If the key already
// exists it is moved to the front; the stored value is then replaced or
// kept, per the cache's replace policy, and the resident value is returned.
// If the charge alone exceeds the cache capacity the item is not inserted
// and the over-capacity callback fires. The returned value is the one now
// resident (or the rejected one when over capacity).
func (c *Cache[V]) Add(key string, value V, charge int64) V {
	c.mu.Lock()

	if c.capacity > 0 && charge > c.capacity {
		cb := c.onOverCapacity
		c.mu.Unlock()
		if cb != nil {
			cb(key, value)
		}
		return value
	}

	if elem, ok := c.index[key]; ok {
		c.ll.MoveToFront(elem)
		ent := elem.Value.(*entry[V])
		if !c.replace {
			v := ent.value
			c.mu.Unlock()
			return v
		}
		c.usage += charge - ent.charge
		ent.value = value
		ent.charge = charge
		ent.createdAt = c.clock.Now()
	} else {
		c.index[key] = c.ll.PushFront(&entry[V]{
			key:       key,
			value:     value,
			charge:    charge,
			createdAt: c.clock.Now(),
		})
		c.usage += charge
	}

	evicted := c.evictLocked()
	c.mu.Unlock()
	for _, ent := range evicted {
		if c.onEvicted != nil {
			c.onEvicted(ent.key, ent.value)
		}
	}
	return value
}

// evictLocked removes entries from the back until both bounds are satisfied,
// returning the removed entries so callbacks can run outside the lock.
func (c *Cache[V]) evictLocked() []*entry[V] {
	var evicted []*entry[V]
	for (c.maxEntries > 0 && c.ll.Len() > c.maxEntries) || (c.capacity > 0 && c.usage > c.capacity) {
		elem := c.ll.Back()
		if elem == nil {
			break
		}
		evicted = append(evicted, c.removeElement(elem))
	}
	return evicted
}

func (c *Cache[V]) removeElement(elem *list.Element) *entry[V] {
	ent := elem.Value.(*entry[V])
	c.ll.Remove(elem)
	delete(c.index, ent.key)
	c.usage -= ent.charge
	return ent
}

// TryGet returns the value for key if present and not expired, moving it to
// the front. An expired entry is removed and reported as a miss.
func (c *Cache[V]) TryGet(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	elem, ok := c.index[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[V])
	if c.expired(ent) {
		c.removeElement(elem)
		return zero, false
	}
	c.ll.MoveToFront(elem)
	return ent.value, true
}

// Peek returns the value for key without updating recency or expiry state.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero V
	elem, ok := c.index[key]
	if !ok {
		return zero, false
	}
	return elem.Value.(*entry[V]).value, true
}

// GetOrAdd returns the resident value for key, or runs factory to produce
// one and stores it. The factory runs under the cache lock, so it must be
// cheap; callers needing an expensive fill should coalesce it first.
func (c *Cache[V]) GetOrAdd(key string, factory func() (V, int64)) V {
	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		ent := elem.Value.(*entry[V])
		if !c.expired(ent) {
			c.ll.MoveToFront(elem)
			v := ent.value
			c.mu.Unlock()
			return v
		}
		c.removeElement(elem)
	}
	value, charge := factory()
	c.index[key] = c.ll.PushFront(&entry[V]{
		key:       key,
		value:     value,
		charge:    charge,
		createdAt: c.clock.Now(),
	})
	c.usage += charge

	evicted := c.evictLocked()
	c.mu.Unlock()
	for _, ent := range evicted {
		if c.onEvicted != nil {
			c.onEvicted(ent.key, ent.value)
		}
	}
	return value
}

// Remove deletes the entry for key, returning its value. Explicit removal
// does not fire the eviction callback.
func (c *Cache[V]) Remove(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	elem, ok := c.index[key]
	if !ok {
		return zero, false
	}
	return c.removeElement(elem).value, true
}

// Contains reports whether key is resident, without updating recency.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[key]
	return ok
}

// Clear discards all entries without firing callbacks.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.usage = 0
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ll.Len()
}

// Usage returns the summed charge of resident entries.
func (c *Cache[V]) Usage() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage
}

// Keys returns a snapshot of resident keys ordered from most to least
// recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, c.ll.Len())
	for elem := c.ll.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[V]).key)
	}
	return keys
}

func (c *Cache[V]) expired(ent *entry[V]) bool {
	return c.ttl > 0 && c.clock.Since(ent.createdAt) > c.ttl
}
