package lru

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

type config[V any] struct {
	maxEntries     int
	capacity       int64
	ttl            time.Duration
	clock          clock.Clock
	replace        bool
	onEvicted      func(string, V)
	onOverCapacity func(string, V)
}

// Option is a function that sets a value in a config.
type Option[V any] func(*config[V]) error

// getOpts creates a config and applies Options to it.
func getOpts[V any](opts []Option[V]) (config[V], error) {
	cfg := config[V]{
		clock:   clock.New(),
		replace: true,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config[V]{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithMaxEntries bounds the number of resident entries. Zero, the default,
// disables count-based eviction.
func WithMaxEntries[V any](n int) Option[V] {
	return func(cfg *config[V]) error {
		if n < 0 {
			return fmt.Errorf("max entries cannot be negative: %d", n)
		}
		cfg.maxEntries = n
		return nil
	}
}

// WithCapacity bounds the summed charge of resident entries. Zero, the
// default, disables charge-based eviction.
func WithCapacity[V any](capacity int64) Option[V] {
	return func(cfg *config[V]) error {
		if capacity < 0 {
			return fmt.Errorf("capacity cannot be negative: %d", capacity)
		}
		cfg.capacity = capacity
		return nil
	}
}

// WithTTL sets the entry time-to-live. An entry older than the TTL is
// treated as a miss and removed on access. Zero, the default, disables
// expiry.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(cfg *config[V]) error {
		cfg.ttl = ttl
		return nil
	}
}

// WithClock supplies the time source used for TTL accounting.
func WithClock[V any](c clock.Clock) Option[V] {
	return func(cfg *config[V]) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}

// WithReplaceOnAdd controls what Add does when the key is already resident:
// replace the stored value (the default) or keep it and return it.
func WithReplaceOnAdd[V any](replace bool) Option[V] {
	return func(cfg *config[V]) error {
		cfg.replace = replace
		return nil
	}
}

// WithOnEvicted registers a callback that fires for each entry evicted to
// satisfy the count or capacity bound. It does not fire on explicit removal.
func WithOnEvicted[V any](cb func(key string, value V)) Option[V] {
	return func(cfg *config[V]) error {
		cfg.onEvicted = cb
		return nil
	}
}

// WithOnOverCapacity registers a callback that fires when a single item's
// charge exceeds the cache capacity. Such an item is not inserted.
func WithOnOverCapacity[V any](cb func(key string, value V)) Option[V] {
	return func(cfg *config[V]) error {
		cfg.onOverCapacity = cb
		return nil
	}
}
