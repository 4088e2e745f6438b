package peercache

import (
	"fmt"

	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/memcache"
	"github.com/peercache/go-peercache/stats"
)

// DefaultMaxRetry is the replica attempt cap applied when no override is
// given.
const DefaultMaxRetry = 3

type config struct {
	cache     cache.Cache
	sink      stats.Sink
	maxRetry  int
	validator Validator
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		sink:     stats.Null{},
		maxRetry: DefaultMaxRetry,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

func defaultCache(sink stats.Sink) (cache.Cache, error) {
	return memcache.New(memcache.WithStats(sink))
}

// WithCache supplies the group's local cache backend. The default is an
// in-memory cache; use a diskcache.Cache for payloads that should spill to
// disk.
func WithCache(c cache.Cache) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.cache = c
		}
		return nil
	}
}

// WithStats supplies the sink that receives the group's trace events.
// Whatever backend the default local cache is built with reports into the
// same sink.
func WithStats(sink stats.Sink) Option {
	return func(cfg *config) error {
		if sink != nil {
			cfg.sink = sink
		}
		return nil
	}
}

// WithMaxRetry caps the number of replicas tried for a key before degrading
// to a direct local origin load.
//
// Default is 3.
func WithMaxRetry(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("max retry must be positive: %d", n)
		}
		cfg.maxRetry = n
		return nil
	}
}

// WithValidator supplies an entry validator. Payloads served to peers and
// fetched from peers stream through it; a rejected locally-loaded payload is
// removed from the local cache.
func WithValidator(v Validator) Option {
	return func(cfg *config) error {
		cfg.validator = v
		return nil
	}
}
