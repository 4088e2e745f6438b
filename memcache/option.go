package memcache

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/peercache/go-peercache/stats"
)

const defaultCapacity = 64 << 20

type config struct {
	capacity   int64
	maxEntries int
	ttl        time.Duration
	clock      clock.Clock
	sink       stats.Sink
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		capacity: defaultCapacity,
		clock:    clock.New(),
		sink:     stats.Null{},
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithCapacity bounds the summed byte size of cached payloads.
//
// Default is 64 MiB.
func WithCapacity(capacity int64) Option {
	return func(cfg *config) error {
		if capacity < 0 {
			return fmt.Errorf("capacity cannot be negative: %d", capacity)
		}
		cfg.capacity = capacity
		return nil
	}
}

// WithMaxEntries bounds the number of cached payloads. Zero, the default,
// disables count-based eviction.
func WithMaxEntries(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("max entries cannot be negative: %d", n)
		}
		cfg.maxEntries = n
		return nil
	}
}

// WithTTL sets the payload time-to-live. Zero, the default, disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		cfg.ttl = ttl
		return nil
	}
}

// WithClock supplies the time source used for TTL accounting.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}

// WithStats supplies the sink that receives cache trace events.
func WithStats(sink stats.Sink) Option {
	return func(cfg *config) error {
		if sink != nil {
			cfg.sink = sink
		}
		return nil
	}
}
