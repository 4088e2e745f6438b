package diskcache

import (
	"fmt"

	"github.com/peercache/go-peercache/fsutil"
	"github.com/peercache/go-peercache/stats"
)

const defaultMaxEntryCount = 1024

type config struct {
	maxEntryCount int
	fs            FS
	sink          stats.Sink
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		maxEntryCount: defaultMaxEntryCount,
		fs:            fsutil.OS{},
		sink:          stats.Null{},
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithMaxEntryCount bounds the number of idle on-disk entries. Entries with
// outstanding references do not count against the bound, so the total can
// transiently exceed it.
//
// Default is 1024.
func WithMaxEntryCount(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("max entry count must be positive: %d", n)
		}
		cfg.maxEntryCount = n
		return nil
	}
}

// WithFS supplies the filesystem implementation.
func WithFS(fs FS) Option {
	return func(cfg *config) error {
		if fs != nil {
			cfg.fs = fs
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
