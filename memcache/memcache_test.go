package memcache_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/memcache"
	"github.com/peercache/go-peercache/stats"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func readEntry(t *testing.T, e cache.Entry) string {
	t.Helper()
	r, err := e.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(data)
}

func TestGetOrAdd(t *testing.T) {
	var counters stats.Counters
	c, err := memcache.New(memcache.WithStats(&counters))
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	fill := func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		calls.Add(1)
		_, err := w.Write([]byte("HelloWorld"))
		return err
	}

	e, err := c.GetOrAdd(ctx, "key1", fill, nil)
	require.NoError(t, err)
	require.Equal(t, "HelloWorld", readEntry(t, e))
	require.False(t, e.NoStore())
	require.NoError(t, e.Release(ctx))

	e, err = c.GetOrAdd(ctx, "key1", fill, nil)
	require.NoError(t, err)
	require.Equal(t, "HelloWorld", readEntry(t, e))
	require.Equal(t, int64(1), calls.Load())
	require.Equal(t, int64(1), counters.CacheHits())
}

func TestNoStore(t *testing.T) {
	c, err := memcache.New()
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	fill := func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		calls.Add(1)
		cc.SetNoStore()
		_, err := w.Write([]byte("transient"))
		return err
	}

	var cc cache.Control
	e, err := c.GetOrAdd(ctx, "k", fill, &cc)
	require.NoError(t, err)
	require.True(t, cc.NoStore())
	require.True(t, e.NoStore())
	require.Equal(t, "transient", readEntry(t, e))
	require.False(t, c.Contains("k"))

	_, err = c.GetOrAdd(ctx, "k", fill, new(cache.Control))
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestFillError(t *testing.T) {
	c, err := memcache.New()
	require.NoError(t, err)
	ctx := context.Background()

	errFill := errors.New("origin down")
	_, err = c.GetOrAdd(ctx, "k", func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		return errFill
	}, nil)
	require.ErrorIs(t, err, errFill)
	require.False(t, c.Contains("k"))
}

func TestConcurrentSingleFill(t *testing.T) {
	var counters stats.Counters
	c, err := memcache.New(memcache.WithStats(&counters))
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	fill := func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		calls.Add(1)
		<-release
		_, err := w.Write([]byte("shared"))
		return err
	}

	const callers = 16
	var eg errgroup.Group
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		eg.Go(func() error {
			started <- struct{}{}
			e, err := c.GetOrAdd(ctx, "cold", fill, nil)
			if err != nil {
				return err
			}
			if got := readEntry(t, e); got != "shared" {
				return errors.New("unexpected content: " + got)
			}
			return nil
		})
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	close(release)
	require.NoError(t, eg.Wait())
	require.Equal(t, int64(1), calls.Load())
}

func TestRemove(t *testing.T) {
	c, err := memcache.New()
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	fill := func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		calls.Add(1)
		_, err := w.Write([]byte("v"))
		return err
	}
	_, err = c.GetOrAdd(ctx, "k", fill, nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, "k"))
	require.False(t, c.Contains("k"))

	_, err = c.GetOrAdd(ctx, "k", fill, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestOverCapacityTraced(t *testing.T) {
	var counters stats.Counters
	c, err := memcache.New(
		memcache.WithCapacity(4),
		memcache.WithStats(&counters),
	)
	require.NoError(t, err)
	ctx := context.Background()

	e, err := c.GetOrAdd(ctx, "big", func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		_, err := w.Write([]byte("much too large"))
		return err
	}, nil)
	require.NoError(t, err)
	// The payload is served to the caller but not retained.
	require.Equal(t, "much too large", readEntry(t, e))
	require.False(t, c.Contains("big"))
	require.Equal(t, int64(1), counters.ItemsOverCapacity())
}
