package diskcache_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/diskcache"
	"github.com/peercache/go-peercache/fsutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func fillWith(data string, calls *atomic.Int64) cache.FillFunc {
	return func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		if calls != nil {
			calls.Add(1)
		}
		_, err := w.Write([]byte(data))
		return err
	}
}

func readEntry(t *testing.T, e cache.Entry) string {
	t.Helper()
	r, err := e.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(data)
}

func TestGetOrAddRoundTrip(t *testing.T) {
	c, err := diskcache.New(t.TempDir() + "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	e, err := c.GetOrAdd(ctx, "k1", fillWith("HelloWorld", &calls), nil)
	require.NoError(t, err)
	require.Equal(t, "HelloWorld", readEntry(t, e))

	// Held by the caller: in the in-use table, not the LRU table.
	require.Equal(t, 1, c.InUseLen())
	require.Zero(t, c.IdleLen())

	require.NoError(t, e.Release(ctx))
	require.Zero(t, c.InUseLen())
	require.Equal(t, 1, c.IdleLen())

	// Second get is a hit.
	e, err = c.GetOrAdd(ctx, "k1", fillWith("HelloWorld", &calls), nil)
	require.NoError(t, err)
	require.Equal(t, "HelloWorld", readEntry(t, e))
	require.NoError(t, e.Release(ctx))
	require.Equal(t, int64(1), calls.Load())
}

func TestDualTableExclusive(t *testing.T) {
	c, err := diskcache.New(t.TempDir() + "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	e1, err := c.GetOrAdd(ctx, "a", fillWith("a", nil), nil)
	require.NoError(t, err)
	_, err = c.GetOrAdd(ctx, "b", fillWith("b", nil), nil)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 2, c.InUseLen())

	require.NoError(t, e1.Release(ctx))
	require.Equal(t, 2, c.Len())
	require.Equal(t, 1, c.InUseLen())
	require.Equal(t, 1, c.IdleLen())
}

func TestEvictionBoundsIdleFiles(t *testing.T) {
	dir := t.TempDir() + "/cache"
	c, err := diskcache.New(dir, diskcache.WithMaxEntryCount(1))
	require.NoError(t, err)
	ctx := context.Background()
	var osfs fsutil.OS

	// Cycle several keys through the single-slot LRU table. Each release
	// past the first evicts the previous idle entry and unlinks its file.
	for _, key := range []string{"a", "b", "c", "d"} {
		e, err := c.GetOrAdd(ctx, key, fillWith(key, nil), nil)
		require.NoError(t, err)
		require.NoError(t, e.Release(ctx))
	}

	require.Equal(t, 1, c.IdleLen())
	require.Zero(t, c.InUseLen())
	require.True(t, c.Contains("d"))

	files, err := osfs.DirFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestRetiredEntryReadableWhileHeld(t *testing.T) {
	dir := t.TempDir() + "/cache"
	c, err := diskcache.New(dir, diskcache.WithMaxEntryCount(1))
	require.NoError(t, err)
	ctx := context.Background()

	// Hold "a" in use while churning the LRU table.
	e1, err := c.GetOrAdd(ctx, "a", fillWith("aaa", nil), nil)
	require.NoError(t, err)

	for _, key := range []string{"b", "c", "d"} {
		e, err := c.GetOrAdd(ctx, key, fillWith(key, nil), nil)
		require.NoError(t, err)
		require.NoError(t, e.Release(ctx))
	}

	// Erase "a" from the cache while the caller still holds it.
	require.NoError(t, c.Remove(ctx, "a"))
	require.False(t, c.Contains("a"))
	require.Equal(t, "aaa", readEntry(t, e1))

	require.NoError(t, e1.Release(ctx))
	_, err = e1.Open()
	require.ErrorIs(t, err, diskcache.ErrDisposed)
}

func TestNoStoreNotRetained(t *testing.T) {
	dir := t.TempDir() + "/cache"
	c, err := diskcache.New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	var osfs fsutil.OS

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

	require.NoError(t, e.Release(ctx))
	files, err := osfs.DirFiles(dir)
	require.NoError(t, err)
	require.Empty(t, files)

	// A later get fills again.
	var cc2 cache.Control
	e, err = c.GetOrAdd(ctx, "k", fill, &cc2)
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx))
	require.Equal(t, int64(2), calls.Load())
}

func TestRemoveDeletesFile(t *testing.T) {
	dir := t.TempDir() + "/cache"
	c, err := diskcache.New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	var osfs fsutil.OS

	e, err := c.GetOrAdd(ctx, "k", fillWith("data", nil), nil)
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx))

	files, err := osfs.DirFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, c.Remove(ctx, "k"))
	require.Zero(t, c.Len())
	files, err = osfs.DirFiles(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestFillError(t *testing.T) {
	c, err := diskcache.New(t.TempDir() + "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	errFill := errors.New("origin down")
	_, err = c.GetOrAdd(ctx, "k", func(ctx context.Context, w io.Writer, cc *cache.Control) error {
		return errFill
	}, nil)
	require.ErrorIs(t, err, errFill)
	require.Zero(t, c.Len())

	// The failure does not poison the key.
	e, err := c.GetOrAdd(ctx, "k", fillWith("ok", nil), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", readEntry(t, e))
	require.NoError(t, e.Release(ctx))
}

func TestConcurrentGetSingleFill(t *testing.T) {
	c, err := diskcache.New(t.TempDir() + "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	var calls atomic.Int64
	var eg errgroup.Group
	for i := 0; i < 16; i++ {
		eg.Go(func() error {
			e, err := c.GetOrAdd(ctx, "cold", fillWith("shared", &calls), nil)
			if err != nil {
				return err
			}
			if got := readEntry(t, e); got != "shared" {
				return errors.New("unexpected content: " + got)
			}
			return e.Release(ctx)
		})
	}
	require.NoError(t, eg.Wait())
	require.Equal(t, int64(1), calls.Load())
	require.Equal(t, 1, c.Len())
}

func TestDirRecreatedEmpty(t *testing.T) {
	dir := t.TempDir() + "/cache"
	var osfs fsutil.OS
	require.NoError(t, osfs.DirCreate(dir))
	_, err := osfs.WriteAtomic(dir, func(w io.Writer) error {
		_, err := w.Write([]byte("stale"))
		return err
	})
	require.NoError(t, err)

	_, err = diskcache.New(dir)
	require.NoError(t, err)

	files, err := osfs.DirFiles(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}
