package peercache

import (
	"context"
	"errors"
	"io"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/peercache/go-peercache/apierror"
	"github.com/peercache/go-peercache/breaker"
	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/peer"
	"github.com/peercache/go-peercache/picker"
	"github.com/peercache/go-peercache/retry"
	"github.com/peercache/go-peercache/stats"
)

var log = logging.Logger("peercache")

// Group is a named cache namespace: keys, one origin loader, and the local
// half of the distributed read path.
type Group struct {
	name      string
	getter    Getter
	picker    *picker.Picker
	cache     cache.Cache
	sink      stats.Sink
	maxRetry  int
	validator Validator
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.name
}

// Key returns the group's process-wide registry key.
func (g *Group) Key() GroupKey {
	return GroupKey{Name: g.name, Self: g.picker.Self()}
}

// Stats returns the group's stats sink.
func (g *Group) Stats() stats.Sink {
	return g.sink
}

// Get writes the value for key to sink. The key's canonical owner serves it:
// when that is this process the value comes from the local cache, filling
// from the origin on a miss; otherwise the owner peer is asked, falling back
// across replicas and finally to a direct local origin load when peers are
// unreachable.
func (g *Group) Get(ctx context.Context, key string, sink io.Writer, cc *cache.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cc == nil {
		cc = new(cache.Control)
	}
	g.sink.TraceGet()
	start := time.Now()
	defer func() {
		g.sink.TraceRoundtripLatency(time.Since(start))
	}()
	return g.load(ctx, key, sink, cc)
}

// GetLocally serves key from the local cache only, filling from the origin
// on a miss. It never forwards, which is what keeps disagreeing peer lists
// from looping requests between processes. Inbound peer requests dispatch
// here.
func (g *Group) GetLocally(ctx context.Context, key string, sink io.Writer, cc *cache.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cc == nil {
		cc = new(cache.Control)
	}
	return g.loadLocal(ctx, key, sink, cc, true)
}

// Remove discards key from the local cache.
func (g *Group) Remove(ctx context.Context, key string) error {
	return g.cache.Remove(ctx, key)
}

// load walks the key's replica list, retrying peer failures, and degrades to
// a direct local origin load when every replica is unavailable.
func (g *Group) load(ctx context.Context, key string, sink io.Writer, cc *cache.Control) error {
	replicas := g.picker.PickPeers(key, g.picker.Count())
	attempts := len(replicas)
	if g.maxRetry < attempts {
		attempts = g.maxRetry
	}

	if attempts > 0 {
		pol := retry.Policy{
			MaxAttempts: attempts,
			Retryable:   apierror.IsRetryable,
			OnRetry: func(error) {
				g.sink.TraceRetry()
			},
		}
		err := pol.Execute(ctx, func(ctx context.Context, a *retry.Attempt) error {
			replica := replicas[a.Index]
			if replica.IsLocal() {
				return g.loadLocal(ctx, key, sink, cc, false)
			}
			return g.loadPeer(ctx, replica, key, sink, cc)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Last-resort degradation: with the owner and every fallback
		// replica unavailable, read straight from the origin. This trades
		// duplicated fills for availability.
		log.Debugw("All replicas failed, loading locally", "group", g.name, "key", key, "err", err)
	}
	return g.loadLocal(ctx, key, sink, cc, false)
}

// loadLocal serves key from the local cache, running the origin loader on a
// miss, and streams the resulting entry to sink. With validate set the
// stream passes through the group's validator and a rejected payload is
// removed from the cache.
func (g *Group) loadLocal(ctx context.Context, key string, sink io.Writer, cc *cache.Control, validate bool) error {
	origin := func(ctx context.Context, w io.Writer, fcc *cache.Control) error {
		g.sink.TraceLocalLoad()
		return g.getter.Load(ctx, key, w, fcc)
	}
	ent, err := g.cache.GetOrAdd(ctx, key, origin, cc)
	if err != nil {
		return err
	}
	defer ent.Release(ctx)

	dest := sink
	var vw ValidationWriter
	if validate && g.validator != nil {
		vw = g.validator.PassThrough(key, sink)
		dest = vw
	}

	r, err := ent.Open()
	if err != nil {
		return err
	}
	err = copyContext(ctx, dest, r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if vw != nil {
		if err = vw.Validate(ctx); err != nil {
			if rerr := g.cache.Remove(ctx, key); rerr != nil {
				log.Errorw("Cannot remove invalid entry", "group", g.name, "key", key, "err", rerr)
			}
			return err
		}
	}
	return nil
}

// loadPeer fetches key from a replica, validating the payload as it streams
// to sink.
func (g *Group) loadPeer(ctx context.Context, replica peer.Client, key string, sink io.Writer, cc *cache.Control) error {
	g.sink.TracePeerLoad()

	dest := sink
	var vw ValidationWriter
	if g.validator != nil {
		vw = g.validator.PassThrough(key, sink)
		dest = vw
	}

	err := replica.Get(ctx, g.name, key, dest, cc)
	if err == nil && vw != nil {
		err = vw.Validate(ctx)
	}
	if err != nil {
		if !errors.Is(err, breaker.ErrOpen) {
			log.Errorw("Peer load failed", "group", g.name, "key", key, "peer", replica.Endpoint(), "err", err)
		}
		return err
	}
	return nil
}

// copyContext copies src to dst, checking ctx between chunks so a cancelled
// caller stops a long body copy.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
