// Package stats defines the counters a cache group reports into.
package stats

import (
	"sync/atomic"
	"time"
)

// Sink receives trace events from a cache group. Implementations must be
// safe for concurrent use.
type Sink interface {
	TraceGet()
	TraceCacheHit()
	TraceLoadDeduped()
	TraceLocalLoad()
	TracePeerLoad()
	TraceServerRequest()
	TraceRetry()
	TraceItemOverCapacity()
	TraceRoundtripLatency(d time.Duration)
	TraceConcurrentServerRequests(n int64)
}

// Null is a Sink that discards everything.
type Null struct{}

func (Null) TraceGet()                            {}
func (Null) TraceCacheHit()                       {}
func (Null) TraceLoadDeduped()                    {}
func (Null) TraceLocalLoad()                      {}
func (Null) TracePeerLoad()                       {}
func (Null) TraceServerRequest()                  {}
func (Null) TraceRetry()                          {}
func (Null) TraceItemOverCapacity()               {}
func (Null) TraceRoundtripLatency(time.Duration) {}
func (Null) TraceConcurrentServerRequests(int64) {}

var _ Sink = Null{}

// Counters is a Sink backed by atomic counters.
type Counters struct {
	gets           atomic.Int64
	cacheHits      atomic.Int64
	loadsDeduped   atomic.Int64
	localLoads     atomic.Int64
	peerLoads      atomic.Int64
	serverRequests atomic.Int64
	retries        atomic.Int64
	overCapacity   atomic.Int64
	latencyTotal   atomic.Int64
	latencySamples atomic.Int64
	maxConcurrent  atomic.Int64
}

var _ Sink = (*Counters)(nil)

func (c *Counters) TraceGet()              { c.gets.Add(1) }
func (c *Counters) TraceCacheHit()         { c.cacheHits.Add(1) }
func (c *Counters) TraceLoadDeduped()      { c.loadsDeduped.Add(1) }
func (c *Counters) TraceLocalLoad()        { c.localLoads.Add(1) }
func (c *Counters) TracePeerLoad()         { c.peerLoads.Add(1) }
func (c *Counters) TraceServerRequest()    { c.serverRequests.Add(1) }
func (c *Counters) TraceRetry()            { c.retries.Add(1) }
func (c *Counters) TraceItemOverCapacity() { c.overCapacity.Add(1) }

func (c *Counters) TraceRoundtripLatency(d time.Duration) {
	c.latencyTotal.Add(int64(d))
	c.latencySamples.Add(1)
}

func (c *Counters) TraceConcurrentServerRequests(n int64) {
	for {
		cur := c.maxConcurrent.Load()
		if n <= cur || c.maxConcurrent.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (c *Counters) Gets() int64                        { return c.gets.Load() }
func (c *Counters) CacheHits() int64                   { return c.cacheHits.Load() }
func (c *Counters) LoadsDeduped() int64                { return c.loadsDeduped.Load() }
func (c *Counters) LocalLoads() int64                  { return c.localLoads.Load() }
func (c *Counters) PeerLoads() int64                   { return c.peerLoads.Load() }
func (c *Counters) ServerRequests() int64              { return c.serverRequests.Load() }
func (c *Counters) Retries() int64                     { return c.retries.Load() }
func (c *Counters) ItemsOverCapacity() int64           { return c.overCapacity.Load() }
func (c *Counters) MaxConcurrentServerRequests() int64 { return c.maxConcurrent.Load() }

// AverageRoundtripLatency returns the mean latency of all traced roundtrips,
// or zero if none were traced.
func (c *Counters) AverageRoundtripLatency() time.Duration {
	n := c.latencySamples.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(c.latencyTotal.Load() / n)
}
