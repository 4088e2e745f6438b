// Package breaker wraps a peer client with a circuit breaker so that an
// unreachable peer fails fast instead of being hammered.
package breaker

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/peercache/go-peercache/apierror"
	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/peer"
)

// ErrOpen is returned without calling the peer while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	// DefaultMaxRetry is the number of sequential failures that opens the
	// breaker.
	DefaultMaxRetry = 3
	// DefaultBackOff is how long the breaker stays open before letting one
	// probe through.
	DefaultBackOff = 10 * time.Second
)

// Client wraps an outbound peer client. After maxRetry sequential failures
// the breaker opens: calls made within backOff of the last attempt fail fast
// with ErrOpen. The failure counter is capped at maxRetry, so after the
// window elapses exactly one probe goes through per window until one
// succeeds. A busy peer does not count as a failure.
type Client struct {
	inner    peer.Client
	maxRetry int
	backOff  time.Duration
	clock    clock.Clock

	mu          sync.Mutex
	failures    int
	lastAttempt time.Time
}

var _ peer.Client = (*Client)(nil)

// New wraps inner with a breaker. A maxRetry < 1 or backOff <= 0 selects the
// default.
func New(inner peer.Client, maxRetry int, backOff time.Duration, clk clock.Clock) *Client {
	if maxRetry < 1 {
		maxRetry = DefaultMaxRetry
	}
	if backOff <= 0 {
		backOff = DefaultBackOff
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		inner:    inner,
		maxRetry: maxRetry,
		backOff:  backOff,
		clock:    clk,
	}
}

func (c *Client) Get(ctx context.Context, group, key string, sink io.Writer, cc *cache.Control) error {
	c.mu.Lock()
	now := c.clock.Now()
	if c.failures >= c.maxRetry && now.Sub(c.lastAttempt) < c.backOff {
		c.mu.Unlock()
		return ErrOpen
	}
	c.lastAttempt = now
	c.mu.Unlock()

	err := c.inner.Get(ctx, group, key, sink, cc)

	c.mu.Lock()
	if err == nil {
		c.failures = 0
	} else if !errors.Is(err, apierror.ErrServerBusy) {
		// Cap the counter so one probe per back-off window gets through.
		if c.failures < c.maxRetry {
			c.failures++
		}
	}
	c.mu.Unlock()
	return err
}

func (c *Client) IsLocal() bool {
	return c.inner.IsLocal()
}

func (c *Client) Endpoint() peer.Endpoint {
	return c.inner.Endpoint()
}
