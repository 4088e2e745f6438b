// Package peer defines the identity of a cache peer and the client interface
// used to fetch values from one.
package peer

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/peercache/go-peercache/cache"
)

// Endpoint identifies a peer process by host and port. The host is stored
// lowercased so that comparison and ordering are case-insensitive. Endpoint
// is comparable and usable as a map key.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint creates an Endpoint, lowercasing the host.
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{
		Host: strings.ToLower(host),
		Port: port,
	}
}

// ParseEndpoint parses a "host:port" string into an Endpoint.
func ParseEndpoint(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, fmt.Errorf("cannot parse endpoint %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("cannot parse endpoint port %q: %w", portStr, err)
	}
	return NewEndpoint(host, port), nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Compare orders endpoints by host, then by port. The result is negative,
// zero, or positive in the manner of strings.Compare.
func (e Endpoint) Compare(other Endpoint) int {
	if c := strings.Compare(e.Host, other.Host); c != 0 {
		return c
	}
	return e.Port - other.Port
}

// Client fetches a value for a key in a named group from a single peer. The
// client whose endpoint is the current process is the in-process handler and
// reports IsLocal true; all others are network clients.
type Client interface {
	// Get writes the payload for key in the named group to sink. Wire-level
	// cache directives are propagated through cc.
	Get(ctx context.Context, group, key string, sink io.Writer, cc *cache.Control) error
	// IsLocal reports whether this client is the current process.
	IsLocal() bool
	// Endpoint returns the peer this client talks to.
	Endpoint() Endpoint
}

// KeyHasher maps a key to the 64-bit hash fed into the consistent hasher.
type KeyHasher func(key string) uint64

// DefaultKeyHasher hashes keys with xxhash.
func DefaultKeyHasher(key string) uint64 {
	return xxhash.Sum64String(key)
}
