package peer_test

import (
	"testing"

	"github.com/peercache/go-peercache/peer"
	"github.com/stretchr/testify/require"
)

func TestEndpointCaseInsensitive(t *testing.T) {
	a := peer.NewEndpoint("Cache-Node-1.Example.COM", 8080)
	b := peer.NewEndpoint("cache-node-1.example.com", 8080)
	require.Equal(t, a, b)
	require.Zero(t, a.Compare(b))
}

func TestEndpointOrdering(t *testing.T) {
	a := peer.NewEndpoint("alpha", 9000)
	b := peer.NewEndpoint("beta", 1000)
	require.Negative(t, a.Compare(b))
	require.Positive(t, b.Compare(a))

	c := peer.NewEndpoint("alpha", 9001)
	require.Negative(t, a.Compare(c))
}

func TestParseEndpoint(t *testing.T) {
	ep, err := peer.ParseEndpoint("Localhost:1234")
	require.NoError(t, err)
	require.Equal(t, peer.NewEndpoint("localhost", 1234), ep)
	require.Equal(t, "localhost:1234", ep.String())

	_, err = peer.ParseEndpoint("no-port")
	require.Error(t, err)

	_, err = peer.ParseEndpoint("host:notanumber")
	require.Error(t, err)
}

func TestDefaultKeyHasher(t *testing.T) {
	require.Equal(t, peer.DefaultKeyHasher("foo"), peer.DefaultKeyHasher("foo"))
	require.NotEqual(t, peer.DefaultKeyHasher("foo"), peer.DefaultKeyHasher("bar"))
}
