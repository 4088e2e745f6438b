package picker_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/peer"
	"github.com/peercache/go-peercache/picker"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	ep    peer.Endpoint
	local bool
}

func (s *stubClient) Get(ctx context.Context, group, key string, sink io.Writer, cc *cache.Control) error {
	return nil
}

func (s *stubClient) IsLocal() bool           { return s.local }
func (s *stubClient) Endpoint() peer.Endpoint { return s.ep }

type stubSource struct {
	built map[peer.Endpoint]int
}

func (s *stubSource) Client(ep peer.Endpoint) peer.Client {
	if s.built == nil {
		s.built = make(map[peer.Endpoint]int)
	}
	s.built[ep]++
	return &stubClient{ep: ep}
}

func newTestPicker(nPeers int) (*picker.Picker, *stubSource) {
	self := peer.NewEndpoint("peer0", 8000)
	src := &stubSource{}
	p := picker.New(self, &stubClient{ep: self, local: true}, src, nil)
	eps := make([]peer.Endpoint, 0, nPeers)
	for i := 0; i < nPeers; i++ {
		eps = append(eps, peer.NewEndpoint(fmt.Sprintf("peer%d", i), 8000+i))
	}
	p.Set(eps...)
	return p, src
}

func TestSelfBindsLocalHandler(t *testing.T) {
	p, src := newTestPicker(3)
	require.Equal(t, 3, p.Count())

	var sawLocal bool
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		clients := p.PickPeers(key, 3)
		for _, c := range clients {
			if c.Endpoint() == p.Self() {
				require.True(t, c.IsLocal())
				sawLocal = true
			} else {
				require.False(t, c.IsLocal())
			}
		}
	}
	require.True(t, sawLocal)
	// No outbound client was built for self.
	require.NotContains(t, src.built, p.Self())
}

func TestPickPeersDistinctAndBounded(t *testing.T) {
	p, _ := newTestPicker(5)
	for _, key := range []string{"alpha", "beta", "gamma", "delta"} {
		clients := p.PickPeers(key, 5)
		require.Len(t, clients, 5)
		seen := make(map[peer.Endpoint]bool)
		for _, c := range clients {
			require.False(t, seen[c.Endpoint()], "duplicate replica for %s", key)
			seen[c.Endpoint()] = true
		}
	}
	require.Len(t, p.PickPeers("alpha", 100), 5)
	require.Len(t, p.PickPeers("alpha", 2), 2)
	require.Empty(t, p.PickPeers("alpha", 0))
}

func TestPickPeersDeterministicPrefix(t *testing.T) {
	p, _ := newTestPicker(7)
	for _, key := range []string{"x", "y", "z"} {
		owner := p.PickPeers(key, 1)
		all := p.PickPeers(key, 7)
		require.Equal(t, owner[0].Endpoint(), all[0].Endpoint())
		require.Equal(t, all, p.PickPeers(key, 7))
	}
}

func TestSetReplacesAddUnions(t *testing.T) {
	p, _ := newTestPicker(2)
	require.Equal(t, 2, p.Count())

	extra := peer.NewEndpoint("peer9", 9009)
	p.Add(extra)
	require.Equal(t, 3, p.Count())
	require.Contains(t, p.Endpoints(), extra)

	// Add of a duplicate changes nothing.
	p.Add(extra)
	require.Equal(t, 3, p.Count())

	p.Set(p.Self())
	require.Equal(t, 1, p.Count())
	require.Equal(t, []peer.Endpoint{p.Self()}, p.Endpoints())
}

func TestEndpointsSorted(t *testing.T) {
	self := peer.NewEndpoint("m", 1)
	p := picker.New(self, &stubClient{ep: self, local: true}, &stubSource{}, nil)
	p.Set(
		peer.NewEndpoint("zeta", 1),
		peer.NewEndpoint("Alpha", 2),
		peer.NewEndpoint("alpha", 1),
		self,
	)
	eps := p.Endpoints()
	require.Equal(t, []peer.Endpoint{
		peer.NewEndpoint("alpha", 1),
		peer.NewEndpoint("alpha", 2),
		peer.NewEndpoint("m", 1),
		peer.NewEndpoint("zeta", 1),
	}, eps)
}

func TestClientsMemoised(t *testing.T) {
	p, src := newTestPicker(4)
	for i := 0; i < 10; i++ {
		p.PickPeers("key", 4)
	}
	for ep, n := range src.built {
		require.Equal(t, 1, n, "client for %s rebuilt", ep)
	}
}
