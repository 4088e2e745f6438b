// Package picker resolves which peers serve a key. It keeps a sorted peer
// set and uses jump consistent hashing to produce, for any key, a
// deterministic ordered list of replicas whose first element is the key's
// canonical owner.
package picker

import (
	"sort"
	"sync"

	"github.com/peercache/go-peercache/jumphash"
	"github.com/peercache/go-peercache/peer"
)

// ClientSource builds the outbound client for an endpoint. The picker calls
// it once per endpoint and caches the result.
type ClientSource interface {
	Client(ep peer.Endpoint) peer.Client
}

// Picker maps keys to replica lists over a mutable peer set. The entry for
// the picker's own endpoint is always the supplied in-process handler, never
// an outbound client, so a self-pick cannot loop back over the network.
type Picker struct {
	self   peer.Endpoint
	local  peer.Client
	source ClientSource
	hasher peer.KeyHasher

	mu        sync.Mutex
	endpoints []peer.Endpoint
	clients   map[peer.Endpoint]peer.Client
}

// New creates a Picker. local is the in-process handler bound to self;
// source builds clients for every other endpoint. A nil hasher selects the
// default.
func New(self peer.Endpoint, local peer.Client, source ClientSource, hasher peer.KeyHasher) *Picker {
	if hasher == nil {
		hasher = peer.DefaultKeyHasher
	}
	return &Picker{
		self:    self,
		local:   local,
		source:  source,
		hasher:  hasher,
		clients: make(map[peer.Endpoint]peer.Client),
	}
}

// Self returns the endpoint of the current process.
func (p *Picker) Self() peer.Endpoint {
	return p.self
}

// Set replaces the peer set.
func (p *Picker) Set(endpoints ...peer.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = p.endpoints[:0]
	p.merge(endpoints)
}

// Add unions endpoints into the peer set.
func (p *Picker) Add(endpoints ...peer.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merge(endpoints)
}

// merge deduplicates, sorts, and assigns clients. Must be called with mu
// held.
func (p *Picker) merge(endpoints []peer.Endpoint) {
	seen := make(map[peer.Endpoint]struct{}, len(p.endpoints)+len(endpoints))
	for _, ep := range p.endpoints {
		seen[ep] = struct{}{}
	}
	for _, ep := range endpoints {
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		p.endpoints = append(p.endpoints, ep)
	}
	sort.Slice(p.endpoints, func(i, j int) bool {
		return p.endpoints[i].Compare(p.endpoints[j]) < 0
	})
	for _, ep := range p.endpoints {
		if _, ok := p.clients[ep]; ok {
			continue
		}
		if ep == p.self {
			p.clients[ep] = p.local
		} else {
			p.clients[ep] = p.source.Client(ep)
		}
	}
}

// Count returns the number of peers in the set.
func (p *Picker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Endpoints returns a snapshot of the sorted peer set.
func (p *Picker) Endpoints() []peer.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]peer.Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// PickPeers returns an ordered list of min(n, peer count) distinct clients
// for key. The first is the canonical owner; the rest are deterministic
// fallbacks. Each pick removes the chosen endpoint from the working set and
// re-hashes into the remainder.
func (p *Picker) PickPeers(key string, n int) []peer.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.endpoints) {
		n = len(p.endpoints)
	}
	if n < 1 {
		return nil
	}
	buckets := make([]peer.Endpoint, len(p.endpoints))
	copy(buckets, p.endpoints)

	h := p.hasher(key)
	picked := make([]peer.Client, 0, n)
	for i := 0; i < n; i++ {
		idx := jumphash.Hash(h, len(buckets))
		picked = append(picked, p.clients[buckets[idx]])
		buckets = append(buckets[:idx], buckets[idx+1:]...)
	}
	return picked
}
