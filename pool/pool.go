// Package pool runs the HTTP half of a cache peer: a server answering other
// peers' requests for this process's keys, and lazily-built clients for
// every other peer. The pool doubles as the in-process "client" for its own
// endpoint, so a picker never routes a self-pick over the network.
package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	peercache "github.com/peercache/go-peercache"
	"github.com/peercache/go-peercache/apierror"
	"github.com/peercache/go-peercache/breaker"
	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/peer"
	"github.com/peercache/go-peercache/picker"
	"golang.org/x/sync/semaphore"
)

var log = logging.Logger("peercache/pool")

// GetPath is the path peers POST key requests to.
const GetPath = "/Get"

const (
	formGroupName = "groupName"
	formKey       = "key"
)

// Pool serves this process's keys to other peers and hands out clients and
// pickers for the peer set.
type Pool struct {
	self     peer.Endpoint
	listener net.Listener
	server   *http.Server
	sem      *semaphore.Weighted
	httpc    *http.Client
	opts     config

	inflight atomic.Int64

	mu      sync.Mutex
	clients map[peer.Endpoint]peer.Client
	pickers map[string]*picker.Picker
}

var _ peer.Client = (*Pool)(nil)
var _ picker.ClientSource = (*Pool)(nil)

// New starts a pool listening on address. An address with port 0 binds an
// ephemeral port; the pool's endpoint reflects the bound address.
func New(address string, options ...Option) (*Pool, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	self, err := peer.ParseEndpoint(l.Addr().String())
	if err != nil {
		l.Close()
		return nil, err
	}

	p := &Pool{
		self:     self,
		listener: l,
		sem:      semaphore.NewWeighted(int64(opts.admissionLimit)),
		httpc:    opts.httpClient,
		opts:     opts,
		clients:  make(map[peer.Endpoint]peer.Client),
		pickers:  make(map[string]*picker.Picker),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(GetPath, p.handleGet)
	p.server = &http.Server{
		Handler: mux,
		Addr:    l.Addr().String(),
	}
	// One response per connection.
	p.server.SetKeepAlivesEnabled(false)
	go func() {
		if err := p.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorw("Peer server stopped", "self", self, "err", err)
		}
	}()
	log.Infow("Peer server listening", "self", self)

	return p, nil
}

// Close stops the pool's server.
func (p *Pool) Close() error {
	return p.server.Close()
}

// Self returns the endpoint the pool is serving on.
func (p *Pool) Self() peer.Endpoint {
	return p.self
}

// handleGet answers one peer request: admission first, then registry lookup,
// then a local-only load. Dispatching to GetLocally, never the forwarding
// path, is what keeps disagreeing peer lists from looping a request between
// processes.
func (p *Pool) handleGet(w http.ResponseWriter, r *http.Request) {
	if !p.sem.TryAcquire(1) {
		http.Error(w, apierror.ErrServerBusy.Error(), http.StatusServiceUnavailable)
		return
	}
	defer p.sem.Release(1)

	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "cannot parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	groupName := r.PostFormValue(formGroupName)
	key := r.PostFormValue(formKey)
	if groupName == "" || key == "" {
		http.Error(w, "missing groupName or key", http.StatusBadRequest)
		return
	}

	g, ok := peercache.GetGroup(peercache.GroupKey{Name: groupName, Self: p.self})
	if !ok {
		http.Error(w, fmt.Sprintf("%s: %s", apierror.ErrGroupNotFound, groupName), http.StatusNotFound)
		return
	}
	g.Stats().TraceServerRequest()
	g.Stats().TraceConcurrentServerRequests(n)

	// Buffer the payload so the status and cache-control header can still
	// be set when the load fails partway.
	var buf bytes.Buffer
	var cc cache.Control
	if err := g.GetLocally(r.Context(), key, &buf, &cc); err != nil {
		http.Error(w, err.Error(), apierror.StatusFor(err))
		return
	}

	if cc.NoStore() {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debugw("Cannot write response", "group", groupName, "key", key, "err", err)
	}
}

// Client returns the outbound client for an endpoint, building and caching
// a circuit-breaker-wrapped HTTP client on first use.
func (p *Pool) Client(ep peer.Endpoint) peer.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[ep]; ok {
		return c
	}
	c := breaker.New(
		newHTTPClient(ep, p.httpc),
		p.opts.breakerMaxRetry,
		p.opts.breakerBackOff,
		p.opts.clock,
	)
	p.clients[ep] = c
	return c
}

// Picker returns the picker for a group name, creating it on first use. A
// nil hasher selects the default. The hasher is fixed by the first call for
// each name.
func (p *Pool) Picker(group string, hasher peer.KeyHasher) *picker.Picker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pk, ok := p.pickers[group]; ok {
		return pk
	}
	pk := picker.New(p.self, p, p, hasher)
	p.pickers[group] = pk
	return pk
}

// Get implements the in-process client for the pool's own endpoint: a
// direct registry dispatch with local-only semantics.
func (p *Pool) Get(ctx context.Context, group, key string, sink io.Writer, cc *cache.Control) error {
	g, ok := peercache.GetGroup(peercache.GroupKey{Name: group, Self: p.self})
	if !ok {
		return fmt.Errorf("%w: %s", apierror.ErrGroupNotFound, group)
	}
	return g.GetLocally(ctx, key, sink, cc)
}

// IsLocal reports true: the pool is the current process.
func (p *Pool) IsLocal() bool {
	return true
}

// Endpoint returns the pool's own endpoint.
func (p *Pool) Endpoint() peer.Endpoint {
	return p.self
}
