package peercache

import (
	"errors"
	"sync"

	"github.com/peercache/go-peercache/peer"
	"github.com/peercache/go-peercache/picker"
)

// GroupKey identifies a Group uniquely within a process: groups with the
// same name bound to different self endpoints are distinct, which lets one
// process host several peers in tests.
type GroupKey struct {
	Name string
	Self peer.Endpoint
}

// groups is the process-wide registry.
var groups sync.Map // GroupKey -> *Group

// NewGroup creates a Group and registers it under its name and the picker's
// self endpoint. Registration is idempotent: if the key is already
// registered the existing Group is returned and the options are ignored.
func NewGroup(name string, getter Getter, pick *picker.Picker, options ...Option) (*Group, error) {
	if name == "" {
		return nil, errors.New("group name cannot be empty")
	}
	if getter == nil {
		return nil, errors.New("nil getter")
	}
	if pick == nil {
		return nil, errors.New("nil picker")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	localCache := opts.cache
	if localCache == nil {
		localCache, err = defaultCache(opts.sink)
		if err != nil {
			return nil, err
		}
	}

	g := &Group{
		name:      name,
		getter:    getter,
		picker:    pick,
		cache:     localCache,
		sink:      opts.sink,
		maxRetry:  opts.maxRetry,
		validator: opts.validator,
	}
	actual, _ := groups.LoadOrStore(g.Key(), g)
	return actual.(*Group), nil
}

// GetGroup returns the registered Group for key, for inbound dispatch.
func GetGroup(key GroupKey) (*Group, bool) {
	v, ok := groups.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Group), true
}
