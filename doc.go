// Package peercache is a distributed read-through cache. A fixed set of
// cooperating processes serve reads for string keys that identify immutable
// payloads. For any key one peer is the canonical owner; requests arriving
// at non-owners are forwarded to the owner, so a value is fetched from its
// origin at most once across the whole set while subsequent hits are served
// from local memory or disk. Concurrent requests for the same missing key
// are coalesced to one fill, both inside a process and across processes.
//
// A Group is a named namespace of keys backed by one origin loader. Groups
// are created with NewGroup and resolve key ownership through a
// picker.Picker, usually obtained from a pool.Pool that also serves the
// group's keys to other peers over HTTP.
package peercache

// Release is the current release version of go-peercache.
const Release = "v0.3.1"
