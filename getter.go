package peercache

import (
	"context"
	"errors"
	"io"

	"github.com/peercache/go-peercache/cache"
)

// A Getter loads data for a key from its authoritative source.
type Getter interface {
	// Load writes the value identified by key to dest. It must not close
	// dest. The key must uniquely describe the loaded data, without an
	// implicit current time. Load may set NoStore on cc to keep the result
	// out of every cache, may return an error to signal load failure, and
	// must honor ctx cancellation.
	Load(ctx context.Context, key string, dest io.Writer, cc *cache.Control) error
}

// GetterFunc implements Getter with a function.
type GetterFunc func(ctx context.Context, key string, dest io.Writer, cc *cache.Control) error

func (f GetterFunc) Load(ctx context.Context, key string, dest io.Writer, cc *cache.Control) error {
	return f(ctx, key, dest, cc)
}

// ErrValidationFailed is wrapped by errors reported from entry validation.
var ErrValidationFailed = errors.New("validation failed")

// A Validator checks payloads as they stream to a caller.
type Validator interface {
	// PassThrough wraps dest in a stream that observes the bytes flowing
	// through it. Once the full payload has been written, Validate is
	// awaited; its error rejects the result.
	PassThrough(key string, dest io.Writer) ValidationWriter
}

// ValidationWriter is the observing stream a Validator wraps around a sink.
type ValidationWriter interface {
	io.Writer
	// Validate reports whether the bytes written so far form a valid
	// payload. A validation error on a locally-loaded entry removes the
	// key from the local cache.
	Validate(ctx context.Context) error
}
