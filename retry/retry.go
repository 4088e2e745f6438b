// Package retry runs an operation repeatedly until it succeeds, its error is
// not retryable, or the attempt budget is spent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jpillora/backoff"
)

// ErrExhausted is wrapped by the error returned when every attempt allowed
// by the policy has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how an operation is retried. The zero BackOff values
// produce no delay between attempts.
type Policy struct {
	// MaxAttempts is the total number of invocations allowed.
	MaxAttempts int
	// BackOffMin and BackOffMax bound the delay between attempts. Equal
	// values give a constant delay; BackOffMax greater than BackOffMin
	// gives exponential growth between them.
	BackOffMin time.Duration
	BackOffMax time.Duration
	// Retryable reports whether an error is worth another attempt. A nil
	// Retryable retries nothing.
	Retryable func(error) bool
	// OnRetry, if set, is called before each re-invocation.
	OnRetry func(err error)
}

// Attempt carries per-invocation state into the retried function.
type Attempt struct {
	// Index is the zero-based invocation count.
	Index int
	// LastErr is the error from the previous invocation, nil on the first.
	LastErr error

	exhausted bool
}

// Exhaust tells the policy to stop retrying after this invocation returns.
func (a *Attempt) Exhaust() {
	a.exhausted = true
}

// Execute invokes fn until it returns nil, returns a non-retryable error, or
// the attempt budget is spent. Exhaustion returns an error wrapping
// ErrExhausted and the accumulated attempt errors. The back-off delay honors
// ctx cancellation.
func (p Policy) Execute(ctx context.Context, fn func(ctx context.Context, a *Attempt) error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: no attempts allowed", ErrExhausted)
	}
	// Zero-valued Min and Max make backoff.Backoff substitute its own
	// defaults, so a no-delay policy must skip it entirely.
	var bo *backoff.Backoff
	if p.BackOffMin > 0 || p.BackOffMax > 0 {
		bo = &backoff.Backoff{
			Min:    p.BackOffMin,
			Max:    p.BackOffMax,
			Factor: 2,
		}
		if p.BackOffMax < p.BackOffMin {
			bo.Max = p.BackOffMin
		}
	}

	var errs error
	a := &Attempt{}
	for {
		err := fn(ctx, a)
		if err == nil {
			return nil
		}
		errs = multierror.Append(errs, err)

		if a.exhausted || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if a.Index+1 >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, errs)
		}

		if bo != nil {
			timer := time.NewTimer(bo.Duration())
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(err)
		}
		a.Index++
		a.LastErr = err
	}
}
