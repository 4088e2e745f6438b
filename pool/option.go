package pool

import (
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/peercache/go-peercache/breaker"
)

const (
	// defaultAdmissionLimit caps concurrent inbound peer requests.
	defaultAdmissionLimit = 24
	// defaultTimeout is the outbound per-request timeout.
	defaultTimeout = 2 * time.Minute
)

type config struct {
	admissionLimit  int
	httpClient      *http.Client
	breakerMaxRetry int
	breakerBackOff  time.Duration
	clock           clock.Clock

	timeout          time.Duration
	httpRetryMax     int
	httpRetryWaitMin time.Duration
	httpRetryWaitMax time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		admissionLimit:   defaultAdmissionLimit,
		breakerMaxRetry:  breaker.DefaultMaxRetry,
		breakerBackOff:   breaker.DefaultBackOff,
		clock:            clock.New(),
		timeout:          defaultTimeout,
		httpRetryWaitMin: 250 * time.Millisecond,
		httpRetryWaitMax: 2 * time.Second,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	if cfg.httpClient == nil {
		rclient := &retryablehttp.Client{
			RetryWaitMin: cfg.httpRetryWaitMin,
			RetryWaitMax: cfg.httpRetryWaitMax,
			RetryMax:     cfg.httpRetryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			HTTPClient: &http.Client{
				Timeout: cfg.timeout,
			},
		}
		cfg.httpClient = rclient.StandardClient()
	}
	return cfg, nil
}

// WithAdmissionLimit bounds concurrent inbound peer requests. A request
// arriving with no permit available is refused as busy rather than queued.
//
// Default is 24.
func WithAdmissionLimit(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("admission limit must be positive: %d", n)
		}
		cfg.admissionLimit = n
		return nil
	}
}

// WithClient uses an existing http.Client for outbound peer requests
// instead of the built one.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.httpClient = c
		}
		return nil
	}
}

// WithTimeout configures the outbound per-request timeout.
//
// Default is 2 minutes.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		cfg.timeout = timeout
		return nil
	}
}

// WithHTTPRetry configures transport-level retry of outbound requests. Zero
// retryMax, the default, sends each request once; replica-level retry is the
// orchestrator's job.
func WithHTTPRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return fmt.Errorf("retry max cannot be negative: %d", retryMax)
		}
		cfg.httpRetryMax = retryMax
		if waitMin > 0 {
			cfg.httpRetryWaitMin = waitMin
		}
		if waitMax > 0 {
			cfg.httpRetryWaitMax = waitMax
		}
		return nil
	}
}

// WithBreaker configures the circuit breaker wrapped around each outbound
// client: maxRetry sequential failures open it for backOff.
func WithBreaker(maxRetry int, backOff time.Duration) Option {
	return func(cfg *config) error {
		if maxRetry < 1 {
			return fmt.Errorf("breaker max retry must be positive: %d", maxRetry)
		}
		if backOff <= 0 {
			return fmt.Errorf("breaker back-off must be positive: %s", backOff)
		}
		cfg.breakerMaxRetry = maxRetry
		cfg.breakerBackOff = backOff
		return nil
	}
}

// WithClock supplies the time source used by the circuit breakers.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}
