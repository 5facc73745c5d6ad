package sdk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RetryStrategy computes the wait between attempts after a retryable
// failure other than a 429. Rate-limited attempts always wait for the
// server requested duration instead.
//
// The SDK provides two built-in strategies:
//   - ConstantBackoffStrategy: the same delay every time (default, RetryDelay)
//   - ExponentialBackoffStrategy: exponentially increasing delays with jitter
//
// Custom strategies can be written as a function:
//
//	strategy := sdk.RetryStrategyFunc(func(attempt int) time.Duration {
//	    return time.Duration(attempt) * time.Second
//	})
type RetryStrategy interface {
	// NextInterval returns the delay after the given failed attempt.
	// The attempt parameter starts at 1.
	NextInterval(attempt int) time.Duration
}

// RetryStrategyFunc adapts a function to RetryStrategy
type RetryStrategyFunc func(attempt int) time.Duration

// NextInterval calls f
func (f RetryStrategyFunc) NextInterval(attempt int) time.Duration {
	return f(attempt)
}

// ConstantBackoffStrategy waits the same interval after every failure.
type ConstantBackoffStrategy struct {
	Interval time.Duration
}

// NextInterval returns the fixed interval
func (s *ConstantBackoffStrategy) NextInterval(attempt int) time.Duration {
	return s.Interval
}

// ExponentialBackoffStrategy implements exponential backoff with jitter.
//
// The delay calculation is:
//
//	base = InitialInterval * (Multiplier ^ (attempt-1))
//	delay = min(base, MaxInterval) ± jitter
type ExponentialBackoffStrategy struct {
	// InitialInterval is the delay after the first failure
	InitialInterval time.Duration

	// MaxInterval caps the delay
	MaxInterval time.Duration

	// Multiplier is the exponential growth factor
	Multiplier float64

	// Jitter is the randomization factor (0.0 to 1.0)
	Jitter float64
}

// DefaultExponentialBackoff returns an exponential backoff strategy starting
// at one second, doubling up to thirty seconds with ±20% jitter.
func DefaultExponentialBackoff() *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// NextInterval calculates the next retry interval
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	// Calculate base interval
	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))

	// Cap at max interval
	if s.MaxInterval > 0 && interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}

	// Apply jitter
	if s.Jitter > 0 {
		jitterRange := interval * s.Jitter
		interval += jitterRange * (2*rand.Float64() - 1)
	}

	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// outcomeKind classifies a single attempt
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

// attemptOutcome is the classified result of one attempt
type attemptOutcome struct {
	kind     outcomeKind
	response *RawResponse
	err      *Error
	// wait is the server imposed delay of a 429, zero otherwise
	wait time.Duration
}

// attemptFunc performs one HTTP exchange
type attemptFunc func(ctx context.Context) (*RawResponse, error)

// retryCoordinator drives attempts until success, a fatal outcome, or the
// attempt ceiling.
type retryCoordinator struct {
	attempts      int
	strategy      RetryStrategy
	rateLimitWait time.Duration
	limiter       *rate.Limiter
	breaker       *circuitBreaker
	observer      Observer
	// sleep blocks for d or until ctx ends
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryCoordinator(config *Config, breaker *circuitBreaker) *retryCoordinator {
	strategy := config.RetryStrategy
	if strategy == nil {
		strategy = &ConstantBackoffStrategy{Interval: config.RetryDelay}
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := int(math.Ceil(config.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &retryCoordinator{
		attempts:      config.RetryAttempts,
		strategy:      strategy,
		rateLimitWait: config.RateLimitWait,
		limiter:       limiter,
		breaker:       breaker,
		observer:      config.Observer,
		sleep:         sleepContext,
	}
}

// sleepContext waits for d unless ctx ends first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// execute runs fn up to the attempt ceiling. Only success, exhaustion and
// fatal errors (validation, decode, circuit open, cancellation) leave it.
func (rc *retryCoordinator) execute(ctx context.Context, operation string, fn attemptFunc) (*RawResponse, error) {
	var last *Error

	for attempt := 1; attempt <= rc.attempts; attempt++ {
		if rc.limiter != nil {
			if err := rc.limiter.Wait(ctx); err != nil {
				return nil, canceledError(ctx, err, attempt-1)
			}
		}

		outcome := rc.attempt(ctx, fn)
		rc.observer.OnAttempt(operation, attempt, outcome.statusCode(), outcome.errOrNil())

		switch outcome.kind {
		case outcomeSuccess:
			return outcome.response, nil
		case outcomeFatal:
			outcome.err.Attempts = attempt
			return nil, outcome.err
		}

		last = outcome.err
		last.Attempts = attempt

		// Nothing is gained by waiting after the final attempt
		if attempt == rc.attempts {
			break
		}

		delay := rc.strategy.NextInterval(attempt)
		if last.Type == ErrorTypeRateLimit {
			delay = outcome.wait
			rc.observer.OnRateLimited(operation, delay)
		}
		rc.observer.OnRetryAttempt(operation, attempt, delay, last)

		if err := rc.sleep(ctx, delay); err != nil {
			return nil, canceledError(ctx, err, attempt)
		}
	}

	return nil, exhaustedError(rc.attempts, last)
}

// attempt performs one exchange, through the breaker when configured, and
// classifies the result.
func (rc *retryCoordinator) attempt(ctx context.Context, fn attemptFunc) attemptOutcome {
	var (
		resp *RawResponse
		err  error
	)
	if rc.breaker != nil {
		resp, err = rc.breaker.execute(func() (*RawResponse, error) {
			return fn(ctx)
		})
	} else {
		resp, err = fn(ctx)
	}

	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{kind: outcomeFatal, err: canceledError(ctx, ctx.Err(), 0)}
		}
		if errors.Is(err, ErrCircuitOpen) {
			var cbErr *Error
			errors.As(err, &cbErr)
			return attemptOutcome{kind: outcomeFatal, err: cbErr}
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			netErr = &NetworkError{Op: "request", Err: err}
		}
		return attemptOutcome{kind: outcomeRetryable, err: netErr.ToError()}
	}

	return rc.classify(resp)
}

// classify turns a response into an outcome. Only 200 is a success.
func (rc *retryCoordinator) classify(resp *RawResponse) attemptOutcome {
	if resp.StatusCode == http.StatusOK {
		return attemptOutcome{kind: outcomeSuccess, response: resp}
	}

	apiErr := parseAPIError(resp.StatusCode, resp.Body)
	outcome := attemptOutcome{
		kind:     outcomeRetryable,
		response: resp,
		err:      apiErr.ToError(),
	}

	if apiErr.IsRateLimited() {
		outcome.wait = apiErr.RetryAfter
		if outcome.wait <= 0 {
			outcome.wait = rc.rateLimitWait
		}
		outcome.err.WithDetail("wait", outcome.wait.String())
	}
	return outcome
}

func (o attemptOutcome) statusCode() int {
	if o.response == nil {
		return 0
	}
	return o.response.StatusCode
}

func (o attemptOutcome) errOrNil() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// canceledError reports that ctx ended the operation
func canceledError(ctx context.Context, cause error, attempts int) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = ctxErr
	}
	err := NewError(ErrorTypeCanceled, fmt.Sprintf("request canceled: %v", cause), cause)
	err.Attempts = attempts
	return err
}
