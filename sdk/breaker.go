package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitState represents the current state of the circuit breaker.
//
// State transitions:
//   - Closed -> Open: when FailureThreshold consecutive attempts fail
//   - Open -> Half-Open: after Timeout expires
//   - Half-Open -> Closed: when HalfOpenRequests probes succeed
//   - Half-Open -> Open: on any failure
type CircuitState int

const (
	// CircuitClosed is the normal operating state
	CircuitClosed CircuitState = iota
	// CircuitOpen fails every attempt without sending it
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probes through
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func circuitStateFrom(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior.
// Transport failures and 5xx responses count as failures. 429 and 4xx
// responses do not.
//
// Example:
//
//	config := sdk.CircuitBreakerConfig{
//	    FailureThreshold: 10,
//	    Timeout:          time.Minute,
//	    HalfOpenRequests: 2,
//	}
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// the circuit opens.
	// Default: 5
	FailureThreshold uint32 `validate:"gte=0"`

	// Timeout is how long the circuit stays open before probing.
	// Default: 30s
	Timeout time.Duration `validate:"gte=0"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	// Default: 1
	HalfOpenRequests uint32 `validate:"gte=0"`

	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration `validate:"gte=0"`
}

// DefaultCircuitBreakerConfig returns the defaults described on each field
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// errServerFailure marks a 5xx response so the breaker counts it
var errServerFailure = errors.New("server failure")

// circuitBreaker wraps gobreaker around single attempts
type circuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*RawResponse]
}

func newCircuitBreaker(name string, config CircuitBreakerConfig, observer Observer) *circuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = defaults.HalfOpenRequests
	}

	threshold := config.FailureThreshold
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observer.OnCircuitBreakerStateChange(name, circuitStateFrom(from), circuitStateFrom(to))
		},
	}

	return &circuitBreaker{cb: gobreaker.NewCircuitBreaker[*RawResponse](settings)}
}

// State returns the current breaker state
func (b *circuitBreaker) State() CircuitState {
	return circuitStateFrom(b.cb.State())
}

// execute runs fn unless the circuit is open. A rejected attempt returns
// an *Error of type ErrorTypeCircuitOpen. A 5xx response is returned with
// a nil error after being counted as a failure.
func (b *circuitBreaker) execute(fn func() (*RawResponse, error)) (*RawResponse, error) {
	resp, err := b.cb.Execute(func() (*RawResponse, error) {
		resp, err := fn()
		if err == nil && resp != nil && resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, err
	})

	switch {
	case errors.Is(err, errServerFailure):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		cbErr := NewError(ErrorTypeCircuitOpen, fmt.Sprintf("circuit breaker %s: %v", b.cb.Name(), err), err)
		return nil, cbErr
	}
	return resp, err
}
