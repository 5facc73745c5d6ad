package sdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder replaces real waits and remembers their durations
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestCoordinator(t *testing.T, mutate func(*Config)) (*retryCoordinator, *sleepRecorder) {
	t.Helper()
	cfg := DefaultConfig().WithRetries(3, 10*time.Millisecond)
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	rc := newRetryCoordinator(cfg, nil)
	rec := &sleepRecorder{}
	rc.sleep = rec.sleep
	return rc, rec
}

func respond(status int, body string) attemptFunc {
	return func(ctx context.Context) (*RawResponse, error) {
		return &RawResponse{StatusCode: status, Body: []byte(body)}, nil
	}
}

func TestRetryStrategies_ExponentialBackoff(t *testing.T) {
	t.Run("basic exponential progression", func(t *testing.T) {
		strategy := &ExponentialBackoffStrategy{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
		}

		expectedIntervals := []time.Duration{
			10 * time.Millisecond,
			20 * time.Millisecond,
			40 * time.Millisecond,
			80 * time.Millisecond,
			100 * time.Millisecond, // capped
			100 * time.Millisecond,
		}
		for i, expected := range expectedIntervals {
			assert.Equal(t, expected, strategy.NextInterval(i+1), "interval for attempt %d", i+1)
		}
		assert.Zero(t, strategy.NextInterval(0))
	})

	t.Run("with jitter", func(t *testing.T) {
		strategy := &ExponentialBackoffStrategy{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
			Jitter:          0.5,
		}
		for i := 0; i < 20; i++ {
			d := strategy.NextInterval(1)
			assert.GreaterOrEqual(t, d, 50*time.Millisecond)
			assert.LessOrEqual(t, d, 150*time.Millisecond)
		}
	})
}

func TestRetryStrategies_ConstantAndFunc(t *testing.T) {
	constant := &ConstantBackoffStrategy{Interval: time.Second}
	assert.Equal(t, time.Second, constant.NextInterval(1))
	assert.Equal(t, time.Second, constant.NextInterval(7))

	linear := RetryStrategyFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	assert.Equal(t, 3*time.Millisecond, linear.NextInterval(3))
}

func TestRetryCoordinator_Success(t *testing.T) {
	rc, rec := newTestCoordinator(t, nil)

	resp, err := rc.execute(context.Background(), OpServerStatus, respond(http.StatusOK, `{"status":"online"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"online"}`, string(resp.Body))
	assert.Empty(t, rec.recorded())
}

func TestRetryCoordinator_ExhaustsAttemptCeiling(t *testing.T) {
	rc, rec := newTestCoordinator(t, nil)

	var calls atomic.Int32
	_, err := rc.execute(context.Background(), OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
		calls.Add(1)
		return &RawResponse{StatusCode: http.StatusInternalServerError, Body: []byte(`{"error":"database offline"}`)}, nil
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "database offline")

	var sdkErr *Error
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, 3, sdkErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, sdkErr.StatusCode)
	assert.False(t, sdkErr.IsRetryable())

	// No wait follows the final attempt
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, rec.recorded())
}

func TestRetryCoordinator_RecoversAfterFailures(t *testing.T) {
	rc, rec := newTestCoordinator(t, nil)

	var calls atomic.Int32
	resp, err := rc.execute(context.Background(), OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
		if calls.Add(1) < 3 {
			return &RawResponse{StatusCode: http.StatusBadGateway}, nil
		}
		return &RawResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rec.recorded(), 2)
}

func TestRetryCoordinator_RateLimitWait(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{"numeric retryAfter", `{"error":"slow down","retryAfter":5}`, 5 * time.Second},
		{"string retryAfter", `{"error":"slow down","retryAfter":"7"}`, 7 * time.Second},
		{"missing retryAfter", `{"error":"slow down"}`, 60 * time.Second},
		{"unparsable retryAfter", `{"error":"slow down","retryAfter":"soon"}`, 60 * time.Second},
		{"empty body", ``, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, rec := newTestCoordinator(t, func(c *Config) { c.RetryAttempts = 2 })

			_, err := rc.execute(context.Background(), OpOnlinePlayers, respond(http.StatusTooManyRequests, tt.body))
			require.Error(t, err)
			assert.True(t, IsRateLimited(err))
			assert.True(t, errors.Is(err, ErrRetriesExhausted))

			waits := rec.recorded()
			require.Len(t, waits, 1)
			assert.GreaterOrEqual(t, waits[0], tt.want)
			assert.Equal(t, tt.want, waits[0])
		})
	}

	t.Run("configured default wait", func(t *testing.T) {
		rc, rec := newTestCoordinator(t, func(c *Config) {
			c.RetryAttempts = 2
			c.RateLimitWait = 2 * time.Second
		})
		_, err := rc.execute(context.Background(), OpOnlinePlayers, respond(http.StatusTooManyRequests, `{}`))
		require.Error(t, err)
		assert.Equal(t, []time.Duration{2 * time.Second}, rec.recorded())
	})
}

func TestRetryCoordinator_TransportFailureIsRetried(t *testing.T) {
	rc, rec := newTestCoordinator(t, nil)

	var calls atomic.Int32
	_, err := rc.execute(context.Background(), OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
		calls.Add(1)
		return nil, &NetworkError{Op: "GET /status", Err: errors.New("connection refused")}
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, rec.recorded(), 2)
}

func TestRetryCoordinator_CustomStrategy(t *testing.T) {
	rc, rec := newTestCoordinator(t, func(c *Config) {
		c.RetryStrategy = RetryStrategyFunc(func(attempt int) time.Duration {
			return time.Duration(attempt) * 10 * time.Millisecond
		})
	})

	_, err := rc.execute(context.Background(), OpServerStatus, respond(http.StatusServiceUnavailable, ""))
	require.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.recorded())
}

func TestRetryCoordinator_Cancellation(t *testing.T) {
	t.Run("during wait", func(t *testing.T) {
		rc, _ := newTestCoordinator(t, nil)
		rc.sleep = sleepContext

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, err := rc.execute(ctx, OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
			cancel()
			return &RawResponse{StatusCode: http.StatusInternalServerError}, nil
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, IsRetryable(err))

		var sdkErr *Error
		require.True(t, errors.As(err, &sdkErr))
		assert.Equal(t, 1, sdkErr.Attempts)
	})

	t.Run("during attempt", func(t *testing.T) {
		rc, rec := newTestCoordinator(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rc.execute(ctx, OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
			return nil, &NetworkError{Op: "GET /status", Err: ctx.Err()}
		})
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.Empty(t, rec.recorded())
	})

	t.Run("while paced", func(t *testing.T) {
		rc, _ := newTestCoordinator(t, func(c *Config) { c.RequestsPerSecond = 1000 })
		require.NotNil(t, rc.limiter)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32
		_, err := rc.execute(ctx, OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
			calls.Add(1)
			return &RawResponse{StatusCode: http.StatusOK}, nil
		})
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.Zero(t, calls.Load())
	})
}

func TestRetryCoordinator_CircuitBreaker(t *testing.T) {
	collector := NewMetricsCollector()
	rc, _ := newTestCoordinator(t, func(c *Config) { c.Observer = collector })
	rc.breaker = newCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Minute,
	}, collector)

	var calls atomic.Int32
	_, err := rc.execute(context.Background(), OpServerStatus, func(ctx context.Context) (*RawResponse, error) {
		calls.Add(1)
		return &RawResponse{StatusCode: http.StatusInternalServerError}, nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, int32(2), calls.Load(), "the third attempt must not reach the server")
	assert.Equal(t, CircuitOpen, rc.breaker.State())
	assert.Equal(t, int64(1), collector.GetMetrics().CircuitStateChanges["test"])

	t.Run("rate limits do not trip the breaker", func(t *testing.T) {
		rc, _ := newTestCoordinator(t, nil)
		rc.breaker = newCircuitBreaker("test-429", CircuitBreakerConfig{FailureThreshold: 1}, &NoopObserver{})

		_, err := rc.execute(context.Background(), OpServerStatus, respond(http.StatusTooManyRequests, `{"retryAfter":1}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRetriesExhausted))
		assert.Equal(t, CircuitClosed, rc.breaker.State())
	})
}
