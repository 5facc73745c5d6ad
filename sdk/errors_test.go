package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorSentinels(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		sentinel  error
		retryable bool
	}{
		{ErrorTypeValidation, ErrValidation, false},
		{ErrorTypeTransport, ErrTransport, true},
		{ErrorTypeRateLimit, ErrRateLimited, true},
		{ErrorTypeAPI, ErrAPI, true},
		{ErrorTypeDecode, ErrInvalidResponse, false},
		{ErrorTypeExhausted, ErrRetriesExhausted, false},
		{ErrorTypeCircuitOpen, ErrCircuitOpen, false},
		{ErrorTypeCanceled, ErrCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			err := NewError(tt.errType, "boom", nil)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.errType.String()+" error: boom", err.Error())
		})
	}

	assert.False(t, errors.Is(NewError(ErrorTypeAPI, "x", nil), ErrTransport))
}

func TestParseAPIError(t *testing.T) {
	t.Run("message from body", func(t *testing.T) {
		apiErr := parseAPIError(http.StatusNotFound, []byte(`{"error":"玩家未找到"}`))
		assert.Equal(t, "玩家未找到", apiErr.Message)
		assert.False(t, apiErr.IsRateLimited())
		assert.False(t, apiErr.IsServerError())
	})

	t.Run("default message", func(t *testing.T) {
		for _, body := range []string{``, `not json`, `{}`, `{"error":""}`} {
			apiErr := parseAPIError(http.StatusInternalServerError, []byte(body))
			assert.Equal(t, "unknown error", apiErr.Message, "body %q", body)
			assert.True(t, apiErr.IsServerError())
		}
	})

	t.Run("rate limit body", func(t *testing.T) {
		body := `{"error":"too many","retryAfter":5,"minuteRequests":61,"hourRequests":300,"requestsPerMinute":60,"requestsPerHour":1000}`
		apiErr := parseAPIError(http.StatusTooManyRequests, []byte(body))
		assert.True(t, apiErr.IsRateLimited())
		assert.Equal(t, 5*time.Second, apiErr.RetryAfter)
		require.NotNil(t, apiErr.Limits)
		assert.Equal(t, 60, apiErr.Limits.RequestsPerMinute)

		err := apiErr.ToError()
		assert.Equal(t, ErrorTypeRateLimit, err.Type)
		assert.Equal(t, http.StatusTooManyRequests, err.StatusCode)
		assert.Equal(t, 61, err.Details["minute_requests"])
		assert.Equal(t, "5s", err.Details["retry_after"])

		var unwrapped *APIError
		assert.True(t, errors.As(err, &unwrapped))
	})

	t.Run("fractional and string retryAfter", func(t *testing.T) {
		assert.Equal(t, 1500*time.Millisecond, parseAPIError(429, []byte(`{"retryAfter":1.5}`)).RetryAfter)
		assert.Equal(t, 12*time.Second, parseAPIError(429, []byte(`{"retryAfter":"12"}`)).RetryAfter)
		assert.Zero(t, parseAPIError(429, []byte(`{"retryAfter":-3}`)).RetryAfter)
		assert.Zero(t, parseAPIError(429, []byte(`{"retryAfter":null}`)).RetryAfter)
	})
}

func TestExhaustedError(t *testing.T) {
	last := NewError(ErrorTypeAPI, "server exploded", nil)
	last.StatusCode = http.StatusBadGateway

	err := exhaustedError(4, last)
	assert.Equal(t, "request failed after 4 attempts: server exploded", err.Message)
	assert.Equal(t, 4, err.Attempts)
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrAPI))
	assert.False(t, IsRetryable(err))
}

func TestNetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	err := (&NetworkError{Op: "GET /status", Err: cause}).ToError()

	assert.Equal(t, ErrorTypeTransport, err.Type)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "GET /status")
	assert.True(t, IsRetryable(&NetworkError{Op: "x", Err: cause}))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrorTypeUnknown, "ignored"))

	t.Run("keeps the type of an sdk error", func(t *testing.T) {
		inner := exhaustedError(3, NewError(ErrorTypeRateLimit, "slow down", nil))
		err := WrapError(inner, ErrorTypeUnknown, "failed to fetch server summary")

		assert.Equal(t, ErrorTypeExhausted, err.Type)
		assert.Contains(t, err.Error(), "failed to fetch server summary: request failed after 3 attempts")
		assert.True(t, errors.Is(err, ErrRetriesExhausted))
		assert.True(t, IsRateLimited(err))
	})

	t.Run("wraps foreign errors", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := WrapError(cause, ErrorTypeUnknown, "failed to open cache store")
		assert.Equal(t, ErrorTypeUnknown, err.Type)
		assert.Equal(t, "failed to open cache store: disk full", err.Message)
		assert.True(t, errors.Is(err, cause))
	})
}

func TestError_Context(t *testing.T) {
	err := NewError(ErrorTypeAPI, "bad", nil).
		WithContext(&ErrorContext{URL: "http://host/api/status?api_key=REDACTED", Method: http.MethodGet}).
		WithDetail("k", "v")

	assert.Equal(t, "api error: bad (url: http://host/api/status?api_key=REDACTED)", err.Error())
	assert.Equal(t, "v", err.Details["k"])
}
