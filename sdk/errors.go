package sdk

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	profile, err := client.UserInfo(ctx, "Steve")
//	switch {
//	case errors.Is(err, sdk.ErrValidation):
//	    // Bad input, nothing was sent
//	case errors.Is(err, sdk.ErrRetriesExhausted):
//	    // Every attempt failed; errors.Is(err, sdk.ErrRateLimited) tells
//	    // whether the last one was a 429
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrValidation is returned when a request fails local validation
	ErrValidation = errors.New("validation failed")

	// ErrTransport is returned when the HTTP exchange itself failed
	ErrTransport = errors.New("transport failure")

	// ErrRateLimited is returned when the server answered 429
	ErrRateLimited = errors.New("rate limited")

	// ErrAPI is returned when the server answered with a non-200 status
	ErrAPI = errors.New("api error")

	// ErrInvalidResponse is returned when the server response cannot be parsed
	ErrInvalidResponse = errors.New("invalid response from server")

	// ErrRetriesExhausted is returned when every attempt failed
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCanceled is returned when the context ended before completion
	ErrCanceled = errors.New("request canceled")

	// ErrClientClosed is returned when the client has been closed
	ErrClientClosed = errors.New("client is closed")
)

// ErrorType represents the type of error for categorization and handling.
// Different error types have different retry behaviors.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeValidation represents invalid input rejected before any request
	ErrorTypeValidation
	// ErrorTypeTransport represents connection, DNS, TLS or timeout failures
	ErrorTypeTransport
	// ErrorTypeRateLimit represents 429 Too Many Requests responses
	ErrorTypeRateLimit
	// ErrorTypeAPI represents any other non-200 response
	ErrorTypeAPI
	// ErrorTypeDecode represents a 200 response whose body could not be decoded
	ErrorTypeDecode
	// ErrorTypeExhausted represents running out of attempts
	ErrorTypeExhausted
	// ErrorTypeCircuitOpen represents circuit breaker open state errors
	ErrorTypeCircuitOpen
	// ErrorTypeCanceled represents context cancellation or deadline expiry
	ErrorTypeCanceled
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeAPI:
		return "api"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeExhausted:
		return "exhausted"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error represents an enhanced error with additional context and metadata.
// It supports errors.Is against the package sentinels and errors.As for
// the underlying APIError or NetworkError.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    fmt.Printf("type=%s attempts=%d status=%d\n",
//	        sdkErr.Type, sdkErr.Attempts, sdkErr.StatusCode)
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Operation is the client operation that failed, e.g. "user_info"
	Operation string `json:"operation,omitempty"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// StatusCode is the HTTP status of the last response, 0 if none
	StatusCode int `json:"status_code,omitempty"`
	// Attempts is the number of attempts made before giving up
	Attempts int `json:"attempts,omitempty"`
	// Details contains additional error metadata
	Details map[string]interface{} `json:"details,omitempty"`
	// RequestID is the X-Request-ID sent with the operation
	RequestID string `json:"request_id,omitempty"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// Retryable indicates if the coordinator may attempt the request again
	Retryable bool `json:"retryable"`
	// Context provides additional context about the failed request
	Context *ErrorContext `json:"context,omitempty"`
	// wrapped is the underlying error, if any
	wrapped error
}

// ErrorContext provides additional context about the request that failed.
// URL never carries the credential.
type ErrorContext struct {
	// URL is the request URL with the api_key parameter redacted
	URL string `json:"url,omitempty"`
	// Method is the HTTP method used
	Method string `json:"method,omitempty"`
	// Duration is how long the operation took before failing
	Duration time.Duration `json:"duration,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != nil && e.Context.URL != "" {
		return fmt.Sprintf("%s error: %s (url: %s)", e.Type, e.Message, e.Context.URL)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeValidation:
		return target == ErrValidation
	case ErrorTypeTransport:
		return target == ErrTransport
	case ErrorTypeRateLimit:
		return target == ErrRateLimited
	case ErrorTypeAPI:
		return target == ErrAPI
	case ErrorTypeDecode:
		return target == ErrInvalidResponse
	case ErrorTypeExhausted:
		return target == ErrRetriesExhausted
	case ErrorTypeCircuitOpen:
		return target == ErrCircuitOpen
	case ErrorTypeCanceled:
		return target == ErrCanceled
	}
	return false
}

// IsRetryable returns true if the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds error context
func (e *Error) WithContext(ctx *ErrorContext) *Error {
	e.Context = ctx
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError creates a new enhanced error
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryableType(errType),
		wrapped:   wrapped,
	}
}

// isRetryableType determines if an error type is retryable
func isRetryableType(errType ErrorType) bool {
	switch errType {
	case ErrorTypeTransport, ErrorTypeRateLimit, ErrorTypeAPI:
		return true
	default:
		return false
	}
}

// validationError creates a non-retryable validation error
func validationError(format string, args ...interface{}) *Error {
	return NewError(ErrorTypeValidation, fmt.Sprintf(format, args...), nil)
}

// exhaustedError summarizes a failed run of attempts. It wraps the last
// failure so errors.Is still reaches the cause.
func exhaustedError(attempts int, last *Error) *Error {
	msg := fmt.Sprintf("request failed after %d attempts", attempts)
	var wrapped error
	if last != nil {
		msg = fmt.Sprintf("%s: %s", msg, last.Message)
		wrapped = last
	}
	err := NewError(ErrorTypeExhausted, msg, wrapped)
	err.Attempts = attempts
	if last != nil {
		err.StatusCode = last.StatusCode
		err.Context = last.Context
	}
	return err
}

// defaultAPIMessage is used when an error body carries no message
const defaultAPIMessage = "unknown error"

// APIError represents an error response from the API.
//
// Example:
//
//	var apiErr *sdk.APIError
//	if errors.As(err, &apiErr) && apiErr.IsRateLimited() {
//	    fmt.Printf("server asked us to wait %v\n", apiErr.RetryAfter)
//	}
type APIError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int
	// Message is the "error" field of the body, or "unknown error"
	Message string
	// RetryAfter is the server requested wait for 429 responses, 0 if absent
	RetryAfter time.Duration
	// Limits carries the rate-limit counters some 429 bodies include
	Limits *RateLimitInfo
}

// RateLimitInfo holds the counters the server reports with a 429
type RateLimitInfo struct {
	MinuteRequests    int `json:"minuteRequests"`
	HourRequests      int `json:"hourRequests"`
	RequestsPerMinute int `json:"requestsPerMinute"`
	RequestsPerHour   int `json:"requestsPerHour"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for 429 responses
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// ToError converts APIError to the enhanced Error type
func (e *APIError) ToError() *Error {
	errType := ErrorTypeAPI
	if e.IsRateLimited() {
		errType = ErrorTypeRateLimit
	}

	err := NewError(errType, e.Message, e)
	err.StatusCode = e.StatusCode
	if e.IsRateLimited() {
		err.WithDetail("retry_after", e.RetryAfter.String())
	}
	if e.Limits != nil {
		err.WithDetail("minute_requests", e.Limits.MinuteRequests)
		err.WithDetail("hour_requests", e.Limits.HourRequests)
		err.WithDetail("requests_per_minute", e.Limits.RequestsPerMinute)
		err.WithDetail("requests_per_hour", e.Limits.RequestsPerHour)
	}
	return err
}

// errorBody is the JSON shape of an error response
type errorBody struct {
	Error      string          `json:"error"`
	RetryAfter json.RawMessage `json:"retryAfter"`
	RateLimitInfo
}

// parseAPIError builds an APIError from a non-200 response. Malformed or
// empty bodies still produce an error with the default message.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    defaultAPIMessage,
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	if parsed.Error != "" {
		apiErr.Message = parsed.Error
	}
	if seconds, ok := parseRetryAfter(parsed.RetryAfter); ok {
		apiErr.RetryAfter = time.Duration(seconds * float64(time.Second))
	}
	if parsed.RateLimitInfo != (RateLimitInfo{}) {
		limits := parsed.RateLimitInfo
		apiErr.Limits = &limits
	}
	return apiErr
}

// parseRetryAfter accepts a JSON number or a numeric string
func parseRetryAfter(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	s := string(bytes.Trim(raw, `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// NetworkError represents a failure of the HTTP exchange itself such as
// connection refused, DNS resolution failure or an attempt timeout.
type NetworkError struct {
	// Op is the request that failed, e.g. "GET /user/info"
	Op string
	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToError converts NetworkError to the enhanced Error type
func (e *NetworkError) ToError() *Error {
	err := NewError(ErrorTypeTransport, e.Error(), e)
	err.WithDetail("operation", e.Op)
	return err
}

// IsRetryable checks if an error would be retried by the coordinator
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var enhancedErr *Error
	if errors.As(err, &enhancedErr) {
		return enhancedErr.IsRetryable()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsValidation reports whether err was raised before any request was sent
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRateLimited reports whether err is, or was caused by, a 429 response
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// WrapError wraps an error with additional context and type information.
// The type and retryability of an existing *Error are preserved and the
// message is prefixed.
//
// Example:
//
//	if err != nil {
//	    return sdk.WrapError(err, sdk.ErrorTypeUnknown, "failed to fetch server summary")
//	}
func WrapError(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var enhancedErr *Error
	if errors.As(err, &enhancedErr) {
		wrapped := *enhancedErr
		wrapped.Message = message + ": " + enhancedErr.Message
		wrapped.wrapped = err
		return &wrapped
	}

	return NewError(errType, message+": "+err.Error(), err)
}
