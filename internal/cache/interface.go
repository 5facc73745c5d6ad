package cache

import (
	"context"
	"time"
)

// Entry is a single cached payload together with the time it was written.
type Entry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Fresh reports whether the entry is still inside its TTL at the given instant.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) < ttl
}

// Tier defines the operations a cache tier must support.
// Get returns (entry, true, nil) on hit and (nil, false, nil) on miss.
type Tier interface {
	// Get retrieves an entry from the tier
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores an entry, overwriting any existing entry for the key
	Set(ctx context.Context, entry *Entry) error

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry owned by the tier
	Clear(ctx context.Context) error

	// Close releases the resources held by the tier
	Close() error
}

// Pruner is implemented by tiers that can drop old entries in bulk.
// Tiers with native expiry, such as Redis, do not need it.
type Pruner interface {
	// Prune removes entries created at or before cutoff and returns how
	// many were removed
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Common errors
var (
	ErrCorruptEntry = NewCacheError("corrupt cache entry", false)
	ErrStoreClosed  = NewCacheError("cache store is closed", false)
)

// CacheError represents a cache-specific error
type CacheError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewCacheError creates a new cache error
func NewCacheError(message string, retryable bool) *CacheError {
	return &CacheError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Underlying
}

// Is matches cache errors by message so wrapped copies of the package
// sentinels still satisfy errors.Is.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return t.Message == e.Message
}

// WithError returns a copy of the error carrying an underlying cause
func (e *CacheError) WithError(err error) *CacheError {
	return &CacheError{
		Message:    e.Message,
		Retryable:  e.Retryable,
		Underlying: err,
	}
}

// IsRetryable returns whether the error is retryable
func (e *CacheError) IsRetryable() bool {
	return e.Retryable
}
