package sdk

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/httye/fetchplayers/internal/cache"
)

// Timeout bounds applied by SetTimeout and Validate
const (
	MinTimeout = 1 * time.Second
	MaxTimeout = 300 * time.Second
)

// Config holds the configuration for the client.
// Zero values are replaced by defaults in Validate.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("http://mc.example.com:8080/api").
//	    WithAPIKey("secret").
//	    WithCache(true, 60*time.Second).
//	    WithRetries(5, 2*time.Second)
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8080/api".
	// A trailing slash is removed.
	BaseURL string `validate:"required,url"`

	// APIKey is sent with every request. It can be rotated later with
	// Client.SetAPIKey.
	APIKey string

	// Timeout bounds a single attempt and is clamped into [1s, 300s].
	// Default: 10s
	Timeout time.Duration `validate:"gte=0"`

	// Debug logs every request, failure and wait at debug level.
	Debug bool

	// CacheEnabled turns the response cache on.
	// Default: true
	CacheEnabled bool

	// CacheTTL is how long a cached response stays fresh.
	// Default: 30s
	CacheTTL time.Duration `validate:"gte=0"`

	// CacheLocation selects where cached responses are persisted: a
	// directory, a redis:// URL or a postgres:// URL. Empty keeps the
	// cache in process only.
	// Default: $TMPDIR/minecraft_api_cache
	CacheLocation string

	// CacheStore replaces the store built from the cache settings above.
	// Use it to share one store between clients. The client does not
	// close an injected store.
	CacheStore CacheStore `validate:"-"`

	// RetryAttempts is the total number of attempts per operation,
	// the first one included. No wait follows the final attempt, not even
	// the retryAfter of a 429; the operation fails with ErrRetriesExhausted
	// right away.
	// Default: 3
	RetryAttempts int `validate:"gte=0"`

	// RetryDelay is the wait between attempts after a non-429 failure.
	// Default: 1s
	RetryDelay time.Duration `validate:"gte=0"`

	// RetryStrategy overrides the constant RetryDelay between attempts.
	RetryStrategy RetryStrategy `validate:"-"`

	// RateLimitWait is used when a 429 body carries no retryAfter.
	// Default: 60s
	RateLimitWait time.Duration `validate:"gte=0"`

	// BatchPolicy decides what happens to batches above MaxBatchSize.
	// Default: BatchReject
	BatchPolicy BatchPolicy

	// RequestsPerSecond paces requests on the client side. Zero disables
	// pacing.
	RequestsPerSecond float64 `validate:"gte=0"`

	// CircuitBreaker enables a circuit breaker around attempts when set.
	CircuitBreaker *CircuitBreakerConfig `validate:"-"`

	// TransportConfig holds HTTP transport settings.
	TransportConfig TransportConfig `validate:"-"`

	// Headers are extra headers sent with every request.
	Headers map[string]string `validate:"-"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Logger receives debug and warning output. Default: the module logger.
	Logger *logrus.Logger `validate:"-"`

	// Observer is notified of requests, attempts, waits and cache lookups.
	Observer Observer `validate:"-"`

	// MetricsRegisterer, when set, registers Prometheus collectors fed by
	// a MetricsObserver.
	MetricsRegisterer prometheus.Registerer `validate:"-"`

	// TracerProvider creates one span per operation. Default: no tracing.
	TracerProvider trace.TracerProvider `validate:"-"`
}

// TransportConfig holds HTTP transport configuration for connection pooling.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections.
	// Default: 10
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 4
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays open.
	// Default: 90s
	IdleConnTimeout time.Duration

	// MaxRedirects is the number of redirects followed.
	// Default: 3
	MaxRedirects int
}

// DefaultConfig returns a Config with the defaults described on each field.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:8080/api",
		Timeout:       10 * time.Second,
		CacheEnabled:  true,
		CacheTTL:      30 * time.Second,
		CacheLocation: cache.DefaultLocation(),
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		RateLimitWait: 60 * time.Second,
		BatchPolicy:   BatchReject,
		TransportConfig: TransportConfig{
			MaxIdleConns:    10,
			MaxConnsPerHost: 4,
			IdleConnTimeout: 90 * time.Second,
			MaxRedirects:    3,
		},
		Headers: make(map[string]string),
	}
}

// WithBaseURL sets the API root URL
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithAPIKey sets the credential
func (c *Config) WithAPIKey(key string) *Config {
	c.APIKey = key
	return c
}

// WithTimeout sets the per-attempt timeout
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithDebug enables debug logging of requests and retries
func (c *Config) WithDebug(debug bool) *Config {
	c.Debug = debug
	return c
}

// WithCache enables or disables the cache and sets its TTL
func (c *Config) WithCache(enabled bool, ttl time.Duration) *Config {
	c.CacheEnabled = enabled
	c.CacheTTL = ttl
	return c
}

// WithCacheLocation sets the persisted cache location
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCacheLocation("redis://localhost:6379/0")
func (c *Config) WithCacheLocation(location string) *Config {
	c.CacheLocation = location
	return c
}

// WithCacheStore shares an existing cache store
func (c *Config) WithCacheStore(store CacheStore) *Config {
	c.CacheStore = store
	return c
}

// WithRetries sets the total attempt count and the delay between attempts
func (c *Config) WithRetries(attempts int, delay time.Duration) *Config {
	c.RetryAttempts = attempts
	c.RetryDelay = delay
	return c
}

// WithRetryStrategy sets a custom strategy for the delay between attempts
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithRetryStrategy(sdk.DefaultExponentialBackoff())
func (c *Config) WithRetryStrategy(strategy RetryStrategy) *Config {
	c.RetryStrategy = strategy
	return c
}

// WithBatchPolicy sets how oversized batches are handled
func (c *Config) WithBatchPolicy(policy BatchPolicy) *Config {
	c.BatchPolicy = policy
	return c
}

// WithRequestsPerSecond paces outgoing requests
func (c *Config) WithRequestsPerSecond(rps float64) *Config {
	c.RequestsPerSecond = rps
	return c
}

// WithCircuitBreaker enables and configures circuit breaker protection.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCircuitBreaker(sdk.CircuitBreakerConfig{
//	        FailureThreshold: 5,
//	        Timeout:          30 * time.Second,
//	    })
func (c *Config) WithCircuitBreaker(config CircuitBreakerConfig) *Config {
	c.CircuitBreaker = &config
	return c
}

// WithHeader adds a custom header to be sent with all requests
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger *logrus.Logger) *Config {
	c.Logger = logger
	return c
}

// WithObserver sets a custom observer for monitoring client operations
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithMetrics registers Prometheus collectors on reg
func (c *Config) WithMetrics(reg prometheus.Registerer) *Config {
	c.MetricsRegisterer = reg
	return c
}

// WithTracerProvider enables one span per operation
func (c *Config) WithTracerProvider(tp trace.TracerProvider) *Config {
	c.TracerProvider = tp
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	if err := validateStruct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: BaseURL must be an http or https URL with a host", ErrInvalidConfig)
	}

	if c.CircuitBreaker != nil {
		if err := validateStruct(c.CircuitBreaker); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if c.CacheStore == nil {
		if _, _, err := cache.ParseLocation(c.CacheLocation); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	c.Timeout = clampTimeout(c.Timeout)
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RateLimitWait == 0 {
		c.RateLimitWait = 60 * time.Second
	}
	if c.TransportConfig.MaxIdleConns <= 0 {
		c.TransportConfig.MaxIdleConns = 10
	}
	if c.TransportConfig.MaxConnsPerHost <= 0 {
		c.TransportConfig.MaxConnsPerHost = 4
	}
	if c.TransportConfig.IdleConnTimeout <= 0 {
		c.TransportConfig.IdleConnTimeout = 90 * time.Second
	}
	if c.TransportConfig.MaxRedirects <= 0 {
		c.TransportConfig.MaxRedirects = 3
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	return nil
}

func clampTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}
