package sdk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/httye/fetchplayers/internal/telemetry"
)

// instrumentationName identifies the client's tracer
const instrumentationName = "github.com/httye/fetchplayers/sdk"

// breakerName labels the circuit breaker in logs and metrics
const breakerName = "userinfo-api"

// Client is a client for the UserInfoAPI game-server administration API.
// All methods are safe for concurrent use and block until the operation
// succeeds, fails fatally or exhausts its attempts.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("http://mc.example.com:8080/api").
//	    WithAPIKey("secret"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	profile, err := client.UserInfo(ctx, "Steve")
//	if err != nil {
//	    log.Printf("lookup failed: %v", err)
//	}
type Client interface {
	// UserInfo returns the full profile of a player. Cached.
	UserInfo(ctx context.Context, username string, opts ...CallOption) (*UserProfile, error)

	// UserLevel returns level and experience. Cached.
	UserLevel(ctx context.Context, username string, opts ...CallOption) (*LevelInfo, error)

	// UserLocation returns position, world and biome. Cached.
	UserLocation(ctx context.Context, username string, opts ...CallOption) (*LocationInfo, error)

	// UserInventory returns the inventory of an online player. Cached.
	UserInventory(ctx context.Context, username string, opts ...CallOption) (*InventoryInfo, error)

	// LoginRecords returns up to limit sessions, clamped into [1, 100].
	// Cached per username and limit.
	LoginRecords(ctx context.Context, username string, limit int, opts ...CallOption) (*LoginRecords, error)

	// OnlinePlayers lists the players currently online
	OnlinePlayers(ctx context.Context) (*OnlinePlayers, error)

	// ServerStatus reports whether the API is up
	ServerStatus(ctx context.Context) (*ServerStatus, error)

	// SecurityInfo describes the server's API key configuration. Cached.
	SecurityInfo(ctx context.Context, opts ...CallOption) (*SecurityInfo, error)

	// ChatRecords returns chat history of one player or of everyone
	ChatRecords(ctx context.Context, query ChatQuery) (*ChatRecords, error)

	// ServerResources returns memory, CPU or TPS figures. An empty type
	// requests all of them.
	ServerResources(ctx context.Context, resourceType ResourceType) (*ServerResources, error)

	// BatchQuery looks up several players in one request. Batches above
	// MaxBatchSize follow Config.BatchPolicy.
	BatchQuery(ctx context.Context, usernames []string, queryType QueryType) (*BatchResults, error)

	// Export downloads a report. The body is returned unchanged.
	Export(ctx context.Context, query ExportQuery) ([]byte, error)

	// IsPlayerOnline reports whether username is online. Failures read
	// as offline.
	IsPlayerOnline(ctx context.Context, username string) bool

	// PlayerOnlineTime returns the current session length of an online
	// player. Failures and offline players return false.
	PlayerOnlineTime(ctx context.Context, username string) (time.Duration, bool)

	// OnlineStatuses maps every username to its presence. Failures mark
	// everyone offline.
	OnlineStatuses(ctx context.Context, usernames []string) map[string]bool

	// ServerSummary combines status, online players and security info
	ServerSummary(ctx context.Context) (*ServerSummary, error)

	// ClearCache empties both cache tiers
	ClearCache(ctx context.Context) error

	// PruneCache removes stale entries and returns how many were removed.
	// Stores that cannot prune report 0.
	PruneCache(ctx context.Context) (int, error)

	// SetAPIKey replaces the credential used by subsequent attempts
	SetAPIKey(key string)

	// SetTimeout changes the per-attempt timeout, clamped into [1s, 300s]
	SetTimeout(timeout time.Duration)

	// Timeout returns the current per-attempt timeout
	Timeout() time.Duration

	// Close releases connections and the cache store. Close is safe to
	// call multiple times.
	Close() error
}

// CallOption adjusts a single call
type CallOption func(*callOptions)

type callOptions struct {
	skipCache bool
}

// SkipCache bypasses the cache for one call: no lookup and no store.
func SkipCache() CallOption {
	return func(o *callOptions) {
		o.skipCache = true
	}
}

// client is the concrete implementation of the Client interface
type client struct {
	config    *Config
	transport transport
	builder   requestBuilder
	retry     *retryCoordinator
	breaker   *circuitBreaker
	cache     CacheStore
	ownsCache bool
	observer  Observer
	tracer    trace.Tracer
	log       *logrus.Entry
	apiKey    atomic.Pointer[string]

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a client with the provided configuration.
// If config is nil, DefaultConfig is used.
func NewClient(config *Config) (Client, error) {
	return NewClientContext(context.Background(), config)
}

// NewClientContext is NewClient with a context bounding the connection to
// a remote cache store.
func NewClientContext(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	// The client keeps its own copy so one Config can build several clients
	cfg := *config
	config = &cfg
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = telemetry.L()
		if config.Debug {
			logger = debugLogger(logger)
		}
	}
	if config.Debug && !logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.SetLevel(logrus.DebugLevel)
	}

	observer := config.Observer
	if config.Debug || config.MetricsRegisterer != nil {
		observers := []Observer{observer}
		if config.Debug {
			observers = append(observers, NewLogObserver(logger))
		}
		if config.MetricsRegisterer != nil {
			observers = append(observers, NewMetricsObserver(config.MetricsRegisterer))
		}
		observer = NewCompositeObserver(observers...)
	}
	config.Observer = observer

	tp := config.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	c := &client{
		config:    config,
		transport: newHTTPTransport(config),
		builder:   requestBuilder{batchPolicy: config.BatchPolicy},
		observer:  observer,
		tracer:    tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version)),
		log:       logger.WithField("component", "client"),
	}
	c.apiKey.Store(&config.APIKey)

	if config.CircuitBreaker != nil {
		c.breaker = newCircuitBreaker(breakerName, *config.CircuitBreaker, observer)
	}
	c.retry = newRetryCoordinator(config, c.breaker)

	switch {
	case config.CacheStore != nil:
		c.cache = config.CacheStore
	case config.CacheEnabled:
		store, err := OpenCacheStore(ctx, config)
		if err != nil {
			_ = c.transport.close()
			return nil, err
		}
		c.cache = store
		c.ownsCache = true
	}

	return c, nil
}

// debugLogger returns a debug-level logger writing where base writes,
// leaving base's own level untouched
func debugLogger(base *logrus.Logger) *logrus.Logger {
	hooks := make(logrus.LevelHooks, len(base.Hooks))
	for level, hs := range base.Hooks {
		hooks[level] = append([]logrus.Hook(nil), hs...)
	}

	l := logrus.New()
	l.SetOutput(base.Out)
	l.SetFormatter(base.Formatter)
	l.SetReportCaller(base.ReportCaller)
	l.ReplaceHooks(hooks)
	l.SetLevel(logrus.DebugLevel)
	return l
}

func (c *client) currentAPIKey() string {
	return *c.apiKey.Load()
}

func (c *client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// execute runs one logical operation: cache lookup, attempts, decode and
// cache store. decode is nil for raw operations, whose body is returned.
func (c *client) execute(ctx context.Context, spec *RequestSpec, decode func([]byte) error, opts []CallOption) (body []byte, err error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "userinfo."+spec.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("userinfo.operation", spec.Operation),
			attribute.String("http.method", spec.Method),
			attribute.String("http.route", spec.Path),
			attribute.String("userinfo.request_id", requestID),
		))

	start := time.Now()
	c.observer.OnRequestStart(spec.Operation, spec.Method, spec.Path)
	defer func() {
		duration := time.Since(start)
		if err != nil {
			var sdkErr *Error
			if errors.As(err, &sdkErr) {
				sdkErr.Operation = spec.Operation
				sdkErr.RequestID = requestID
				if sdkErr.Context == nil {
					sdkErr.Context = &ErrorContext{
						URL:      redactURL(requestURL(c.config.BaseURL, spec, c.currentAPIKey())),
						Method:   spec.Method,
						Duration: duration,
					}
				}
				span.SetAttributes(attribute.String("userinfo.error_type", sdkErr.Type.String()))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		c.observer.OnRequestEnd(spec.Operation, duration, err)
		span.End()
	}()

	cacheable := c.cache != nil && spec.Cacheable() && !o.skipCache
	if cacheable {
		if payload, ok := c.cache.Get(ctx, spec.CacheKey); ok {
			if decode == nil || decode(payload) == nil {
				c.observer.OnCacheHit(spec.Operation, spec.CacheKey)
				span.SetAttributes(attribute.Bool("userinfo.cache_hit", true))
				return payload, nil
			}
			c.log.WithField("key", spec.CacheKey).Warn("ignoring undecodable cached response")
		}
		c.observer.OnCacheMiss(spec.Operation, spec.CacheKey)
		span.SetAttributes(attribute.Bool("userinfo.cache_hit", false))
	}

	resp, err := c.retry.execute(ctx, spec.Operation, func(ctx context.Context) (*RawResponse, error) {
		return c.transport.do(ctx, spec, c.currentAPIKey(), requestID)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if decode != nil {
		if err := decode(resp.Body); err != nil {
			return nil, err
		}
	}

	if cacheable {
		if err := c.cache.Set(ctx, spec.CacheKey, resp.Body); err != nil {
			c.log.WithError(err).WithField("key", spec.CacheKey).Warn("failed to cache response")
		}
	}
	return resp.Body, nil
}

// fetch executes the request and decodes the JSON body into a T
func fetch[T any](ctx context.Context, c *client, spec *RequestSpec, opts ...CallOption) (*T, error) {
	var out *T
	_, err := c.execute(ctx, spec, func(body []byte) error {
		var v T
		if err := decodeResponse(spec.Operation, body, &v); err != nil {
			return err
		}
		out = &v
		return nil
	}, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserInfo returns the full profile of a player
func (c *client) UserInfo(ctx context.Context, username string, opts ...CallOption) (*UserProfile, error) {
	spec, err := c.builder.userInfo(username)
	if err != nil {
		return nil, err
	}
	return fetch[UserProfile](ctx, c, spec, opts...)
}

// UserLevel returns level and experience
func (c *client) UserLevel(ctx context.Context, username string, opts ...CallOption) (*LevelInfo, error) {
	spec, err := c.builder.userLevel(username)
	if err != nil {
		return nil, err
	}
	return fetch[LevelInfo](ctx, c, spec, opts...)
}

// UserLocation returns position, world and biome
func (c *client) UserLocation(ctx context.Context, username string, opts ...CallOption) (*LocationInfo, error) {
	spec, err := c.builder.userLocation(username)
	if err != nil {
		return nil, err
	}
	return fetch[LocationInfo](ctx, c, spec, opts...)
}

// UserInventory returns the inventory of a player
func (c *client) UserInventory(ctx context.Context, username string, opts ...CallOption) (*InventoryInfo, error) {
	spec, err := c.builder.userInventory(username)
	if err != nil {
		return nil, err
	}
	return fetch[InventoryInfo](ctx, c, spec, opts...)
}

// LoginRecords returns the session history of a player
func (c *client) LoginRecords(ctx context.Context, username string, limit int, opts ...CallOption) (*LoginRecords, error) {
	spec, err := c.builder.loginRecords(username, limit)
	if err != nil {
		return nil, err
	}
	return fetch[LoginRecords](ctx, c, spec, opts...)
}

// OnlinePlayers lists the players currently online
func (c *client) OnlinePlayers(ctx context.Context) (*OnlinePlayers, error) {
	return fetch[OnlinePlayers](ctx, c, c.builder.onlinePlayers())
}

// ServerStatus reports whether the API is up
func (c *client) ServerStatus(ctx context.Context) (*ServerStatus, error) {
	return fetch[ServerStatus](ctx, c, c.builder.serverStatus())
}

// SecurityInfo describes the API key configuration
func (c *client) SecurityInfo(ctx context.Context, opts ...CallOption) (*SecurityInfo, error) {
	return fetch[SecurityInfo](ctx, c, c.builder.securityInfo(), opts...)
}

// ChatRecords returns chat history
func (c *client) ChatRecords(ctx context.Context, query ChatQuery) (*ChatRecords, error) {
	spec, err := c.builder.chatRecords(query)
	if err != nil {
		return nil, err
	}
	return fetch[ChatRecords](ctx, c, spec)
}

// ServerResources returns resource figures
func (c *client) ServerResources(ctx context.Context, resourceType ResourceType) (*ServerResources, error) {
	spec, err := c.builder.serverResources(resourceType)
	if err != nil {
		return nil, err
	}
	return fetch[ServerResources](ctx, c, spec)
}

// BatchQuery looks up several players in one request
func (c *client) BatchQuery(ctx context.Context, usernames []string, queryType QueryType) (*BatchResults, error) {
	spec, sent, err := c.builder.batch(usernames, queryType)
	if err != nil {
		return nil, err
	}
	if len(sent) < len(usernames) {
		c.log.WithFields(logrus.Fields{
			"requested": len(usernames),
			"sent":      len(sent),
		}).Warn("batch truncated")
	}
	return fetch[BatchResults](ctx, c, spec)
}

// Export downloads a report
func (c *client) Export(ctx context.Context, query ExportQuery) ([]byte, error) {
	spec, err := c.builder.export(query)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, spec, nil, nil)
}

// ClearCache empties both cache tiers
func (c *client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// PruneCache removes stale entries from the cache
func (c *client) PruneCache(ctx context.Context) (int, error) {
	p, ok := c.cache.(PrunableStore)
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx)
}

// SetAPIKey replaces the credential
func (c *client) SetAPIKey(key string) {
	c.apiKey.Store(&key)
}

// SetTimeout changes the per-attempt timeout
func (c *client) SetTimeout(timeout time.Duration) {
	c.transport.setTimeout(clampTimeout(timeout))
}

// Timeout returns the per-attempt timeout
func (c *client) Timeout() time.Duration {
	return c.transport.getTimeout()
}

// Close closes the client and releases all resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.transport.close(); err != nil {
		errs = append(errs, err)
	}
	if c.ownsCache {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
