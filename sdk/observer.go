package sdk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer provides hooks for monitoring client operations.
// Observer methods should be fast and non-blocking; they run on the
// calling goroutine.
//
// Example implementation:
//
//	type slowCallObserver struct{ sdk.NoopObserver }
//
//	func (o *slowCallObserver) OnRequestEnd(op string, d time.Duration, err error) {
//	    if d > time.Second {
//	        log.Printf("%s took %v", op, d)
//	    }
//	}
//
//	config := sdk.DefaultConfig().WithObserver(&slowCallObserver{})
type Observer interface {
	// OnRequestStart is called once per operation before the cache lookup.
	//
	// Parameters:
	//   - operation: operation name, e.g. "user_info"
	//   - method: HTTP method
	//   - path: request path relative to the base URL
	OnRequestStart(operation, method, path string)

	// OnRequestEnd is called once per operation with its outcome.
	OnRequestEnd(operation string, duration time.Duration, err error)

	// OnAttempt is called after every HTTP attempt. status is 0 when no
	// response was received.
	OnAttempt(operation string, attempt, status int, err error)

	// OnRetryAttempt is called before waiting for the next attempt.
	//
	// Parameters:
	//   - attempt: the attempt that just failed (1, 2, 3...)
	//   - delay: the wait before the next attempt
	//   - err: the failure that triggered the retry
	OnRetryAttempt(operation string, attempt int, delay time.Duration, err error)

	// OnRateLimited is called when a 429 imposes a wait.
	OnRateLimited(operation string, wait time.Duration)

	// OnCircuitBreakerStateChange is called when the breaker changes state.
	OnCircuitBreakerStateChange(name string, oldState, newState CircuitState)

	// OnCacheHit is called when a fresh cached response is served.
	OnCacheHit(operation, key string)

	// OnCacheMiss is called when a cacheable operation has to fetch.
	OnCacheMiss(operation, key string)
}

// NoopObserver is a no-op implementation of Observer.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(operation, method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(operation string, duration time.Duration, err error) {}

// OnAttempt does nothing
func (n *NoopObserver) OnAttempt(operation string, attempt, status int, err error) {}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
}

// OnRateLimited does nothing
func (n *NoopObserver) OnRateLimited(operation string, wait time.Duration) {}

// OnCircuitBreakerStateChange does nothing
func (n *NoopObserver) OnCircuitBreakerStateChange(name string, oldState, newState CircuitState) {
}

// OnCacheHit does nothing
func (n *NoopObserver) OnCacheHit(operation, key string) {}

// OnCacheMiss does nothing
func (n *NoopObserver) OnCacheMiss(operation, key string) {}

// MetricsCollector is a simple in-memory metrics implementation keyed by
// operation name. It is intended for debugging and tests; use
// Config.MetricsRegisterer to export Prometheus metrics.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(sdk.DefaultConfig().WithObserver(metrics))
//	// Use client...
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("cache hit rate: %.2f\n", snapshot.CacheHitRate())
type MetricsCollector struct {
	mu       sync.RWMutex
	snapshot MetricsSnapshot
}

// MetricsSnapshot is a point-in-time copy of a MetricsCollector
type MetricsSnapshot struct {
	Requests            map[string]int64
	Latencies           map[string][]time.Duration
	Errors              map[string]int64
	Attempts            map[string]int64
	Retries             map[string]int64
	RetryDelays         map[string][]time.Duration
	RateLimitWaits      map[string][]time.Duration
	CircuitStateChanges map[string]int64
	CacheHits           int64
	CacheMisses         int64
}

// CacheHitRate returns hits over lookups, 0 when nothing was looked up
func (s MetricsSnapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// NewMetricsCollector creates a new metrics collector.
// The collector is safe for concurrent use.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{snapshot: newMetricsSnapshot()}
}

func newMetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:            make(map[string]int64),
		Latencies:           make(map[string][]time.Duration),
		Errors:              make(map[string]int64),
		Attempts:            make(map[string]int64),
		Retries:             make(map[string]int64),
		RetryDelays:         make(map[string][]time.Duration),
		RateLimitWaits:      make(map[string][]time.Duration),
		CircuitStateChanges: make(map[string]int64),
	}
}

// OnRequestStart increments the request count
func (m *MetricsCollector) OnRequestStart(operation, method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Requests[operation]++
}

// OnRequestEnd records duration and errors
func (m *MetricsCollector) OnRequestEnd(operation string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Latencies[operation] = append(m.snapshot.Latencies[operation], duration)
	if err != nil {
		m.snapshot.Errors[operation]++
	}
}

// OnAttempt increments the attempt count
func (m *MetricsCollector) OnAttempt(operation string, attempt, status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Attempts[operation]++
}

// OnRetryAttempt records the retry and its delay
func (m *MetricsCollector) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Retries[operation]++
	m.snapshot.RetryDelays[operation] = append(m.snapshot.RetryDelays[operation], delay)
}

// OnRateLimited records the imposed wait
func (m *MetricsCollector) OnRateLimited(operation string, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.RateLimitWaits[operation] = append(m.snapshot.RateLimitWaits[operation], wait)
}

// OnCircuitBreakerStateChange tracks state changes
func (m *MetricsCollector) OnCircuitBreakerStateChange(name string, oldState, newState CircuitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.CircuitStateChanges[name]++
}

// OnCacheHit increments the cache hit count
func (m *MetricsCollector) OnCacheHit(operation, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.CacheHits++
}

// OnCacheMiss increments the cache miss count
func (m *MetricsCollector) OnCacheMiss(operation, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.CacheMisses++
}

// GetMetrics returns a copy of the current metrics
func (m *MetricsCollector) GetMetrics() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := newMetricsSnapshot()
	copyCounts(out.Requests, m.snapshot.Requests)
	copyCounts(out.Errors, m.snapshot.Errors)
	copyCounts(out.Attempts, m.snapshot.Attempts)
	copyCounts(out.Retries, m.snapshot.Retries)
	copyCounts(out.CircuitStateChanges, m.snapshot.CircuitStateChanges)
	copyDurations(out.Latencies, m.snapshot.Latencies)
	copyDurations(out.RetryDelays, m.snapshot.RetryDelays)
	copyDurations(out.RateLimitWaits, m.snapshot.RateLimitWaits)
	out.CacheHits = m.snapshot.CacheHits
	out.CacheMisses = m.snapshot.CacheMisses
	return out
}

func copyCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func copyDurations(dst, src map[string][]time.Duration) {
	for k, v := range src {
		dst[k] = append([]time.Duration(nil), v...)
	}
}

// LogObserver writes operation lifecycle events to a logrus logger at
// debug level, and failures at warn level. NewClient installs one when
// Config.Debug is set.
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver creates a LogObserver writing to logger
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{log: logger.WithField("component", "client")}
}

// OnRequestStart logs the request
func (o *LogObserver) OnRequestStart(operation, method, path string) {
	o.log.WithFields(logrus.Fields{
		"operation": operation,
		"method":    method,
		"path":      path,
	}).Debug("request started")
}

// OnRequestEnd logs the outcome
func (o *LogObserver) OnRequestEnd(operation string, duration time.Duration, err error) {
	entry := o.log.WithFields(logrus.Fields{
		"operation": operation,
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return
	}
	entry.Debug("request completed")
}

// OnAttempt logs each attempt
func (o *LogObserver) OnAttempt(operation string, attempt, status int, err error) {
	entry := o.log.WithFields(logrus.Fields{
		"operation": operation,
		"attempt":   attempt,
		"status":    status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("attempt finished")
}

// OnRetryAttempt logs the upcoming wait
func (o *LogObserver) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	o.log.WithFields(logrus.Fields{
		"operation": operation,
		"attempt":   attempt,
		"delay":     delay.String(),
	}).WithError(err).Debug("retrying request")
}

// OnRateLimited logs the server imposed wait
func (o *LogObserver) OnRateLimited(operation string, wait time.Duration) {
	o.log.WithFields(logrus.Fields{
		"operation": operation,
		"wait":      wait.String(),
	}).Warn("rate limited by server")
}

// OnCircuitBreakerStateChange logs the transition
func (o *LogObserver) OnCircuitBreakerStateChange(name string, oldState, newState CircuitState) {
	o.log.WithFields(logrus.Fields{
		"breaker": name,
		"from":    oldState.String(),
		"to":      newState.String(),
	}).Warn("circuit breaker state changed")
}

// OnCacheHit logs the hit
func (o *LogObserver) OnCacheHit(operation, key string) {
	o.log.WithFields(logrus.Fields{"operation": operation, "key": key}).Debug("cache hit")
}

// OnCacheMiss logs the miss
func (o *LogObserver) OnCacheMiss(operation, key string) {
	o.log.WithFields(logrus.Fields{"operation": operation, "key": key}).Debug("cache miss")
}

// CompositeObserver allows multiple observers to be combined into one.
// Child observers are called in order. A panicking observer does not
// prevent the others from being notified.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewLogObserver(logger),
//	    sdk.NewMetricsCollector(),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple
// observers. Nil observers are skipped.
func NewCompositeObserver(observers ...Observer) Observer {
	kept := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			kept = append(kept, obs)
		}
	}
	return &CompositeObserver{observers: kept}
}

// each calls fn for every child, recovering from panics
func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers
func (c *CompositeObserver) OnRequestStart(operation, method, path string) {
	c.each(func(o Observer) { o.OnRequestStart(operation, method, path) })
}

// OnRequestEnd notifies all observers
func (c *CompositeObserver) OnRequestEnd(operation string, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(operation, duration, err) })
}

// OnAttempt notifies all observers
func (c *CompositeObserver) OnAttempt(operation string, attempt, status int, err error) {
	c.each(func(o Observer) { o.OnAttempt(operation, attempt, status, err) })
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	c.each(func(o Observer) { o.OnRetryAttempt(operation, attempt, delay, err) })
}

// OnRateLimited notifies all observers
func (c *CompositeObserver) OnRateLimited(operation string, wait time.Duration) {
	c.each(func(o Observer) { o.OnRateLimited(operation, wait) })
}

// OnCircuitBreakerStateChange notifies all observers
func (c *CompositeObserver) OnCircuitBreakerStateChange(name string, oldState, newState CircuitState) {
	c.each(func(o Observer) { o.OnCircuitBreakerStateChange(name, oldState, newState) })
}

// OnCacheHit notifies all observers
func (c *CompositeObserver) OnCacheHit(operation, key string) {
	c.each(func(o Observer) { o.OnCacheHit(operation, key) })
}

// OnCacheMiss notifies all observers
func (c *CompositeObserver) OnCacheMiss(operation, key string) {
	c.each(func(o Observer) { o.OnCacheMiss(operation, key) })
}
