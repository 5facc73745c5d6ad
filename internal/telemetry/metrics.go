package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of client-side Prometheus collectors. Collectors are
// registered on the Registerer given to NewMetrics; calling NewMetrics again
// on the same Registerer reuses the collectors already registered there.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	attemptsTotal      *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
	rateLimitWait      prometheus.Counter
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	circuitBreakerOpen *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors under the given namespace.
// A nil Registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := registeringFactory{reg: reg}

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of logical API operations",
		}, []string{"operation", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of logical API operations in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of HTTP attempts",
		}, []string{"operation", "result"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of rate limited responses",
		}, []string{"operation"}),

		rateLimitWait: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Total time spent waiting on server rate limits",
		}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"operation"}),

		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"operation"}),

		circuitBreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "Whether the circuit breaker is open (1) or not (0)",
		}, []string{"breaker"}),
	}
}

// registeringFactory mirrors promauto.Factory but returns the existing
// collector when an identical one is already registered
type registeringFactory struct {
	reg prometheus.Registerer
}

func (f registeringFactory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(f.reg, prometheus.NewCounterVec(opts, labels))
}

func (f registeringFactory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	return register(f.reg, prometheus.NewCounter(opts))
}

func (f registeringFactory) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(f.reg, prometheus.NewHistogramVec(opts, labels))
}

func (f registeringFactory) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	return register(f.reg, prometheus.NewGaugeVec(opts, labels))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RecordRequest records the end of a logical operation
func (m *Metrics) RecordRequest(operation, outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAttempt records the result of a single HTTP attempt
func (m *Metrics) RecordAttempt(operation, result string) {
	m.attemptsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRateLimited records a 429 and the wait it imposed
func (m *Metrics) RecordRateLimited(operation string, wait time.Duration) {
	m.rateLimitedTotal.WithLabelValues(operation).Inc()
	m.rateLimitWait.Add(wait.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(operation string) {
	m.cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(operation string) {
	m.cacheMisses.WithLabelValues(operation).Inc()
}

// SetCircuitBreakerOpen records the breaker state
func (m *Metrics) SetCircuitBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.circuitBreakerOpen.WithLabelValues(name).Set(v)
}

// WriteMetricsFile writes everything gathered by g to path in the
// Prometheus text format.
func WriteMetricsFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
