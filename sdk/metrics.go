package sdk

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/httye/fetchplayers/internal/telemetry"
)

// MetricsNamespace prefixes every Prometheus metric exported by the client
const MetricsNamespace = "userinfo"

// MetricsObserver feeds client events into Prometheus collectors.
// NewClient installs one when Config.MetricsRegisterer is set.
type MetricsObserver struct {
	NoopObserver
	metrics *telemetry.Metrics
}

// NewMetricsObserver registers the client collectors on reg
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	return &MetricsObserver{metrics: telemetry.NewMetrics(reg, MetricsNamespace)}
}

// OnRequestEnd records the operation outcome and duration
func (o *MetricsObserver) OnRequestEnd(operation string, duration time.Duration, err error) {
	o.metrics.RecordRequest(operation, outcomeLabel(err), duration)
}

// OnAttempt records the attempt result, the status code or "transport"
func (o *MetricsObserver) OnAttempt(operation string, attempt, status int, err error) {
	result := "transport"
	if status > 0 {
		result = strconv.Itoa(status)
	}
	o.metrics.RecordAttempt(operation, result)
}

// OnRateLimited records the 429 and its wait
func (o *MetricsObserver) OnRateLimited(operation string, wait time.Duration) {
	o.metrics.RecordRateLimited(operation, wait)
}

// OnCircuitBreakerStateChange tracks whether the breaker is open
func (o *MetricsObserver) OnCircuitBreakerStateChange(name string, oldState, newState CircuitState) {
	o.metrics.SetCircuitBreakerOpen(name, newState == CircuitOpen)
}

// OnCacheHit records a hit
func (o *MetricsObserver) OnCacheHit(operation, key string) {
	o.metrics.RecordCacheHit(operation)
}

// OnCacheMiss records a miss
func (o *MetricsObserver) OnCacheMiss(operation, key string) {
	o.metrics.RecordCacheMiss(operation)
}

// outcomeLabel maps an operation error to a low-cardinality label
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Type.String()
	}
	return ErrorTypeUnknown.String()
}
