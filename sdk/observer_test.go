package sdk

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/httye/fetchplayers/internal/telemetry"
)

func TestMetricsCollector(t *testing.T) {
	server := newServer(t)
	server.WithRetryResponse("GET /status", 1, http.StatusServiceUnavailable, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "online"}
	})
	metrics := NewMetricsCollector()
	c, _ := newTestClient(t, server, func(c *Config) { c.Observer = metrics })
	ctx := context.Background()

	_, err := c.ServerStatus(ctx)
	require.NoError(t, err)
	_, err = c.UserInfo(ctx, "Steve")
	require.NoError(t, err)
	_, err = c.UserInfo(ctx, "Steve")
	require.NoError(t, err)

	snapshot := metrics.GetMetrics()
	assert.Equal(t, int64(1), snapshot.Requests[OpServerStatus])
	assert.Equal(t, int64(2), snapshot.Attempts[OpServerStatus])
	assert.Equal(t, int64(1), snapshot.Retries[OpServerStatus])
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, snapshot.RetryDelays[OpServerStatus])
	assert.Zero(t, snapshot.Errors[OpServerStatus])

	assert.Equal(t, int64(2), snapshot.Requests[OpUserInfo])
	assert.Equal(t, int64(1), snapshot.Attempts[OpUserInfo])
	assert.Equal(t, int64(1), snapshot.CacheHits)
	assert.Equal(t, int64(1), snapshot.CacheMisses)
	assert.InDelta(t, 0.5, snapshot.CacheHitRate(), 0.0001)
	assert.Len(t, snapshot.Latencies[OpUserInfo], 2)

	// Snapshots are copies
	snapshot.Requests[OpUserInfo] = 100
	assert.Equal(t, int64(2), metrics.GetMetrics().Requests[OpUserInfo])
}

func TestMetricsCollector_Errors(t *testing.T) {
	server := newServer(t)
	server.WithErrorResponse("GET /status", http.StatusInternalServerError, "boom")
	metrics := NewMetricsCollector()
	c, _ := newTestClient(t, server, func(c *Config) { c.Observer = metrics })

	_, err := c.ServerStatus(context.Background())
	require.Error(t, err)

	snapshot := metrics.GetMetrics()
	assert.Equal(t, int64(1), snapshot.Errors[OpServerStatus])
	assert.Equal(t, int64(3), snapshot.Attempts[OpServerStatus])
	assert.Equal(t, int64(2), snapshot.Retries[OpServerStatus])
	assert.Zero(t, snapshot.CacheHitRate())
}

type panickyObserver struct{ NoopObserver }

func (p *panickyObserver) OnRequestStart(operation, method, path string) {
	panic("observer bug")
}

func TestCompositeObserver(t *testing.T) {
	first := NewMetricsCollector()
	second := NewMetricsCollector()
	composite := NewCompositeObserver(first, nil, &panickyObserver{}, second)

	assert.NotPanics(t, func() {
		composite.OnRequestStart(OpUserInfo, http.MethodGet, "/user/info")
	})
	composite.OnCacheHit(OpUserInfo, "user_info:Steve")
	composite.OnCircuitBreakerStateChange("api", CircuitClosed, CircuitOpen)

	for _, m := range []*MetricsCollector{first, second} {
		snapshot := m.GetMetrics()
		assert.Equal(t, int64(1), snapshot.Requests[OpUserInfo])
		assert.Equal(t, int64(1), snapshot.CacheHits)
		assert.Equal(t, int64(1), snapshot.CircuitStateChanges["api"])
	}
}

func TestMetricsObserver_Prometheus(t *testing.T) {
	server := newServer(t)
	reg := prometheus.NewRegistry()
	c, _ := newTestClient(t, server, func(c *Config) { c.MetricsRegisterer = reg })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.UserInfo(ctx, "Steve")
		require.NoError(t, err)
	}

	expected := `
# HELP userinfo_cache_hits_total Total number of cache hits
# TYPE userinfo_cache_hits_total counter
userinfo_cache_hits_total{operation="user_info"} 2
# HELP userinfo_cache_misses_total Total number of cache misses
# TYPE userinfo_cache_misses_total counter
userinfo_cache_misses_total{operation="user_info"} 1
# HELP userinfo_attempts_total Total number of HTTP attempts
# TYPE userinfo_attempts_total counter
userinfo_attempts_total{operation="user_info",result="200"} 1
# HELP userinfo_requests_total Total number of logical API operations
# TYPE userinfo_requests_total counter
userinfo_requests_total{operation="user_info",outcome="success"} 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"userinfo_cache_hits_total",
		"userinfo_cache_misses_total",
		"userinfo_attempts_total",
		"userinfo_requests_total",
	)
	assert.NoError(t, err)
}

func TestMetricsObserver_Failures(t *testing.T) {
	server := newServer(t)
	server.WithRateLimit("GET /online-players", 2)
	reg := prometheus.NewRegistry()
	c, _ := newTestClient(t, server, func(c *Config) {
		c.MetricsRegisterer = reg
		c.RetryAttempts = 2
	})

	_, err := c.OnlinePlayers(context.Background())
	require.Error(t, err)

	expected := `
# HELP userinfo_rate_limited_total Total number of rate limited responses
# TYPE userinfo_rate_limited_total counter
userinfo_rate_limited_total{operation="online_players"} 1
# HELP userinfo_requests_total Total number of logical API operations
# TYPE userinfo_requests_total counter
userinfo_requests_total{operation="online_players",outcome="exhausted"} 1
# HELP userinfo_attempts_total Total number of HTTP attempts
# TYPE userinfo_attempts_total counter
userinfo_attempts_total{operation="online_players",result="429"} 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"userinfo_rate_limited_total",
		"userinfo_requests_total",
		"userinfo_attempts_total",
	)
	assert.NoError(t, err)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "success", outcomeLabel(nil))
	assert.Equal(t, "validation", outcomeLabel(validationError("bad")))
	assert.Equal(t, "unknown", outcomeLabel(errors.New("plain")))
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	server := newServer(t)
	server.WithErrorResponse("GET /security/info", http.StatusUnauthorized, "API密钥无效")
	c, _ := newTestClient(t, server, func(c *Config) {
		c.TracerProvider = tp
		c.RetryAttempts = 1
	})
	ctx := context.Background()

	_, err := c.ServerStatus(ctx)
	require.NoError(t, err)
	_, err = c.SecurityInfo(ctx)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "userinfo.server_status", ok.Name())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	assert.Contains(t, ok.Attributes(), attribute.Int("http.status_code", http.StatusOK))
	assert.Contains(t, ok.Attributes(), attribute.String("userinfo.operation", OpServerStatus))

	failed := spans[1]
	assert.Equal(t, "userinfo.security_info", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Attributes(), attribute.String("userinfo.error_type", "exhausted"))
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	server := newServer(t)
	server.WithRateLimit("GET /status", 1)
	c, _ := newTestClient(t, server, func(c *Config) {
		c.Observer = NewLogObserver(logger)
		c.RetryAttempts = 2
	})

	_, err := c.ServerStatus(context.Background())
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"request started"`)
	assert.Contains(t, out, `"msg":"rate limited by server"`)
	assert.Contains(t, out, `"msg":"request failed"`)
	assert.Contains(t, out, `"component":"client"`)
	assert.NotContains(t, out, "test-key")
}

func TestNewClient_SameConfigTwice(t *testing.T) {
	server := newServer(t)
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig().
		WithBaseURL(server.BaseURL()).
		WithAPIKey("test-key").
		WithCache(false, 0).
		WithDebug(true).
		WithLogger(quietLogger()).
		WithMetrics(reg)

	var clients []Client
	for i := 0; i < 2; i++ {
		require.NotPanics(t, func() {
			c, err := NewClient(cfg)
			require.NoError(t, err)
			clients = append(clients, c)
		})
	}
	for _, c := range clients {
		t.Cleanup(func() { _ = c.Close() })
	}

	assert.Nil(t, cfg.Observer, "construction must not write into the caller's config")

	for _, c := range clients {
		_, err := c.ServerStatus(context.Background())
		require.NoError(t, err)
	}

	expected := `
# HELP userinfo_requests_total Total number of logical API operations
# TYPE userinfo_requests_total counter
userinfo_requests_total{operation="server_status",outcome="success"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "userinfo_requests_total")
	assert.NoError(t, err)
}

func TestNewClient_DebugKeepsModuleLoggerLevel(t *testing.T) {
	server := newServer(t)
	before := telemetry.L().GetLevel()
	if before == logrus.DebugLevel {
		t.Skip("module logger already at debug level")
	}

	c, err := NewClient(DefaultConfig().
		WithBaseURL(server.BaseURL()).
		WithCache(false, 0).
		WithDebug(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, before, telemetry.L().GetLevel())
	assert.True(t, c.(*client).log.Logger.IsLevelEnabled(logrus.DebugLevel))
}
