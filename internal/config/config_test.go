package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httye/fetchplayers/sdk"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "userinfo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.Client.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, "constant", cfg.Retry.Backoff)
	assert.Equal(t, "reject", cfg.Client.BatchPolicy)
	assert.False(t, cfg.Breaker.Enabled)
	assert.Equal(t, "warn", cfg.Telemetry.LogLevel)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
client:
  base_url: http://mc.example.com:8080/api
  api_key: from-file
  timeout: 20s
cache:
  ttl: 1m
  location: ""
retry:
  attempts: 5
  backoff: exponential
telemetry:
  log_format: json
`)
	t.Setenv("USERINFO_API_KEY", "from-env")
	t.Setenv("USERINFO_CACHE_ENABLED", "false")
	t.Setenv("USERINFO_RETRY_DELAY", "250ms")
	t.Setenv("USERINFO_UNRELATED", "ignored")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://mc.example.com:8080/api", cfg.Client.BaseURL)
	assert.Equal(t, "from-env", cfg.Client.APIKey)
	assert.Equal(t, 20*time.Second, cfg.Client.Timeout)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.Location)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, "json", cfg.Telemetry.LogFormat)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeFile(t, "client:\n  debug: true\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Client.Debug)
	assert.Equal(t, "debug", cfg.TelemetryConfig("test").LogLevel)
}

func TestSDKConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Client.APIKey = "k"
	cfg.Client.BatchPolicy = "truncate"
	cfg.Cache.Location = t.TempDir()
	cfg.Retry.Backoff = "exponential"
	cfg.Breaker.Enabled = true
	cfg.Breaker.FailureThreshold = 2

	out, err := cfg.SDKConfig()
	require.NoError(t, err)

	assert.Equal(t, "k", out.APIKey)
	assert.Equal(t, sdk.BatchTruncate, out.BatchPolicy)
	assert.Equal(t, 3, out.RetryAttempts)
	require.IsType(t, &sdk.ExponentialBackoffStrategy{}, out.RetryStrategy)
	assert.Equal(t, time.Second, out.RetryStrategy.(*sdk.ExponentialBackoffStrategy).InitialInterval)
	require.NotNil(t, out.CircuitBreaker)
	assert.Equal(t, uint32(2), out.CircuitBreaker.FailureThreshold)
}

func TestSDKConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"batch policy", func(c *Config) { c.Client.BatchPolicy = "drop" }},
		{"backoff", func(c *Config) { c.Retry.Backoff = "fibonacci" }},
		{"base url", func(c *Config) { c.Client.BaseURL = "ftp://host" }},
		{"negative attempts", func(c *Config) { c.Retry.Attempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Cache.Location = ""
			tt.mutate(cfg)
			_, err := cfg.SDKConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, sdk.ErrInvalidConfig)
		})
	}
}

func TestTelemetryConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TracesFile = "/tmp/traces.jsonl"
	cfg.Telemetry.MetricsFile = "/tmp/metrics.prom"

	out := cfg.TelemetryConfig("2.0.0")
	assert.Equal(t, "userinfo", out.ServiceName)
	assert.Equal(t, "2.0.0", out.ServiceVersion)
	assert.True(t, out.EnableTracing)
	assert.Equal(t, "/tmp/traces.jsonl", out.TracesFilePath)
	assert.Equal(t, "/tmp/metrics.prom", out.MetricsFilePath)
	assert.Equal(t, "warn", out.LogLevel)
}

func TestLoad_ArchiveAndPruneInterval(t *testing.T) {
	path := writeFile(t, `
cache:
  prune_interval: 90s
archive:
  endpoint: http://localhost:9000
  bucket: exports
  path_style: true
`)
	t.Setenv("USERINFO_ARCHIVE_SECRET_KEY", "s3cr3t")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Cache.PruneInterval)

	archive := cfg.ArchiveConfig()
	assert.True(t, archive.Enabled())
	assert.Equal(t, "http://localhost:9000", archive.Endpoint)
	assert.Equal(t, "us-east-1", archive.Region)
	assert.Equal(t, "exports", archive.Bucket)
	assert.Equal(t, "s3cr3t", archive.SecretKey)
	assert.Equal(t, "userinfo-exports/", archive.Prefix)
	assert.True(t, archive.PathStyle)
}
