package sdk

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8080/api", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "minecraft_api_cache", filepath.Base(cfg.CacheLocation))
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWait)
	assert.Equal(t, BatchReject, cfg.BatchPolicy)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Builder(t *testing.T) {
	cfg := DefaultConfig().
		WithBaseURL("https://mc.example.com/api/").
		WithAPIKey("secret").
		WithTimeout(5*time.Second).
		WithCache(false, time.Minute).
		WithRetries(5, 2*time.Second).
		WithBatchPolicy(BatchTruncate).
		WithHeader("X-Tenant", "survival")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://mc.example.com/api", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, BatchTruncate, cfg.BatchPolicy)
	assert.Equal(t, "survival", cfg.Headers["X-Tenant"])
	assert.IsType(t, &NoopObserver{}, cfg.Observer)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.BaseURL = "" }},
		{"non http scheme", func(c *Config) { c.BaseURL = "ftp://mc.example.com" }},
		{"missing host", func(c *Config) { c.BaseURL = "http://" }},
		{"negative attempts", func(c *Config) { c.RetryAttempts = -1 }},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }},
		{"negative pacing", func(c *Config) { c.RequestsPerSecond = -1 }},
		{"unsupported cache location", func(c *Config) { c.CacheLocation = "s3://bucket/cache" }},
		{"negative breaker timeout", func(c *Config) {
			c.WithCircuitBreaker(CircuitBreakerConfig{Timeout: -time.Second})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := &Config{BaseURL: "http://localhost:8080/api"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWait)
	assert.Equal(t, 10, cfg.TransportConfig.MaxIdleConns)
	assert.Equal(t, 3, cfg.TransportConfig.MaxRedirects)
	assert.NotNil(t, cfg.Observer)
}

func TestConfig_TimeoutClamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{500 * time.Millisecond, MinTimeout},
		{30 * time.Second, 30 * time.Second},
		{10 * time.Minute, MaxTimeout},
	}
	for _, tt := range tests {
		cfg := DefaultConfig().WithTimeout(tt.in)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, tt.want, cfg.Timeout)
	}
}

func TestConfig_InjectedStoreSkipsLocation(t *testing.T) {
	cfg := DefaultConfig().WithCacheLocation("s3://bucket/cache")
	cfg.CacheStore = &countingStore{}
	assert.NoError(t, cfg.Validate())
}
