// Package config loads the command line tool's settings. Values are layered
// as defaults, then an optional YAML file, then USERINFO_* environment
// variables, and converted to an sdk.Config and a telemetry.Config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/httye/fetchplayers/internal/cache"
	"github.com/httye/fetchplayers/internal/storage"
	"github.com/httye/fetchplayers/internal/telemetry"
	"github.com/httye/fetchplayers/sdk"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "USERINFO_"

// ConfigPathEnvVar overrides the config file search
const ConfigPathEnvVar = EnvPrefix + "CONFIG"

// DefaultConfigPaths are searched in order when no path is given
var DefaultConfigPaths = []string{
	"userinfo.yaml",
	"userinfo.yml",
	"/etc/userinfo/config.yaml",
}

// Config is the full set of settings
type Config struct {
	Client    ClientConfig    `koanf:"client"`
	Cache     CacheConfig     `koanf:"cache"`
	Retry     RetryConfig     `koanf:"retry"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Archive   ArchiveConfig   `koanf:"archive"`
}

// ClientConfig holds the API connection settings
type ClientConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	Debug             bool          `koanf:"debug"`
	UserAgent         string        `koanf:"user_agent"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	BatchPolicy       string        `koanf:"batch_policy"`
}

// CacheConfig holds the response cache settings
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	TTL      time.Duration `koanf:"ttl"`
	Location string        `koanf:"location"`

	// PruneInterval is the sweep interval of `cache prune --watch`
	PruneInterval time.Duration `koanf:"prune_interval"`
}

// RetryConfig holds the retry settings. Backoff is "constant" or
// "exponential"; MaxDelay only applies to the latter.
type RetryConfig struct {
	Attempts      int           `koanf:"attempts"`
	Delay         time.Duration `koanf:"delay"`
	Backoff       string        `koanf:"backoff"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	RateLimitWait time.Duration `koanf:"rate_limit_wait"`
}

// BreakerConfig holds the optional circuit breaker settings
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Timeout          time.Duration `koanf:"timeout"`
}

// TelemetryConfig holds logging, tracing and metrics output settings
type TelemetryConfig struct {
	Environment    string  `koanf:"environment"`
	LogLevel       string  `koanf:"log_level"`
	LogFormat      string  `koanf:"log_format"`
	LogsFile       string  `koanf:"logs_file"`
	TracingEnabled bool    `koanf:"tracing_enabled"`
	OTLPEndpoint   string  `koanf:"otlp_endpoint"`
	TracesFile     string  `koanf:"traces_file"`
	SamplingRate   float64 `koanf:"sampling_rate"`
	MetricsFile    string  `koanf:"metrics_file"`
}

// ArchiveConfig holds the object storage settings used by `export --archive`
type ArchiveConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Prefix    string `koanf:"prefix"`
	PathStyle bool   `koanf:"path_style"`
}

func defaultConfig() *Config {
	client := sdk.DefaultConfig()
	tel := telemetry.DefaultConfig()

	return &Config{
		Client: ClientConfig{
			BaseURL:     client.BaseURL,
			Timeout:     client.Timeout,
			BatchPolicy: client.BatchPolicy.String(),
		},
		Cache: CacheConfig{
			Enabled:       client.CacheEnabled,
			TTL:           client.CacheTTL,
			Location:      cache.DefaultLocation(),
			PruneInterval: 5 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts:      client.RetryAttempts,
			Delay:         client.RetryDelay,
			Backoff:       "constant",
			MaxDelay:      30 * time.Second,
			RateLimitWait: client.RateLimitWait,
		},
		Breaker: BreakerConfig{
			FailureThreshold: sdk.DefaultCircuitBreakerConfig().FailureThreshold,
			Timeout:          sdk.DefaultCircuitBreakerConfig().Timeout,
		},
		Telemetry: TelemetryConfig{
			Environment:  tel.Environment,
			LogLevel:     tel.LogLevel,
			LogFormat:    tel.LogFormat,
			OTLPEndpoint: tel.OTLPEndpoint,
			SamplingRate: tel.SamplingRate,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: storage.DefaultPrefix,
		},
	}
}

// Load reads the configuration. An empty path searches ConfigPathEnvVar
// and then DefaultConfigPaths; a missing file there is not an error, but
// an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps USERINFO_-stripped, lowercased variable names to keys
var envMappings = map[string]string{
	"base_url":            "client.base_url",
	"api_key":             "client.api_key",
	"timeout":             "client.timeout",
	"debug":               "client.debug",
	"user_agent":          "client.user_agent",
	"requests_per_second": "client.requests_per_second",
	"batch_policy":        "client.batch_policy",

	"cache_enabled":  "cache.enabled",
	"cache_ttl":      "cache.ttl",
	"cache_location": "cache.location",

	"cache_prune_interval": "cache.prune_interval",

	"retry_attempts":  "retry.attempts",
	"retry_delay":     "retry.delay",
	"retry_backoff":   "retry.backoff",
	"retry_max_delay": "retry.max_delay",
	"rate_limit_wait": "retry.rate_limit_wait",

	"breaker_enabled":           "breaker.enabled",
	"breaker_failure_threshold": "breaker.failure_threshold",
	"breaker_timeout":           "breaker.timeout",

	"environment":     "telemetry.environment",
	"log_level":       "telemetry.log_level",
	"log_format":      "telemetry.log_format",
	"logs_file":       "telemetry.logs_file",
	"tracing_enabled": "telemetry.tracing_enabled",
	"otlp_endpoint":   "telemetry.otlp_endpoint",
	"traces_file":     "telemetry.traces_file",
	"sampling_rate":   "telemetry.sampling_rate",
	"metrics_file":    "telemetry.metrics_file",

	"archive_endpoint":   "archive.endpoint",
	"archive_region":     "archive.region",
	"archive_bucket":     "archive.bucket",
	"archive_access_key": "archive.access_key",
	"archive_secret_key": "archive.secret_key",
	"archive_prefix":     "archive.prefix",
	"archive_path_style": "archive.path_style",
}

// envTransformFunc maps USERINFO_CACHE_TTL to cache.ttl. Unknown
// variables are dropped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}

// SDKConfig converts the settings into a client configuration
func (c *Config) SDKConfig() (*sdk.Config, error) {
	policy, ok := sdk.ParseBatchPolicy(c.Client.BatchPolicy)
	if !ok {
		return nil, fmt.Errorf("%w: unknown batch policy %q", sdk.ErrInvalidConfig, c.Client.BatchPolicy)
	}

	out := sdk.DefaultConfig().
		WithBaseURL(c.Client.BaseURL).
		WithAPIKey(c.Client.APIKey).
		WithTimeout(c.Client.Timeout).
		WithDebug(c.Client.Debug).
		WithCache(c.Cache.Enabled, c.Cache.TTL).
		WithCacheLocation(c.Cache.Location).
		WithRetries(c.Retry.Attempts, c.Retry.Delay).
		WithBatchPolicy(policy).
		WithRequestsPerSecond(c.Client.RequestsPerSecond)
	out.RateLimitWait = c.Retry.RateLimitWait
	out.UserAgent = c.Client.UserAgent

	switch strings.ToLower(c.Retry.Backoff) {
	case "", "constant":
	case "exponential":
		out.WithRetryStrategy(&sdk.ExponentialBackoffStrategy{
			InitialInterval: c.Retry.Delay,
			MaxInterval:     c.Retry.MaxDelay,
			Multiplier:      2.0,
			Jitter:          0.2,
		})
	default:
		return nil, fmt.Errorf("%w: unknown retry backoff %q", sdk.ErrInvalidConfig, c.Retry.Backoff)
	}

	if c.Breaker.Enabled {
		breaker := sdk.DefaultCircuitBreakerConfig()
		breaker.FailureThreshold = c.Breaker.FailureThreshold
		breaker.Timeout = c.Breaker.Timeout
		out.WithCircuitBreaker(breaker)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// TelemetryConfig converts the settings into a telemetry configuration
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	out := telemetry.DefaultConfig()
	out.ServiceVersion = version
	out.Environment = c.Telemetry.Environment
	out.LogLevel = c.Telemetry.LogLevel
	out.LogFormat = c.Telemetry.LogFormat
	out.LogsFilePath = c.Telemetry.LogsFile
	out.EnableTracing = c.Telemetry.TracingEnabled
	out.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	out.TracesFilePath = c.Telemetry.TracesFile
	out.SamplingRate = c.Telemetry.SamplingRate
	out.MetricsFilePath = c.Telemetry.MetricsFile
	if c.Client.Debug {
		out.LogLevel = "debug"
	}
	return out
}

// ArchiveConfig converts the settings into an object storage configuration
func (c *Config) ArchiveConfig() storage.ArchiveConfig {
	return storage.ArchiveConfig{
		Endpoint:  c.Archive.Endpoint,
		Region:    c.Archive.Region,
		Bucket:    c.Archive.Bucket,
		AccessKey: c.Archive.AccessKey,
		SecretKey: c.Archive.SecretKey,
		Prefix:    c.Archive.Prefix,
		PathStyle: c.Archive.PathStyle,
	}
}
