package telemetry

// Config holds the configuration for telemetry
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Logging
	LogLevel     string
	LogFormat    string // "json" or "text"
	LogsFilePath string

	// Tracing. Spans go to TracesFilePath when set, otherwise to the OTLP
	// gRPC endpoint.
	EnableTracing  bool
	OTLPEndpoint   string
	TracesFilePath string
	SamplingRate   float64

	// Metrics are written in Prometheus text format on shutdown when set
	MetricsFilePath string
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "userinfo",
		ServiceVersion: "unknown",
		Environment:    "development",
		LogLevel:       "warn",
		LogFormat:      "text",
		OTLPEndpoint:   "localhost:4317",
		SamplingRate:   1.0,
	}
}
