// Package telemetry wires logging, tracing and metrics for the command line
// tool and provides the logger defaults used across the module.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Telemetry bundles the components built by Init
type Telemetry struct {
	Logger   *logrus.Logger
	Registry *prometheus.Registry

	cfg *Config
	tp  *sdktrace.TracerProvider
}

// Init initializes all telemetry components
func Init(ctx context.Context, cfg *Config) (*Telemetry, error) {
	// Initialize logger
	if err := InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracing
	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tp != nil {
		InstallTracerProvider(tp)
	}

	L().WithFields(logrus.Fields{
		"service": cfg.ServiceName,
		"version": cfg.ServiceVersion,
		"tracing": tp != nil,
	}).Debug("Telemetry initialized")

	return &Telemetry{
		Logger:   L(),
		Registry: prometheus.NewRegistry(),
		cfg:      cfg,
		tp:       tp,
	}, nil
}

// TracerProvider returns the configured provider, or a no-op provider when
// tracing is disabled.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tp == nil {
		return noop.NewTracerProvider()
	}
	return t.tp
}

// Shutdown flushes spans, writes the metrics file and closes log files
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			L().WithError(err).Error("Failed to close tracing")
		}
	}

	if t.cfg.MetricsFilePath != "" {
		if err := WriteMetricsFile(t.cfg.MetricsFilePath, t.Registry); err != nil {
			L().WithError(err).Error("Failed to write metrics file")
		}
	}

	if err := CloseLogger(); err != nil {
		L().WithError(err).Error("Failed to close logger")
	}

	return nil
}
