package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// FileTracerExporter writes finished spans as JSON lines into a file
type FileTracerExporter struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	filePath string
}

// FileSpan is the JSON form of an exported span
type FileSpan struct {
	TraceID    string                 `json:"trace_id"`
	SpanID     string                 `json:"span_id"`
	ParentID   string                 `json:"parent_id,omitempty"`
	Name       string                 `json:"name"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Attributes map[string]interface{} `json:"attributes"`
	Status     string                 `json:"status"`
	Events     []SpanEvent            `json:"events,omitempty"`
}

// SpanEvent represents an event in a span
type SpanEvent struct {
	Name       string                 `json:"name"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// NewTracerProvider builds a tracer provider from the configuration.
// It returns nil when tracing is disabled.
func NewTracerProvider(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if !cfg.EnableTracing {
		return nil, nil
	}

	// Create resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.TracesFilePath != "" {
		exporter, err = NewFileTracerExporter(cfg.TracesFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create file tracer: %w", err)
		}
	} else {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)

		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	), nil
}

// InstallTracerProvider makes tp the global provider and sets the W3C
// propagators.
func InstallTracerProvider(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// NewFileTracerExporter creates a new file tracer exporter
func NewFileTracerExporter(filePath string) (*FileTracerExporter, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &FileTracerExporter{
		file:     file,
		encoder:  json.NewEncoder(file),
		filePath: filePath,
	}, nil
}

// ExportSpans implements the SpanExporter interface
func (f *FileTracerExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, span := range spans {
		fileSpan := FileSpan{
			TraceID:   span.SpanContext().TraceID().String(),
			SpanID:    span.SpanContext().SpanID().String(),
			Name:      span.Name(),
			StartTime: span.StartTime(),
			EndTime:   span.EndTime(),
			Status:    span.Status().Code.String(),
		}

		if span.Parent().IsValid() {
			fileSpan.ParentID = span.Parent().SpanID().String()
		}

		fileSpan.Attributes = make(map[string]interface{})
		for _, attr := range span.Attributes() {
			fileSpan.Attributes[string(attr.Key)] = attr.Value.AsInterface()
		}

		for _, event := range span.Events() {
			spanEvent := SpanEvent{
				Name:      event.Name,
				Timestamp: event.Time,
			}
			if len(event.Attributes) > 0 {
				spanEvent.Attributes = make(map[string]interface{})
				for _, attr := range event.Attributes {
					spanEvent.Attributes[string(attr.Key)] = attr.Value.AsInterface()
				}
			}
			fileSpan.Events = append(fileSpan.Events, spanEvent)
		}

		if err := f.encoder.Encode(fileSpan); err != nil {
			return err
		}
	}

	return nil
}

// Shutdown implements the SpanExporter interface
func (f *FileTracerExporter) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
