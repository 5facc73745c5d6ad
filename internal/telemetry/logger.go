package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	loggerMu   sync.RWMutex
	logger     *logrus.Logger
	fileLogger *FileLogger
)

// FileLogger mirrors every log entry as a JSON line into a file
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	filePath string
}

// serviceFields stamps the service identity onto every entry
type serviceFields logrus.Fields

func (h serviceFields) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceFields) Fire(entry *logrus.Entry) error {
	for k, v := range h {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// NewLogger builds a logger from the configuration without touching the
// package default.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	l.SetLevel(level)

	// Set formatter
	switch cfg.LogFormat {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}

	if cfg.ServiceName != "" {
		l.AddHook(serviceFields{
			"service.name":    cfg.ServiceName,
			"service.version": cfg.ServiceVersion,
		})
	}

	return l, nil
}

// InitLogger builds a logger and installs it as the package default
func InitLogger(cfg *Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	// If file export is enabled, create file logger
	var fl *FileLogger
	if cfg.LogsFilePath != "" {
		fl, err = NewFileLogger(cfg.LogsFilePath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		l.AddHook(fl)
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
	fileLogger = fl
	return nil
}

// NewFileLogger creates a new file logger
func NewFileLogger(filePath string) (*FileLogger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		filePath: filePath,
	}, nil
}

// Levels returns the log levels this hook is interested in
func (f *FileLogger) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire is called when a log event is fired
func (f *FileLogger) Fire(entry *logrus.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := make(map[string]interface{}, len(entry.Data)+3)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["@timestamp"] = entry.Time.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message

	return f.encoder.Encode(data)
}

// Close closes the file logger
func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// L returns the package default logger
func L() *logrus.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()

	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// WithContext adds trace information to an entry of the given logger, or of
// the package default when l is nil.
func WithContext(ctx context.Context, l *logrus.Logger) *logrus.Entry {
	if l == nil {
		l = L()
	}
	entry := l.WithContext(ctx)

	// Add trace information if available
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}

	return entry
}

// CloseLogger closes any open resources
func CloseLogger() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if fileLogger != nil {
		err := fileLogger.Close()
		fileLogger = nil
		return err
	}
	return nil
}
