// Package logger provides structured logging for csvscan. Libraries take a
// *zap.Logger option and fall back to the process logger configured by Init.
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

type contextKey string

const (
	// ScanIDKey is the context key for the scan identifier
	ScanIDKey contextKey = "scan_id"
	// FileKey is the context key for the file being read
	FileKey contextKey = "file"
	// BufferIndexKey is the context key for the byte range index
	BufferIndexKey contextKey = "buffer_index"
)

// Config selects the level, encoding and outputs of the process logger.
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Init builds the process logger from cfg and replaces the current one.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	l, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.Development {
		l = l.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return l, nil
}

// Get returns the process logger, building an info-level JSON logger on
// stderr if Init was never called.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		var err error
		if global, err = newLogger(Config{Level: "info"}); err != nil {
			global = zap.NewNop()
		}
	}
	return global
}

// OrDefault returns l, or the process logger when l is nil.
func OrDefault(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return Get()
}

// FromContext adds the scan, file and byte range values stored on ctx to base.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	l := OrDefault(base)
	var fields []zap.Field
	if scanID, ok := ctx.Value(ScanIDKey).(string); ok {
		fields = append(fields, zap.String("scan_id", scanID))
	}
	if file, ok := ctx.Value(FileKey).(string); ok {
		fields = append(fields, zap.String("file", file))
	}
	if idx, ok := ctx.Value(BufferIndexKey).(int); ok {
		fields = append(fields, zap.Int("buffer_index", idx))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// ContextWithScan stores the scan identifier and file on ctx.
func ContextWithScan(ctx context.Context, scanID, file string) context.Context {
	ctx = context.WithValue(ctx, ScanIDKey, scanID)
	return context.WithValue(ctx, FileKey, file)
}

// ContextWithBufferIndex stores the byte range index on ctx.
func ContextWithBufferIndex(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, BufferIndexKey, idx)
}

// Error logs on the process logger.
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Sync flushes the process logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Sync()
	}
	return nil
}
